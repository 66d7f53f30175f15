// Package target stores named target lists as line-oriented files on disk
// with their metadata in SQLite. Lists can be arbitrarily large, so reads
// stream line by line instead of materializing the whole list.
package target

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// List is the metadata row for one imported target list. The backing file
// is immutable after import; total count is authoritative.
type List struct {
	ID          string
	UserID      string
	Name        string
	TotalCount  int
	FilePath    string
	Fingerprint string
	CreatedAt   time.Time
}

var (
	ErrNotFound = errors.New("target list not found")
	// ErrFingerprintMismatch means the backing file changed since import.
	ErrFingerprintMismatch = errors.New("target list fingerprint mismatch")
)

type Loader struct {
	db  *sql.DB
	dir string
}

func NewLoader(db *sql.DB, dir string) *Loader {
	return &Loader{db: db, dir: dir}
}

// Import reads one identifier per line from r, writes the backing file, and
// records the list with its blake3 fingerprint. Blank lines are skipped and
// repeated identifiers are stored once, so total count is the number of
// distinct targets.
func (l *Loader) Import(ctx context.Context, userID, name string, r io.Reader) (*List, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is empty")
	}
	if name == "" {
		return nil, fmt.Errorf("list name is empty")
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create targets directory: %w", err)
	}

	id := "tl-" + uuid.NewString()
	path := filepath.Join(l.dir, id+".txt")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create target file: %w", err)
	}

	hasher := blake3.New()
	w := bufio.NewWriter(io.MultiWriter(f, hasher))
	count := 0
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		if _, err := w.WriteString(line + "\n"); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return nil, fmt.Errorf("write target file: %w", err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("read import source: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("flush target file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close target file: %w", err)
	}

	fingerprint := "blake3:" + hex.EncodeToString(hasher.Sum(nil))
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = l.db.ExecContext(ctx, `
INSERT INTO target_lists(list_id, user_id, name, total_count, file_path, fingerprint, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, id, userID, name, count, path, fingerprint, now)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("record target list: %w", err)
	}

	return &List{
		ID:          id,
		UserID:      userID,
		Name:        name,
		TotalCount:  count,
		FilePath:    path,
		Fingerprint: fingerprint,
	}, nil
}

// Get loads list metadata by id.
func (l *Loader) Get(ctx context.Context, id string) (*List, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT list_id, user_id, name, total_count, file_path, fingerprint, created_at
FROM target_lists
WHERE list_id = ?;
`, id)

	var (
		list       List
		createdAtS string
	)
	err := row.Scan(&list.ID, &list.UserID, &list.Name, &list.TotalCount, &list.FilePath, &list.Fingerprint, &createdAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load target list %q: %w", id, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		list.CreatedAt = t
	}
	return &list, nil
}

// Stream calls yield for every target in the list, in file order, without
// loading the whole file. The stream is restartable only by calling Stream
// again. A false return from yield stops early. The file fingerprint is
// verified before any target is yielded.
func (l *Loader) Stream(ctx context.Context, id string, yield func(target string) bool) error {
	list, err := l.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := l.verifyFingerprint(list); err != nil {
		return err
	}

	f, err := os.Open(list.FilePath)
	if err != nil {
		return fmt.Errorf("open target file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !yield(line) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read target file: %w", err)
	}
	return nil
}

// ListByUser returns list metadata for a user, newest first.
func (l *Loader) ListByUser(ctx context.Context, userID string) ([]*List, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT list_id, user_id, name, total_count, file_path, fingerprint, created_at
FROM target_lists
WHERE user_id = ?
ORDER BY created_at DESC;
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list target lists: %w", err)
	}
	defer rows.Close()

	var out []*List
	for rows.Next() {
		var (
			list       List
			createdAtS string
		)
		if err := rows.Scan(&list.ID, &list.UserID, &list.Name, &list.TotalCount, &list.FilePath, &list.Fingerprint, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan target list: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			list.CreatedAt = t
		}
		out = append(out, &list)
	}
	return out, rows.Err()
}

func (l *Loader) verifyFingerprint(list *List) error {
	f, err := os.Open(list.FilePath)
	if err != nil {
		return fmt.Errorf("open target file: %w", err)
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return fmt.Errorf("hash target file: %w", err)
	}
	got := "blake3:" + hex.EncodeToString(hasher.Sum(nil))
	if got != list.Fingerprint {
		return fmt.Errorf("list %q: %w", list.ID, ErrFingerprintMismatch)
	}
	return nil
}
