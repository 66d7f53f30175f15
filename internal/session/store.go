// Package session manages the pool of stateful messaging sessions a user
// owns. The dispatcher reads it to pick resources; health status is written
// by an external validation flow and by send failures.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the health state of a session.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusBanned    Status = "BANNED"
	StatusLimited   Status = "LIMITED"
	StatusUnchecked Status = "UNCHECKED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusBanned, StatusLimited, StatusUnchecked:
		return true
	}
	return false
}

// Session is one reusable execution handle.
type Session struct {
	ID            string
	UserID        string
	Phone         string
	Locator       string
	Tag           string
	Status        Status
	LastCheckedAt *time.Time
	CreatedAt     time.Time
}

var ErrNotFound = errors.New("session not found")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Register adds a session in UNCHECKED state and returns its id.
func (s *Store) Register(ctx context.Context, userID, phone, locator, tag string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is empty")
	}
	if locator == "" {
		return "", fmt.Errorf("locator is empty")
	}

	id := "ses-" + uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(session_id, user_id, phone, locator, tag, status, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, id, userID, phone, locator, tag, StatusUnchecked, now)
	if err != nil {
		return "", fmt.Errorf("register session: %w", err)
	}
	return id, nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, user_id, phone, locator, tag, status, last_checked_at, created_at
FROM sessions
WHERE session_id = ?;
`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", id, err)
	}
	return sess, nil
}

// SetStatus updates health state and stamps last_checked_at.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid session status: %q", status)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE sessions SET status = ?, last_checked_at = ? WHERE session_id = ?;
`, status, now, id)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	if n != 1 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns a user's ACTIVE sessions in stable session_id order.
// When tag is non-empty only sessions carrying that tag are returned. The
// dispatcher relies on the deterministic order for its partitioning.
func (s *Store) ListActive(ctx context.Context, userID, tag string) ([]*Session, error) {
	query := `
SELECT session_id, user_id, phone, locator, tag, status, last_checked_at, created_at
FROM sessions
WHERE user_id = ? AND status = ?`
	args := []any{userID, StatusActive}
	if tag != "" {
		query += " AND tag = ?"
		args = append(args, tag)
	}
	query += " ORDER BY session_id ASC;"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess        Session
		phone       sql.NullString
		tag         sql.NullString
		statusS     string
		lastChecked sql.NullString
		createdAtS  string
	)
	err := row.Scan(&sess.ID, &sess.UserID, &phone, &sess.Locator, &tag, &statusS, &lastChecked, &createdAtS)
	if err != nil {
		return nil, err
	}
	sess.Status = Status(statusS)
	if phone.Valid {
		sess.Phone = phone.String
	}
	if tag.Valid {
		sess.Tag = tag.String
	}
	if lastChecked.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastChecked.String); err == nil {
			sess.LastCheckedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		sess.CreatedAt = t
	}
	return &sess, nil
}
