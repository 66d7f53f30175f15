// Package catalog maps function codes to handler descriptors. The kernel
// reads it to resolve what to run and under what resource limits; writes
// happen only through administrative provisioning.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownFunction is returned when no catalog entry exists for a code.
	ErrUnknownFunction = errors.New("unknown function code")
	// ErrInactiveFunction is returned when the entry exists but is disabled.
	ErrInactiveFunction = errors.New("function is inactive")
)

// Descriptor is one static catalog entry.
type Descriptor struct {
	FunctionCode   string
	FunctionName   string
	HandlerLocator string
	TimeoutSeconds int
	Category       string
	Active         bool
}

// Timeout returns the hard execution bound for handlers of this function.
func (d Descriptor) Timeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Resolve loads the descriptor for code. Inactive entries resolve to
// ErrInactiveFunction; absent codes to ErrUnknownFunction. Both are terminal
// for the calling request.
func (s *Store) Resolve(ctx context.Context, code string) (Descriptor, error) {
	var (
		d      Descriptor
		active int
	)
	err := s.db.QueryRowContext(ctx, `
SELECT function_code, function_name, handler_locator, timeout_seconds, COALESCE(category, ''), is_active
FROM function_catalog
WHERE function_code = ?;
`, code).Scan(&d.FunctionCode, &d.FunctionName, &d.HandlerLocator, &d.TimeoutSeconds, &d.Category, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return Descriptor{}, fmt.Errorf("resolve %q: %w", code, ErrUnknownFunction)
	}
	if err != nil {
		return Descriptor{}, fmt.Errorf("resolve %q: %w", code, err)
	}
	d.Active = active != 0
	if !d.Active {
		return Descriptor{}, fmt.Errorf("resolve %q: %w", code, ErrInactiveFunction)
	}
	return d, nil
}

// Upsert registers or updates a descriptor. Administrative path only.
func (s *Store) Upsert(ctx context.Context, d Descriptor) error {
	if d.FunctionCode == "" {
		return fmt.Errorf("function code is empty")
	}
	if d.HandlerLocator == "" {
		return fmt.Errorf("handler locator is empty")
	}
	if d.TimeoutSeconds <= 0 {
		d.TimeoutSeconds = 60
	}

	active := 0
	if d.Active {
		active = 1
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO function_catalog(function_code, function_name, handler_locator, timeout_seconds, category, is_active, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(function_code) DO UPDATE SET
  function_name   = excluded.function_name,
  handler_locator = excluded.handler_locator,
  timeout_seconds = excluded.timeout_seconds,
  category        = excluded.category,
  is_active       = excluded.is_active,
  updated_at      = excluded.updated_at;
`, d.FunctionCode, d.FunctionName, d.HandlerLocator, d.TimeoutSeconds, d.Category, active, now, now)
	if err != nil {
		return fmt.Errorf("upsert catalog entry %q: %w", d.FunctionCode, err)
	}
	return nil
}

// List returns all descriptors ordered by function code.
func (s *Store) List(ctx context.Context) ([]Descriptor, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT function_code, function_name, handler_locator, timeout_seconds, COALESCE(category, ''), is_active
FROM function_catalog
ORDER BY function_code ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	var out []Descriptor
	for rows.Next() {
		var (
			d      Descriptor
			active int
		)
		if err := rows.Scan(&d.FunctionCode, &d.FunctionName, &d.HandlerLocator, &d.TimeoutSeconds, &d.Category, &active); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		d.Active = active != 0
		out = append(out, d)
	}
	return out, rows.Err()
}
