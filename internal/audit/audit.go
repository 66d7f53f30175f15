// Package audit provides the append-only action trail tied to execution
// requests. Entries are never updated or deleted once written.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Well-known action codes recorded by the kernel and dispatcher.
const (
	ActionExecutionDenied = "EXECUTION_DENIED"
	ActionExecutionStart  = "EXECUTION_START"
	ActionExecutionError  = "EXECUTION_ERROR"
	ActionExecutionEnd    = "EXECUTION_END"
	ActionCampaignStart   = "CAMPAIGN_START"
)

// Entry is one immutable audit record.
type Entry struct {
	LogID     int64
	RequestID *string
	ActorID   string
	Action    string
	Detail    string
	CreatedAt time.Time
}

type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Record appends one entry. requestID may be empty for actions not tied to
// a specific execution request.
func (l *Logger) Record(ctx context.Context, requestID, actorID, action, detail string) error {
	if actorID == "" {
		return fmt.Errorf("actor id is empty")
	}
	if action == "" {
		return fmt.Errorf("action is empty")
	}

	var reqID any
	if requestID != "" {
		reqID = requestID
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := l.db.ExecContext(ctx, `
INSERT INTO audit_log(req_id, actor_id, action, detail, created_at)
VALUES(?, ?, ?, ?, ?);
`, reqID, actorID, action, detail, now)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByRequest returns all entries for a request id, oldest first.
func (l *Logger) ListByRequest(ctx context.Context, requestID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT log_id, req_id, actor_id, action, detail, created_at
FROM audit_log
WHERE req_id = ?
ORDER BY log_id ASC;
`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			reqID     sql.NullString
			detail    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.LogID, &reqID, &e.ActorID, &e.Action, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if reqID.Valid {
			e.RequestID = &reqID.String
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByAction returns how many entries exist for a request id with the
// given action code.
func (l *Logger) CountByAction(ctx context.Context, requestID, action string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM audit_log WHERE req_id = ? AND action = ?;
`, requestID, action).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}
