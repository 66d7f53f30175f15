package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx so enqueues can join a
// larger transaction (scheduler promotion, dispatcher fan-out).
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Enqueue creates a QUEUED request and returns its id.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	return EnqueueIn(ctx, s.db, req)
}

// EnqueueIn creates a QUEUED request using the given executor, allowing the
// insert to participate in a caller-owned transaction.
func EnqueueIn(ctx context.Context, e execer, req EnqueueRequest) (string, error) {
	if req.FunctionCode == "" {
		return "", fmt.Errorf("function code is empty")
	}
	if req.UserID == "" {
		return "", fmt.Errorf("user id is empty")
	}

	id := req.RequestID
	if id == "" {
		id = "req-" + uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var payload any
	if len(req.Payload) > 0 {
		payload = string(req.Payload)
	}

	_, err := e.ExecContext(ctx, `
INSERT INTO execution_requests(
  req_id, function_code, user_id, input_payload, status, campaign_id, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, id, req.FunctionCode, req.UserID, payload, StatusQueued, req.CampaignID, now)
	if err != nil {
		return "", fmt.Errorf("enqueue request: %w", err)
	}
	return id, nil
}

// Get loads a request by id.
func (s *Store) Get(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT req_id, function_code, user_id, input_payload, status, result_output,
       execution_time_ms, campaign_id, created_at, started_at, completed_at
FROM execution_requests
WHERE req_id = ?;
`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load request %q: %w", id, err)
	}
	return r, nil
}

// NextQueued returns the id of the oldest QUEUED request, or ok=false when
// the queue is empty. The caller still has to win the PROCESSING claim.
func (s *Store) NextQueued(ctx context.Context) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
SELECT req_id
FROM execution_requests
WHERE status = ?
ORDER BY created_at ASC, rowid ASC
LIMIT 1;
`, StatusQueued).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("next queued request: %w", err)
	}
	return id, true, nil
}

// Claim moves a request QUEUED -> PROCESSING. The conditional update is the
// exclusive claim: exactly one concurrent caller sees claimed=true.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE execution_requests
SET status = ?, started_at = ?
WHERE req_id = ? AND status = ?;
`, StatusProcessing, now, id, StatusQueued)
	if err != nil {
		return false, fmt.Errorf("claim request %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim request %q: %w", id, err)
	}
	return n == 1, nil
}

// Reject terminates a request that never reached PROCESSING (billing denial,
// catalog rejection). No duration is recorded. status must be FAILED or
// DENIED_BILLING.
func (s *Store) Reject(ctx context.Context, id string, status Status, result []byte) (bool, error) {
	if status != StatusFailed && status != StatusDeniedBilling {
		return false, fmt.Errorf("invalid rejection status: %q", status)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE execution_requests
SET status = ?, result_output = ?, completed_at = ?
WHERE req_id = ? AND status = ?;
`, status, resultVal(result), now, id, StatusQueued)
	if err != nil {
		return false, fmt.Errorf("reject request %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reject request %q: %w", id, err)
	}
	return n == 1, nil
}

// Finish terminates a PROCESSING request with its result document and the
// measured duration. status must be COMPLETED or FAILED.
func (s *Store) Finish(ctx context.Context, id string, status Status, result []byte, durationMS int64) error {
	if status != StatusCompleted && status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %q", status)
	}
	if durationMS < 0 {
		durationMS = 0
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE execution_requests
SET status = ?, result_output = ?, execution_time_ms = ?, completed_at = ?
WHERE req_id = ? AND status = ?;
`, status, resultVal(result), durationMS, now, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("finish request %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish request %q: %w", id, err)
	}
	if n != 1 {
		return fmt.Errorf("finish request %q: not in PROCESSING", id)
	}
	return nil
}

// CountByStatus returns the number of requests in a given status.
func (s *Store) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM execution_requests WHERE status = ?;", status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// ListByCampaign returns all requests created for a campaign, oldest first.
func (s *Store) ListByCampaign(ctx context.Context, campaignID string) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT req_id, function_code, user_id, input_payload, status, result_output,
       execution_time_ms, campaign_id, created_at, started_at, completed_at
FROM execution_requests
WHERE campaign_id = ?
ORDER BY created_at ASC, rowid ASC;
`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountOutstandingForCampaign counts QUEUED/PROCESSING requests of a given
// function code tied to a campaign. The recovery sweep uses this to decide
// whether a stuck campaign still has a dispatch in flight.
func (s *Store) CountOutstandingForCampaign(ctx context.Context, campaignID, functionCode string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM execution_requests
WHERE campaign_id = ? AND function_code = ? AND status IN (?, ?);
`, campaignID, functionCode, StatusQueued, StatusProcessing).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outstanding campaign requests: %w", err)
	}
	return n, nil
}

func resultVal(result []byte) any {
	if len(result) == 0 {
		return nil
	}
	return string(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		r           Request
		payload     sql.NullString
		statusS     string
		result      sql.NullString
		execMS      sql.NullInt64
		campaignID  sql.NullString
		createdAtS  string
		startedAtS  sql.NullString
		completedAt sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.FunctionCode, &r.UserID, &payload, &statusS, &result,
		&execMS, &campaignID, &createdAtS, &startedAtS, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = Status(statusS)
	if payload.Valid {
		r.Payload = []byte(payload.String)
	}
	if result.Valid {
		r.Result = []byte(result.String)
	}
	if execMS.Valid {
		r.ExecutionTimeMS = &execMS.Int64
	}
	if campaignID.Valid {
		r.CampaignID = &campaignID.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		r.CreatedAt = t
	}
	if startedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAtS.String); err == nil {
			r.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
			r.CompletedAt = &t
		}
	}
	return &r, nil
}
