package campaign

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mproulx/herald/internal/request"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create registers a campaign. With a scheduled time it enters SCHEDULED
// and becomes eligible for the next due sweep; otherwise it stays DRAFT.
func (s *Store) Create(ctx context.Context, req CreateRequest) (string, error) {
	if req.UserID == "" {
		return "", fmt.Errorf("user id is empty")
	}
	if req.Name == "" {
		return "", fmt.Errorf("campaign name is empty")
	}
	if req.TargetListID == "" {
		return "", fmt.Errorf("target list id is empty")
	}
	if req.DelayMinSeconds <= 0 {
		req.DelayMinSeconds = 5
	}
	if req.DelayMaxSeconds < req.DelayMinSeconds {
		req.DelayMaxSeconds = req.DelayMinSeconds
	}

	status := StatusDraft
	var scheduledAt any
	if req.ScheduledAt != nil {
		status = StatusScheduled
		scheduledAt = req.ScheduledAt.UTC().Format(time.RFC3339Nano)
	}

	id := "cmp-" + uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO campaigns(
  campaign_id, user_id, name, status, target_list_id, message,
  delay_min_seconds, delay_max_seconds, session_tag, scheduled_at, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, id, req.UserID, req.Name, status, req.TargetListID, req.Message,
		req.DelayMinSeconds, req.DelayMaxSeconds, req.SessionTag, scheduledAt, now)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return id, nil
}

// Schedule moves a DRAFT campaign to SCHEDULED at the given time.
func (s *Store) Schedule(ctx context.Context, id string, at time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE campaigns
SET status = ?, scheduled_at = ?, updated_at = ?
WHERE campaign_id = ? AND status = ?;
`, StatusScheduled, at.UTC().Format(time.RFC3339Nano), now, id, StatusDraft)
	if err != nil {
		return fmt.Errorf("schedule campaign %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule campaign %q: %w", id, err)
	}
	if n != 1 {
		return fmt.Errorf("campaign %q is not in DRAFT", id)
	}
	return nil
}

// Get loads a campaign by id.
func (s *Store) Get(ctx context.Context, id string) (*Campaign, error) {
	row := s.db.QueryRowContext(ctx, selectCampaign+" WHERE campaign_id = ?;", id)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign %q: %w", id, err)
	}
	return c, nil
}

// Due returns SCHEDULED campaigns whose scheduled time has passed, oldest
// first.
func (s *Store) Due(ctx context.Context, now time.Time) ([]*Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCampaign+` WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at ASC, campaign_id ASC;`,
		StatusScheduled, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query due campaigns: %w", err)
	}
	defer rows.Close()
	return scanCampaigns(rows)
}

// PromoteDispatch atomically flips a due campaign SCHEDULED -> PROCESSING
// and enqueues its dispatch request in the same transaction. Returns the
// dispatch request id, or "" if another promoter won the flip. The single
// transaction closes the crash window between promotion and trigger
// creation: either both commit or neither does.
func (s *Store) PromoteDispatch(ctx context.Context, c *Campaign) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx, `
UPDATE campaigns
SET status = ?, updated_at = ?
WHERE campaign_id = ? AND status = ?;
`, StatusProcessing, now, c.ID, StatusScheduled)
	if err != nil {
		return "", fmt.Errorf("promote campaign %q: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("promote campaign %q: %w", c.ID, err)
	}
	if n != 1 {
		// Already promoted; nothing to dispatch.
		return "", nil
	}

	payload, err := json.Marshal(DispatchTask{CampaignID: c.ID})
	if err != nil {
		return "", fmt.Errorf("marshal dispatch payload: %w", err)
	}

	reqID, err := request.EnqueueIn(ctx, tx, request.EnqueueRequest{
		RequestID:    "sch-" + uuid.NewString(),
		FunctionCode: FunctionDispatch,
		UserID:       c.UserID,
		Payload:      payload,
		CampaignID:   &c.ID,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue dispatch request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit promotion: %w", err)
	}
	return reqID, nil
}

// ReDispatch enqueues a fresh dispatch request for a campaign already in
// PROCESSING. The recovery sweep uses it for campaigns whose original
// dispatch request was lost.
func (s *Store) ReDispatch(ctx context.Context, c *Campaign) (string, error) {
	payload, err := json.Marshal(DispatchTask{CampaignID: c.ID})
	if err != nil {
		return "", fmt.Errorf("marshal dispatch payload: %w", err)
	}
	reqID, err := request.EnqueueIn(ctx, s.db, request.EnqueueRequest{
		RequestID:    "sch-" + uuid.NewString(),
		FunctionCode: FunctionDispatch,
		UserID:       c.UserID,
		Payload:      payload,
		CampaignID:   &c.ID,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue recovery dispatch: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx,
		"UPDATE campaigns SET updated_at = ? WHERE campaign_id = ?;", now, c.ID); err != nil {
		return "", fmt.Errorf("touch campaign %q: %w", c.ID, err)
	}
	return reqID, nil
}

// MarkRunning moves a PROCESSING campaign to RUNNING and stamps its start.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE campaigns
SET status = ?, started_at = ?, updated_at = ?
WHERE campaign_id = ? AND status = ?;
`, StatusRunning, now, now, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark campaign %q running: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark campaign %q running: %w", id, err)
	}
	if n != 1 {
		return fmt.Errorf("campaign %q is not in PROCESSING", id)
	}
	return nil
}

// MarkFailed terminates a campaign. Terminal states are never overwritten.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
UPDATE campaigns
SET status = ?, ended_at = ?, updated_at = ?
WHERE campaign_id = ? AND status NOT IN (?, ?);
`, StatusFailed, now, now, id, StatusCompleted, StatusFailed)
	if err != nil {
		return fmt.Errorf("mark campaign %q failed: %w", id, err)
	}
	return nil
}

// SetTotalTargets records the authoritative target count after dispatch.
func (s *Store) SetTotalTargets(ctx context.Context, id string, total int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"UPDATE campaigns SET total_targets = ?, updated_at = ? WHERE campaign_id = ?;",
		total, now, id)
	if err != nil {
		return fmt.Errorf("set campaign %q total targets: %w", id, err)
	}
	return nil
}

// AddProgress accumulates sub-task results onto the parent campaign and
// completes it once every target is accounted for. Returns whether this
// write completed the campaign.
func (s *Store) AddProgress(ctx context.Context, id string, sent, failed int) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
UPDATE campaigns
SET sent_count = sent_count + ?, fail_count = fail_count + ?, updated_at = ?
WHERE campaign_id = ?;
`, sent, failed, now, id)
	if err != nil {
		return false, fmt.Errorf("add campaign %q progress: %w", id, err)
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE campaigns
SET status = ?, ended_at = ?, updated_at = ?
WHERE campaign_id = ? AND status = ? AND total_targets > 0
  AND sent_count + fail_count >= total_targets;
`, StatusCompleted, now, now, id, StatusRunning)
	if err != nil {
		return false, fmt.Errorf("complete campaign %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete campaign %q: %w", id, err)
	}
	return n == 1, nil
}

// StuckProcessing returns campaigns that have sat in PROCESSING since
// before cutoff. Callers decide whether a dispatch is still in flight.
func (s *Store) StuckProcessing(ctx context.Context, cutoff time.Time) ([]*Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCampaign+` WHERE status = ? AND updated_at <= ? ORDER BY campaign_id ASC;`,
		StatusProcessing, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query stuck campaigns: %w", err)
	}
	defer rows.Close()
	return scanCampaigns(rows)
}

const selectCampaign = `
SELECT campaign_id, user_id, name, status, target_list_id, COALESCE(message, ''),
       delay_min_seconds, delay_max_seconds, COALESCE(session_tag, ''),
       scheduled_at, started_at, ended_at, total_targets, sent_count, fail_count,
       created_at, updated_at
FROM campaigns`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*Campaign, error) {
	var (
		c            Campaign
		statusS      string
		targetListID sql.NullString
		scheduledAtS sql.NullString
		startedAtS   sql.NullString
		endedAtS     sql.NullString
		createdAtS   string
		updatedAtS   sql.NullString
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &statusS, &targetListID, &c.Message,
		&c.DelayMinSeconds, &c.DelayMaxSeconds, &c.SessionTag,
		&scheduledAtS, &startedAtS, &endedAtS, &c.TotalTargets, &c.SentCount, &c.FailCount,
		&createdAtS, &updatedAtS,
	)
	if err != nil {
		return nil, err
	}
	c.Status = Status(statusS)
	if targetListID.Valid {
		c.TargetListID = targetListID.String
	}
	c.ScheduledAt = parseTimePtr(scheduledAtS)
	c.StartedAt = parseTimePtr(startedAtS)
	c.EndedAt = parseTimePtr(endedAtS)
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		c.CreatedAt = t
	}
	c.UpdatedAt = parseTimePtr(updatedAtS)
	return &c, nil
}

func scanCampaigns(rows *sql.Rows) ([]*Campaign, error) {
	var out []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s.String); err == nil {
		return &t
	}
	return nil
}
