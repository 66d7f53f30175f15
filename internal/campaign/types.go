package campaign

import (
	"errors"
	"time"
)

// Function codes the campaign machinery installs in the catalog.
const (
	// FunctionDispatch expands a due campaign into per-session sub-tasks.
	FunctionDispatch = "FN_CAMPAIGN_DISPATCH"
	// FunctionSendBulk delivers one target slice through one session.
	FunctionSendBulk = "FN_MSG_SENDER_V1"
)

// Status is the lifecycle state of a campaign.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScheduled Status = "SCHEDULED"
	// StatusProcessing means the scheduler has claimed the campaign and a
	// dispatch request is (or was) in flight. The flip to PROCESSING is the
	// sole dispatch guard against re-selection on later ticks.
	StatusProcessing Status = "PROCESSING"
	StatusRunning    Status = "RUNNING"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Campaign is one bulk operation definition.
type Campaign struct {
	ID              string
	UserID          string
	Name            string
	Status          Status
	TargetListID    string
	Message         string
	DelayMinSeconds int
	DelayMaxSeconds int
	SessionTag      string
	ScheduledAt     *time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	TotalTargets    int
	SentCount       int
	FailCount       int
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// CreateRequest is the input for registering a campaign. A nil ScheduledAt
// leaves the campaign in DRAFT.
type CreateRequest struct {
	UserID          string
	Name            string
	TargetListID    string
	Message         string
	DelayMinSeconds int
	DelayMaxSeconds int
	SessionTag      string
	ScheduledAt     *time.Time
}

// SendTask is the payload of one sender sub-request: a slice of targets
// bound to a single session.
type SendTask struct {
	CampaignID      string   `json:"campaign_id"`
	Targets         []string `json:"targets"`
	Message         string   `json:"message"`
	SessionID       string   `json:"session_id"`
	SessionLocator  string   `json:"session_locator"`
	DelayMinSeconds int      `json:"delay_min_seconds"`
	DelayMaxSeconds int      `json:"delay_max_seconds"`
}

// DispatchTask is the payload of the scheduler-created dispatch request.
type DispatchTask struct {
	CampaignID string `json:"campaign_id"`
}

var ErrNotFound = errors.New("campaign not found")
