package request

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of an execution request. Transitions are
// monotonic: QUEUED -> PROCESSING -> {COMPLETED, FAILED, DENIED_BILLING},
// where DENIED_BILLING and FAILED may also be reached straight from QUEUED
// (admission and catalog rejections happen before processing starts).
type Status string

const (
	StatusQueued        Status = "QUEUED"
	StatusProcessing    Status = "PROCESSING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusDeniedBilling Status = "DENIED_BILLING"
)

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusDeniedBilling:
		return true
	}
	return false
}

// Request is one durable invocation record. Requests are never deleted;
// they are retained for audit.
type Request struct {
	ID              string
	FunctionCode    string
	UserID          string
	Payload         json.RawMessage
	Status          Status
	Result          json.RawMessage
	ExecutionTimeMS *int64
	CampaignID      *string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// EnqueueRequest is the input for creating a QUEUED request.
type EnqueueRequest struct {
	// RequestID overrides the generated id when set. The scheduler and
	// dispatcher use prefixed ids ("sch-", "sub-") for traceability.
	RequestID    string
	FunctionCode string
	UserID       string
	Payload      json.RawMessage
	CampaignID   *string
}

var ErrNotFound = errors.New("request not found")
