package api

import (
	"encoding/json"
	"time"
)

// EnqueueBody is the JSON body for POST /v1/requests.
type EnqueueBody struct {
	FunctionCode string          `json:"function_code"`
	UserID       string          `json:"user_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// EnqueueResponse is returned on successful request enqueue.
type EnqueueResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// RequestStatusResponse is returned by GET /v1/requests/{requestID}.
type RequestStatusResponse struct {
	RequestID       string          `json:"request_id"`
	FunctionCode    string          `json:"function_code"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	Result          json.RawMessage `json:"result,omitempty"`
	ExecutionTimeMS *int64          `json:"execution_time_ms,omitempty"`
	CampaignID      *string         `json:"campaign_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// AuditEntryData is one row of GET /v1/requests/{requestID}/audit.
type AuditEntryData struct {
	LogID     int64     `json:"log_id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditTrailResponse is returned by GET /v1/requests/{requestID}/audit.
type AuditTrailResponse struct {
	RequestID string           `json:"request_id"`
	Entries   []AuditEntryData `json:"entries"`
}

// CampaignBody is the JSON body for POST /v1/campaigns.
type CampaignBody struct {
	UserID          string     `json:"user_id"`
	Name            string     `json:"name"`
	TargetListID    string     `json:"target_list_id"`
	Message         string     `json:"message"`
	DelayMinSeconds int        `json:"delay_min_seconds,omitempty"`
	DelayMaxSeconds int        `json:"delay_max_seconds,omitempty"`
	SessionTag      string     `json:"session_tag,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
}

// ScheduleBody is the JSON body for POST /v1/campaigns/{campaignID}/schedule.
type ScheduleBody struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

// CampaignResponse describes one campaign.
type CampaignResponse struct {
	CampaignID   string     `json:"campaign_id"`
	UserID       string     `json:"user_id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	TargetListID string     `json:"target_list_id"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	TotalTargets int        `json:"total_targets"`
	SentCount    int        `json:"sent_count"`
	FailCount    int        `json:"fail_count"`
}

// TargetImportResponse is returned by POST /v1/targets.
type TargetImportResponse struct {
	ListID      string `json:"list_id"`
	TotalCount  int    `json:"total_count"`
	Fingerprint string `json:"fingerprint"`
}

// TargetListResponse is returned by GET /v1/targets/{targetListID}.
type TargetListResponse struct {
	ListID      string    `json:"list_id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	TotalCount  int       `json:"total_count"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionBody is the JSON body for POST /v1/sessions.
type SessionBody struct {
	UserID  string `json:"user_id"`
	Phone   string `json:"phone"`
	Locator string `json:"locator"`
	Tag     string `json:"tag,omitempty"`
}

// SessionStatusBody is the JSON body for POST /v1/sessions/{sessionID}/status.
type SessionStatusBody struct {
	Status string `json:"status"`
}

// SessionResponse describes one session.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Phone     string `json:"phone"`
	Tag       string `json:"tag,omitempty"`
	Status    string `json:"status"`
}

// FunctionBody is the JSON body for POST /v1/functions (descriptor upsert).
type FunctionBody struct {
	FunctionCode   string `json:"function_code"`
	FunctionName   string `json:"function_name"`
	HandlerLocator string `json:"handler_locator"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Category       string `json:"category,omitempty"`
	Active         *bool  `json:"active,omitempty"`
}

// FunctionSummary is one row of GET /v1/functions.
type FunctionSummary struct {
	FunctionCode   string `json:"function_code"`
	FunctionName   string `json:"function_name"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Category       string `json:"category,omitempty"`
	Active         bool   `json:"active"`
}

// TickResponse is returned by POST /v1/scheduler/tick.
type TickResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	QueueDepth      int    `json:"queue_depth"`
	FunctionsLoaded int    `json:"functions_loaded"`
}
