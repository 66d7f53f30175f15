package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mproulx/herald/internal/audit"
	"github.com/mproulx/herald/internal/catalog"
	"github.com/mproulx/herald/internal/log"
	"github.com/mproulx/herald/internal/request"
	"github.com/mproulx/herald/internal/session"
	"github.com/mproulx/herald/internal/target"
)

// Dispatcher shards a campaign's targets across the owner's active sessions
// into sender sub-requests. It runs as the catalog handler behind
// FunctionDispatch, so each dispatch is itself a tracked execution request.
type Dispatcher struct {
	campaigns *Store
	sessions  *session.Store
	targets   *target.Loader
	requests  *request.Store
	audit     *audit.Logger
	logger    *slog.Logger
}

func NewDispatcher(campaigns *Store, sessions *session.Store, targets *target.Loader, requests *request.Store, auditLog *audit.Logger) *Dispatcher {
	return &Dispatcher{
		campaigns: campaigns,
		sessions:  sessions,
		targets:   targets,
		requests:  requests,
		audit:     auditLog,
		logger:    log.WithComponent("dispatcher"),
	}
}

// HandlerLocator is the registry key the dispatcher is installed under.
const HandlerLocator = "campaign.dispatch"

// DispatchResult is the handler output document.
type DispatchResult struct {
	Status            string `json:"status"`
	DispatchedBatches int    `json:"dispatched_batches"`
	TotalTargets      int    `json:"total_targets"`
}

// Handle expands one campaign into sub-requests. Any failure while loading
// or sharding marks the whole campaign FAILED; sub-requests already created
// by a failed attempt are not rolled back.
func (d *Dispatcher) Handle(ctx context.Context, inv catalog.Invocation, payload json.RawMessage) (json.RawMessage, error) {
	var task DispatchTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("decode dispatch payload: %w", err)
	}
	if task.CampaignID == "" {
		return nil, fmt.Errorf("dispatch payload has no campaign id")
	}

	logger := d.logger.With("campaign_id", task.CampaignID)

	c, err := d.campaigns.Get(ctx, task.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}

	if err := d.audit.Record(ctx, inv.RequestID, c.UserID, audit.ActionCampaignStart,
		fmt.Sprintf("Dispatching campaign %s", c.ID)); err != nil {
		logger.Warn("failed to record campaign audit entry", "error", err)
	}

	result, err := d.dispatch(ctx, c, logger)
	if err != nil {
		if ferr := d.campaigns.MarkFailed(ctx, c.ID); ferr != nil {
			logger.Error("failed to mark campaign failed", "error", ferr)
		}
		return nil, err
	}

	out, merr := json.Marshal(result)
	if merr != nil {
		return nil, fmt.Errorf("marshal dispatch result: %w", merr)
	}
	return out, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, c *Campaign, logger *slog.Logger) (*DispatchResult, error) {
	if err := d.campaigns.MarkRunning(ctx, c.ID); err != nil {
		return nil, err
	}

	list, err := d.targets.Get(ctx, c.TargetListID)
	if err != nil {
		return nil, fmt.Errorf("load target list: %w", err)
	}
	if list.TotalCount == 0 {
		return nil, fmt.Errorf("target list %q is empty", list.ID)
	}

	active, err := d.sessions.ListActive(ctx, c.UserID, c.SessionTag)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("no active sessions available")
	}

	// Equal chunks, no rebalancing: ceil guarantees chunkSize*len(active)
	// covers the list, so at most len(active) batches come out and trailing
	// sessions may simply go unused.
	chunkSize := (list.TotalCount + len(active) - 1) / len(active)

	var (
		batch      = make([]string, 0, chunkSize)
		batchIdx   = 0
		dispatched = 0
		streamed   = 0
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if batchIdx >= len(active) {
			return fmt.Errorf("target stream produced more than %d batches", len(active))
		}
		sess := active[batchIdx]
		if err := d.enqueueSendTask(ctx, c, sess, batch); err != nil {
			return err
		}
		streamed += len(batch)
		dispatched++
		batchIdx++
		batch = make([]string, 0, chunkSize)
		return nil
	}

	var streamErr error
	err = d.targets.Stream(ctx, list.ID, func(t string) bool {
		batch = append(batch, t)
		if len(batch) == chunkSize {
			if streamErr = flush(); streamErr != nil {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("stream targets: %w", err)
	}
	if streamErr != nil {
		return nil, streamErr
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if err := d.campaigns.SetTotalTargets(ctx, c.ID, streamed); err != nil {
		return nil, err
	}

	logger.Info("campaign dispatched",
		"batches", dispatched,
		"total_targets", streamed,
		"active_sessions", len(active),
		"chunk_size", chunkSize,
	)

	return &DispatchResult{
		Status:            "success",
		DispatchedBatches: dispatched,
		TotalTargets:      streamed,
	}, nil
}

func (d *Dispatcher) enqueueSendTask(ctx context.Context, c *Campaign, sess *session.Session, targets []string) error {
	payload, err := json.Marshal(SendTask{
		CampaignID:      c.ID,
		Targets:         targets,
		Message:         c.Message,
		SessionID:       sess.ID,
		SessionLocator:  sess.Locator,
		DelayMinSeconds: c.DelayMinSeconds,
		DelayMaxSeconds: c.DelayMaxSeconds,
	})
	if err != nil {
		return fmt.Errorf("marshal send task: %w", err)
	}

	_, err = d.requests.Enqueue(ctx, request.EnqueueRequest{
		RequestID:    "sub-" + uuid.NewString(),
		FunctionCode: FunctionSendBulk,
		UserID:       c.UserID,
		Payload:      payload,
		CampaignID:   &c.ID,
	})
	if err != nil {
		return fmt.Errorf("enqueue send task: %w", err)
	}
	return nil
}
