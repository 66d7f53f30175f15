package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/mproulx/herald/internal/campaign"
	"github.com/mproulx/herald/internal/catalog"
	"github.com/mproulx/herald/internal/log"
	"github.com/mproulx/herald/internal/session"
)

// HandlerLocator is the registry key the bulk handler is installed under.
const HandlerLocator = "sender.bulk"

// BulkResult is the handler output document.
type BulkResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Bulk delivers one target slice through one session, pacing sends with a
// randomized delay. It runs as the catalog handler behind
// campaign.FunctionSendBulk.
type Bulk struct {
	messenger Messenger
	sessions  *session.Store
	campaigns *campaign.Store
	logger    *slog.Logger
}

func NewBulk(m Messenger, sessions *session.Store, campaigns *campaign.Store) *Bulk {
	return &Bulk{
		messenger: m,
		sessions:  sessions,
		campaigns: campaigns,
		logger:    log.WithComponent("sender"),
	}
}

// Handle works through the batch one target at a time. A PermanentError
// from the messenger demotes the session and fails the rest of the batch;
// any other send error fails only that target. Progress is written back to
// the campaign exactly once, whatever path the batch takes.
func (b *Bulk) Handle(ctx context.Context, inv catalog.Invocation, payload json.RawMessage) (json.RawMessage, error) {
	var task campaign.SendTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("decode send task: %w", err)
	}
	if task.CampaignID == "" {
		return nil, fmt.Errorf("send task has no campaign id")
	}
	if len(task.Targets) == 0 {
		return nil, fmt.Errorf("send task has no targets")
	}

	logger := b.logger.With("campaign_id", task.CampaignID, "session_id", task.SessionID)

	var sent, failed int
	var batchErr error

	for i, target := range task.Targets {
		if i > 0 {
			if err := b.pause(ctx, task.DelayMinSeconds, task.DelayMaxSeconds); err != nil {
				failed += len(task.Targets) - i
				batchErr = err
				break
			}
		}

		err := b.messenger.Send(ctx, task.SessionLocator, target, task.Message)
		if err == nil {
			sent++
			continue
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			logger.Warn("session demoted mid-batch",
				"status", perm.Status,
				"remaining", len(task.Targets)-i,
				"error", err,
			)
			if serr := b.sessions.SetStatus(context.WithoutCancel(ctx), task.SessionID, perm.Status); serr != nil {
				logger.Error("failed to demote session", "error", serr)
			}
			failed += len(task.Targets) - i
			break
		}

		logger.Warn("send failed", "target", target, "error", err)
		failed++
	}

	// The write-back must land even when the batch died to cancellation or
	// the handler deadline, or the campaign never reaches COMPLETED.
	done, err := b.campaigns.AddProgress(context.WithoutCancel(ctx), task.CampaignID, sent, failed)
	if err != nil {
		return nil, fmt.Errorf("record campaign progress: %w", err)
	}
	if done {
		logger.Info("campaign completed", "sent", sent, "failed", failed)
	}

	if batchErr != nil {
		return nil, batchErr
	}

	out, merr := json.Marshal(BulkResult{Sent: sent, Failed: failed})
	if merr != nil {
		return nil, fmt.Errorf("marshal send result: %w", merr)
	}
	logger.Info("batch delivered", "sent", sent, "failed", failed)
	return out, nil
}

// pause sleeps a random duration in [min, max] seconds, returning early if
// ctx is cancelled.
func (b *Bulk) pause(ctx context.Context, minSeconds, maxSeconds int) error {
	if minSeconds < 0 {
		minSeconds = 0
	}
	if maxSeconds < minSeconds {
		maxSeconds = minSeconds
	}

	d := time.Duration(minSeconds) * time.Second
	if span := maxSeconds - minSeconds; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)+1)) * time.Second
	}
	if d == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
