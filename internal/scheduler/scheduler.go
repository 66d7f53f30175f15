// Package scheduler promotes due campaigns into dispatch requests on a
// fixed tick, and recovers campaigns whose dispatch was lost to a crash.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mproulx/herald/internal/campaign"
	"github.com/mproulx/herald/internal/config"
	"github.com/mproulx/herald/internal/events"
)

// Scheduler runs the periodic due-campaign sweep.
type Scheduler struct {
	cfg       *config.Config
	campaigns CampaignStore
	requests  RequestStore
	events    *events.Hub
	logger    *slog.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates a Scheduler instance.
func New(cfg *config.Config, campaigns CampaignStore, requests RequestStore, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if hub == nil {
		hub = events.NewHub(128)
	}
	return &Scheduler{
		cfg:       cfg,
		campaigns: campaigns,
		requests:  requests,
		events:    hub,
		logger:    logger.With("component", "scheduler"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the scheduler's tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler", "tick_interval", s.cfg.Service.TickInterval)
	s.wg.Add(1)
	go s.tickLoop(ctx)
	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// ForceTick runs one scheduling pass outside the regular interval. Used by
// the API and operator tooling.
func (s *Scheduler) ForceTick(ctx context.Context) {
	s.tick(ctx)
}

// tickLoop is the main scheduling loop.
func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	// Initial tick immediately
	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Service.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.logger.Warn("Scheduler context cancelled, stopping tick loop")
			return
		}
	}
}

// tick performs a single scheduling pass: promote every due campaign, then
// sweep for stuck ones. Each campaign is handled in isolation so one bad
// row never starves the rest of the pass.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	s.logger.Debug("Scheduler tick")
	s.events.Publish("scheduler.tick", map[string]any{"at": now})

	due, err := s.campaigns.Due(ctx, now)
	if err != nil {
		s.logger.Error("Failed to query due campaigns", "error", err)
	} else {
		for _, c := range due {
			s.promote(ctx, c)
		}
	}

	if s.cfg.Service.StuckWindow > 0 {
		s.recoverStuck(ctx, now.Add(-s.cfg.Service.StuckWindow))
	}
}

// promote flips one due campaign to PROCESSING and enqueues its dispatch
// request. Losing the flip to a concurrent promoter is a silent skip, which
// is what makes re-ticking over the same campaign idempotent.
func (s *Scheduler) promote(ctx context.Context, c *campaign.Campaign) {
	reqID, err := s.campaigns.PromoteDispatch(ctx, c)
	if err != nil {
		s.events.Publish("campaign.dispatch_failed", map[string]any{
			"campaign_id": c.ID,
			"error":       err.Error(),
		})
		s.logger.Error("Failed to promote campaign", "campaign_id", c.ID, "error", err)
		return
	}
	if reqID == "" {
		s.logger.Debug("Campaign already promoted", "campaign_id", c.ID)
		return
	}

	s.events.Publish("campaign.promoted", map[string]any{
		"campaign_id": c.ID,
		"request_id":  reqID,
	})
	s.logger.Info("Promoted due campaign", "campaign_id", c.ID, "request_id", reqID)
}

// recoverStuck re-triggers campaigns stuck in PROCESSING with no dispatch
// request left in flight. A campaign with an outstanding dispatch is left
// alone; it is slow, not lost.
func (s *Scheduler) recoverStuck(ctx context.Context, cutoff time.Time) {
	stuck, err := s.campaigns.StuckProcessing(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to query stuck campaigns", "error", err)
		return
	}

	for _, c := range stuck {
		outstanding, err := s.requests.CountOutstandingForCampaign(ctx, c.ID, campaign.FunctionDispatch)
		if err != nil {
			s.logger.Error("Failed recovery checks", "campaign_id", c.ID, "error", err)
			continue
		}
		if outstanding > 0 {
			s.logger.Debug("Stuck campaign still has dispatch in flight", "campaign_id", c.ID, "outstanding", outstanding)
			continue
		}

		reqID, err := s.campaigns.ReDispatch(ctx, c)
		if err != nil {
			s.logger.Error("Failed to re-dispatch stuck campaign", "campaign_id", c.ID, "error", err)
			continue
		}
		s.events.Publish("campaign.redispatched", map[string]any{
			"campaign_id": c.ID,
			"request_id":  reqID,
		})
		s.logger.Warn("Re-dispatched stuck campaign", "campaign_id", c.ID, "request_id", reqID)
	}
}
