package scheduler

import (
	"context"
	"time"

	"github.com/mproulx/herald/internal/campaign"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mproulx/herald/internal/scheduler CampaignStore,RequestStore

// CampaignStore defines the campaign operations used by the scheduler.
type CampaignStore interface {
	Due(ctx context.Context, now time.Time) ([]*campaign.Campaign, error)
	PromoteDispatch(ctx context.Context, c *campaign.Campaign) (string, error)
	StuckProcessing(ctx context.Context, cutoff time.Time) ([]*campaign.Campaign, error)
	ReDispatch(ctx context.Context, c *campaign.Campaign) (string, error)
}

// RequestStore defines the request operations used by the recovery sweep.
type RequestStore interface {
	CountOutstandingForCampaign(ctx context.Context, campaignID, functionCode string) (int, error)
}
