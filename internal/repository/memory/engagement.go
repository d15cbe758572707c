package memory

import (
	"context"
	"sync"

	"github.com/civicworks/councilmail/internal/domain"
)

// EngagementRepo implements engagement.Repository in memory. Events are
// held in append order.
type EngagementRepo struct {
	mu     sync.RWMutex
	events []domain.EngagementEvent
}

// NewEngagementRepo creates an empty in-memory event log.
func NewEngagementRepo() *EngagementRepo { return &EngagementRepo{} }

func (r *EngagementRepo) Append(_ context.Context, e *domain.EngagementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *EngagementRepo) EventsForCampaign(_ context.Context, councillorID, campaignID string) ([]domain.EngagementEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.EngagementEvent
	for _, e := range r.events {
		if e.CouncillorID == councillorID && e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out, nil
}
