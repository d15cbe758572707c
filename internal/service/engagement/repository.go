package engagement

import (
	"context"

	"github.com/civicworks/councilmail/internal/domain"
)

// Repository is the append-only engagement event log.
type Repository interface {
	// Append stores one event. Events are immutable once written.
	Append(ctx context.Context, e *domain.EngagementEvent) error

	// EventsForCampaign returns all events for one campaign in
	// append order.
	EventsForCampaign(ctx context.Context, councillorID, campaignID string) ([]domain.EngagementEvent, error)
}

// CampaignSource provides the stored dispatch counters that event-derived
// metrics are joined with. Satisfied by campaign.Repository.
type CampaignSource interface {
	Get(ctx context.Context, councillorID, id string) (*domain.Campaign, error)
}

// SuppressionAdder opts an address out for a councillor. Satisfied by
// *suppression.Service.
type SuppressionAdder interface {
	Add(ctx context.Context, councillorID, email, campaignID, contactID string) (*domain.Suppression, error)
}
