package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/pkg/logger"
	"github.com/civicworks/councilmail/internal/pkg/metrics"
	"github.com/google/uuid"
)

// Service records engagement events and derives campaign metrics.
// Safe for concurrent use.
type Service struct {
	events       Repository
	campaigns    CampaignSource
	suppr        SuppressionAdder
	recordBudget time.Duration
}

// openWriteTimeout caps the detached open-event write so a wedged store
// cannot pin goroutines indefinitely.
const openWriteTimeout = 10 * time.Second

// NewService creates an engagement service. recordBudget caps how long
// RecordOpen waits for the write before handing back to the caller.
func NewService(events Repository, campaigns CampaignSource, suppr SuppressionAdder, recordBudget time.Duration) *Service {
	if recordBudget <= 0 {
		recordBudget = 500 * time.Millisecond
	}
	return &Service{
		events:       events,
		campaigns:    campaigns,
		suppr:        suppr,
		recordBudget: recordBudget,
	}
}

// RecordOpen appends an open event. It never returns an error: the
// tracking pixel must render whether or not the write lands. The write
// runs on a detached context so a client hanging up mid-request cannot
// cancel it; if the store is slower than the record budget the caller
// gets control back and the write finishes in the background.
func (s *Service) RecordOpen(_ context.Context, councillorID, campaignID, contactID, userAgent string) {
	if campaignID == "" || contactID == "" {
		return
	}

	e := &domain.EngagementEvent{
		ID:           uuid.New().String(),
		CouncillorID: councillorID,
		CampaignID:   campaignID,
		ContactID:    contactID,
		Type:         domain.EventOpen,
		UserAgent:    userAgent,
		OccurredAt:   time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), openWriteTimeout)
	done := make(chan struct{})
	go func() {
		defer cancel()
		defer close(done)
		if err := s.events.Append(ctx, e); err != nil {
			logger.Warn("open event dropped", "campaign_id", campaignID, "contact_id", contactID, "err", err)
			return
		}
		metrics.EngagementEvents.WithLabelValues(string(domain.EventOpen)).Inc()
	}()

	select {
	case <-done:
	case <-time.After(s.recordBudget):
		logger.Debug("open write still in flight, not holding the pixel", "campaign_id", campaignID)
	}
}

// RecordUnsubscribe opts the address out and appends an unsubscribe
// event. The suppression write is the authoritative side effect: its
// failure is returned so the caller can tell the recipient to retry.
// Repeated unsubscribes are acknowledged without duplicating the
// suppression entry.
func (s *Service) RecordUnsubscribe(ctx context.Context, councillorID, email, campaignID, contactID string) error {
	if _, err := s.suppr.Add(ctx, councillorID, email, campaignID, contactID); err != nil {
		return fmt.Errorf("record unsubscribe: %w", err)
	}

	e := &domain.EngagementEvent{
		ID:           uuid.New().String(),
		CouncillorID: councillorID,
		CampaignID:   campaignID,
		ContactID:    contactID,
		Type:         domain.EventUnsubscribe,
		OccurredAt:   time.Now().UTC(),
	}
	// The opt-out is already durable; a lost event only skews metrics.
	if err := s.events.Append(ctx, e); err != nil {
		logger.Warn("unsubscribe event dropped", "campaign_id", campaignID, "err", err)
		return nil
	}
	metrics.EngagementEvents.WithLabelValues(string(domain.EventUnsubscribe)).Inc()
	return nil
}

// Metrics derives a campaign's engagement metrics from its stored
// dispatch counters and the event log. Unique counts are per contact;
// a contact's first open decides the campaign's first-open timestamp.
func (s *Service) Metrics(ctx context.Context, councillorID, campaignID string) (*domain.CampaignMetrics, error) {
	c, err := s.campaigns.Get(ctx, councillorID, campaignID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.EventsForCampaign(ctx, councillorID, campaignID)
	if err != nil {
		return nil, err
	}

	m := &domain.CampaignMetrics{
		CampaignID:                c.ID,
		TotalTargeted:             c.TotalTargeted,
		TotalSent:                 c.TotalSent,
		TotalFailed:               c.TotalFailed,
		TotalFilteredUnsubscribed: c.TotalFilteredUnsubscribed,
	}

	firstOpen := make(map[string]time.Time)
	unsubscribed := make(map[string]bool)
	for _, e := range events {
		switch e.Type {
		case domain.EventOpen:
			m.TotalOpens++
			if prev, ok := firstOpen[e.ContactID]; !ok || e.OccurredAt.Before(prev) {
				firstOpen[e.ContactID] = e.OccurredAt
			}
		case domain.EventUnsubscribe:
			m.TotalUnsubscribes++
			unsubscribed[e.ContactID] = true
		}
	}
	m.UniqueOpens = len(firstOpen)
	m.UniqueUnsubscribes = len(unsubscribed)

	for _, ts := range firstOpen {
		if m.FirstOpenAt == nil || ts.Before(*m.FirstOpenAt) {
			m.FirstOpenAt = &ts
		}
	}

	if m.TotalSent > 0 {
		m.OpenRate = float64(m.TotalOpens) / float64(m.TotalSent) * 100
		m.UnsubscribeRate = float64(m.TotalUnsubscribes) / float64(m.TotalSent) * 100
	}
	return m, nil
}
