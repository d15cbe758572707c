package suppression

import (
	"context"
	"strings"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/pkg/logger"
	"github.com/civicworks/councilmail/internal/service/contacts"
	"github.com/google/uuid"
)

// Service implements suppression business logic. Safe for concurrent use
// if the underlying repository is.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Add puts an address on the opt-out list. Idempotent: if the address is
// already suppressed the existing entry is returned unchanged.
// campaignID and contactID are optional provenance.
func (s *Service) Add(ctx context.Context, councillorID, email, campaignID, contactID string) (*domain.Suppression, error) {
	email = normalize(email)
	if !contacts.ValidEmail(email) {
		return nil, ErrBadAddress
	}

	entry := &domain.Suppression{
		ID:             uuid.New().String(),
		CouncillorID:   councillorID,
		Email:          email,
		CampaignID:     campaignID,
		ContactID:      contactID,
		UnsubscribedAt: time.Now().UTC(),
	}
	out, err := s.repo.Upsert(ctx, entry)
	if err != nil {
		return nil, err
	}
	if out.ID == entry.ID {
		logger.Info("address suppressed", "email", email, "campaign_id", campaignID)
	}
	return out, nil
}

// Remove takes an address off the opt-out list.
func (s *Service) Remove(ctx context.Context, councillorID, email string) error {
	email = normalize(email)
	if email == "" {
		return ErrBadAddress
	}
	return s.repo.Remove(ctx, councillorID, email)
}

// IsSuppressed checks whether an address is blocked from sending.
func (s *Service) IsSuppressed(ctx context.Context, councillorID, email string) (bool, error) {
	return s.repo.IsSuppressed(ctx, councillorID, normalize(email))
}

// List returns the councillor's suppression entries, newest first.
func (s *Service) List(ctx context.Context, councillorID string) ([]domain.Suppression, error) {
	return s.repo.List(ctx, councillorID)
}
