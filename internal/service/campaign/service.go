package campaign

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/mailer"
	"github.com/civicworks/councilmail/internal/pkg/distlock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Options bounds the dispatch fan-out.
type Options struct {
	BatchSize          int
	MaxConcurrent      int
	MaxRetries         int
	RetryBaseDelay     time.Duration
	SendBudget         time.Duration
	ProviderRatePerSec float64
	TrackingBaseURL    string
}

// Service implements campaign business logic. It coordinates the
// repository, the contact registry, the suppression list, and the mail
// provider. Safe for concurrent use.
type Service struct {
	repo     Repository
	contacts ContactSource
	suppr    SuppressionChecker
	sender   mailer.Sender
	locks    *distlock.Factory
	limiter  *rate.Limiter
	renderer *renderer
	opts     Options
}

// NewService creates a campaign service.
func NewService(repo Repository, contacts ContactSource, suppr SuppressionChecker, sender mailer.Sender, locks *distlock.Factory, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if opts.SendBudget <= 0 {
		opts.SendBudget = 10 * time.Minute
	}
	if opts.ProviderRatePerSec <= 0 {
		opts.ProviderRatePerSec = 14
	}
	return &Service{
		repo:     repo,
		contacts: contacts,
		suppr:    suppr,
		sender:   sender,
		locks:    locks,
		limiter:  rate.NewLimiter(rate.Limit(opts.ProviderRatePerSec), 1),
		renderer: newRenderer(),
		opts:     opts,
	}
}

// CreateInput holds the fields for creating a campaign.
type CreateInput struct {
	Subject     string            `json:"subject"`
	Content     string            `json:"content"`
	ListIDs     []string          `json:"listIds"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
}

// AttachmentInput is one uploaded attachment. The base64 payload is kept
// in memory for the dispatch that immediately follows creation; only
// metadata is persisted.
type AttachmentInput struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Base64      string `json:"base64"`
}

// Create validates and persists a campaign in queued status, ready for
// dispatch. Subject, content, and at least one list are required.
func (s *Service) Create(ctx context.Context, councillorID string, input CreateInput) (*domain.Campaign, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if len(input.ListIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one list is required", ErrValidation)
	}

	c := &domain.Campaign{
		ID:           uuid.New().String(),
		CouncillorID: councillorID,
		Subject:      subject,
		Content:      input.Content,
		ListIDs:      input.ListIDs,
		Status:       domain.CampaignQueued,
		CreatedAt:    time.Now().UTC(),
	}
	for _, a := range input.Attachments {
		if a.Name == "" || a.ContentType == "" || a.Base64 == "" {
			continue
		}
		c.Attachments = append(c.Attachments, domain.Attachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			SizeBytes:   decodedSize(a.Base64),
		})
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

// decodedSize is the exact payload size of a padded base64 string.
// DecodedLen alone over-counts by the amount of trailing padding.
func decodedSize(b64 string) int {
	n := base64.StdEncoding.DecodedLen(len(b64))
	for i := len(b64) - 1; i >= 0 && b64[i] == '='; i-- {
		n--
	}
	return n
}

// Get returns one campaign.
func (s *Service) Get(ctx context.Context, councillorID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, councillorID, id)
}

// List returns the councillor's campaigns, newest first.
func (s *Service) List(ctx context.Context, councillorID string) ([]domain.Campaign, error) {
	return s.repo.List(ctx, councillorID)
}

// Delete removes a campaign that is not mid-send, cascading its
// recipient rows. Idempotent.
func (s *Service) Delete(ctx context.Context, councillorID, id string) error {
	c, err := s.repo.Get(ctx, councillorID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if c.Status == domain.CampaignSending {
		return ErrInvalidState
	}
	err = s.repo.Delete(ctx, councillorID, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// RecipientSummary aggregates recipient outcome rows.
type RecipientSummary struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// Recipients returns a campaign's per-recipient outcomes with a summary.
func (s *Service) Recipients(ctx context.Context, councillorID, campaignID string) ([]domain.CampaignRecipient, RecipientSummary, error) {
	if _, err := s.repo.Get(ctx, councillorID, campaignID); err != nil {
		return nil, RecipientSummary{}, err
	}
	rs, err := s.repo.Recipients(ctx, councillorID, campaignID)
	if err != nil {
		return nil, RecipientSummary{}, err
	}

	sum := RecipientSummary{Total: len(rs)}
	for _, r := range rs {
		switch r.Status {
		case domain.RecipientSent:
			sum.Sent++
		case domain.RecipientFailed:
			sum.Failed++
		default:
			sum.Pending++
		}
	}
	return rs, sum, nil
}
