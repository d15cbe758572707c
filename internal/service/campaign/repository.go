package campaign

import (
	"context"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
)

// Repository defines the data access contract for campaigns and their
// per-recipient outcome records. Implementations must be safe for
// concurrent use; UpdateRecipient in particular is called from many
// dispatch goroutines at once.
type Repository interface {
	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Get returns one campaign. Returns ErrNotFound if absent.
	Get(ctx context.Context, councillorID, id string) (*domain.Campaign, error)

	// List returns a councillor's campaigns, newest first.
	List(ctx context.Context, councillorID string) ([]domain.Campaign, error)

	// Delete removes a campaign and its recipient records. Returns
	// ErrNotFound if absent.
	Delete(ctx context.Context, councillorID, id string) error

	// UpdateStatus transitions the campaign status.
	UpdateStatus(ctx context.Context, councillorID, id string, status domain.CampaignStatus) error

	// SetTargeting persists the recipient-resolution counters recorded
	// when dispatch starts.
	SetTargeting(ctx context.Context, councillorID, id string, targeted, filtered int) error

	// Finalize persists the terminal status, counters, and sentAt.
	Finalize(ctx context.Context, councillorID, id string, status domain.CampaignStatus, sent, failed int, sentAt time.Time) error

	// CreateRecipients inserts the pending outcome rows for a dispatch.
	CreateRecipients(ctx context.Context, rs []domain.CampaignRecipient) error

	// UpdateRecipient records one recipient's outcome.
	UpdateRecipient(ctx context.Context, councillorID, recipientID string, status domain.RecipientStatus, messageID, deliveryError string, sentAt *time.Time) error

	// Recipients returns a campaign's outcome rows.
	Recipients(ctx context.Context, councillorID, campaignID string) ([]domain.CampaignRecipient, error)
}

// ContactSource is the read-only slice of the contact registry the
// dispatcher needs. Satisfied by contacts.Repository implementations.
type ContactSource interface {
	ContactsForList(ctx context.Context, councillorID, listID string) ([]domain.Contact, error)
}

// SuppressionChecker answers whether an address is opted out.
// Satisfied by *suppression.Service.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, councillorID, email string) (bool, error)
}
