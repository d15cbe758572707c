package suppression

import (
	"context"

	"github.com/civicworks/councilmail/internal/domain"
)

// Repository defines the data access contract for the suppression list.
// Emails passed to implementations are already normalized.
type Repository interface {
	// IsSuppressed returns true if the email is on the councillor's list.
	IsSuppressed(ctx context.Context, councillorID, email string) (bool, error)

	// Upsert inserts the entry unless one already exists for the same
	// (councillor, email), in which case the existing entry is returned.
	// The insert must be atomic under concurrent callers.
	Upsert(ctx context.Context, s *domain.Suppression) (*domain.Suppression, error)

	// Remove deletes an entry. Returns ErrNotFound if absent.
	Remove(ctx context.Context, councillorID, email string) error

	// List returns all entries for a councillor, newest first.
	List(ctx context.Context, councillorID string) ([]domain.Suppression, error)
}
