package contacts

import (
	"context"

	"github.com/civicworks/councilmail/internal/domain"
)

// Repository defines the data access contract for lists and contacts.
// Implementations must be safe for concurrent use.
type Repository interface {
	// CreateList inserts a new distribution list.
	CreateList(ctx context.Context, l *domain.DistributionList) error

	// GetList returns one list. Returns ErrNotFound if it doesn't exist.
	GetList(ctx context.Context, councillorID, listID string) (*domain.DistributionList, error)

	// ListLists returns every list for a councillor, newest first.
	ListLists(ctx context.Context, councillorID string) ([]domain.DistributionList, error)

	// DeleteList removes a list and all contacts it contains (cascade).
	// Returns ErrNotFound if the list doesn't exist.
	DeleteList(ctx context.Context, councillorID, listID string) error

	// AddContact inserts a contact into its list. Returns
	// ErrDuplicateContact if the normalized email is already present in
	// that list.
	AddContact(ctx context.Context, c *domain.Contact) error

	// RemoveContact deletes one contact. Returns ErrNotFound if absent.
	RemoveContact(ctx context.Context, councillorID, contactID string) error

	// ContactsForList returns the contacts of one list, unordered.
	ContactsForList(ctx context.Context, councillorID, listID string) ([]domain.Contact, error)

	// ListContacts returns every contact for a councillor, unordered.
	ListContacts(ctx context.Context, councillorID string) ([]domain.Contact, error)
}
