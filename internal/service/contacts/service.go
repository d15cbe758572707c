package contacts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/pkg/logger"
	"github.com/google/uuid"
)

// emailShape is the minimal local@domain.tld check; full RFC validation
// is the mail provider's problem.
var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail returns the comparison form of an address: trimmed and
// lowercased. Stored contact emails keep their original casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether an address has the required shape.
func ValidEmail(email string) bool {
	return emailShape.MatchString(strings.TrimSpace(email))
}

// Service implements the contact registry over a Repository.
type Service struct {
	repo Repository
}

// NewService creates a contact registry backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateList creates a distribution list. The name is required.
func (s *Service) CreateList(ctx context.Context, councillorID, name, description string) (*domain.DistributionList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	l := &domain.DistributionList{
		ID:           uuid.New().String(),
		CouncillorID: councillorID,
		Name:         name,
		Description:  strings.TrimSpace(description),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateList(ctx, l); err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}
	return l, nil
}

// GetList returns one list.
func (s *Service) GetList(ctx context.Context, councillorID, listID string) (*domain.DistributionList, error) {
	return s.repo.GetList(ctx, councillorID, listID)
}

// ListLists returns the councillor's lists, newest first.
func (s *Service) ListLists(ctx context.Context, councillorID string) ([]domain.DistributionList, error) {
	return s.repo.ListLists(ctx, councillorID)
}

// DeleteList removes a list and cascades its contacts. Idempotent:
// deleting a list that is already gone is a no-op.
func (s *Service) DeleteList(ctx context.Context, councillorID, listID string) error {
	err := s.repo.DeleteList(ctx, councillorID, listID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// AddContact validates and inserts one contact.
func (s *Service) AddContact(ctx context.Context, councillorID, listID, email, firstName, lastName string) (*domain.Contact, error) {
	email = strings.TrimSpace(email)
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)

	if !ValidEmail(email) {
		return nil, fmt.Errorf("%w: malformed email", ErrValidation)
	}
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrValidation)
	}
	if _, err := s.repo.GetList(ctx, councillorID, listID); err != nil {
		return nil, err
	}

	c := &domain.Contact{
		ID:           uuid.New().String(),
		CouncillorID: councillorID,
		ListID:       listID,
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		AddedAt:      time.Now().UTC(),
	}
	if err := s.repo.AddContact(ctx, c); err != nil {
		return nil, err
	}

	logger.Debug("contact added", "email", email, "list_id", listID)
	return c, nil
}

// RemoveContact deletes one contact. Idempotent.
func (s *Service) RemoveContact(ctx context.Context, councillorID, contactID string) error {
	err := s.repo.RemoveContact(ctx, councillorID, contactID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// SortKey selects the contact listing order.
type SortKey string

const (
	SortByName    SortKey = "name"
	SortByEmail   SortKey = "email"
	SortByAddedAt SortKey = "added_at"
)

// PageRequest controls contact listing. PageSize <= 0 disables paging.
type PageRequest struct {
	Sort       SortKey
	Descending bool
	Page       int
	PageSize   int
}

// ContactPage is one page of a deterministic contact listing.
type ContactPage struct {
	Contacts   []domain.Contact `json:"contacts"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
}

// ContactsForList returns one page of a list's contacts. Identical input
// always yields identical output: ties on the sort key fall back to the
// contact ID.
func (s *Service) ContactsForList(ctx context.Context, councillorID, listID string, page PageRequest) (*ContactPage, error) {
	if _, err := s.repo.GetList(ctx, councillorID, listID); err != nil {
		return nil, err
	}
	all, err := s.repo.ContactsForList(ctx, councillorID, listID)
	if err != nil {
		return nil, err
	}
	return paginate(all, page), nil
}

// ListContacts returns every contact for a councillor, sorted the same way.
func (s *Service) ListContacts(ctx context.Context, councillorID string, page PageRequest) (*ContactPage, error) {
	all, err := s.repo.ListContacts(ctx, councillorID)
	if err != nil {
		return nil, err
	}
	return paginate(all, page), nil
}

func paginate(all []domain.Contact, page PageRequest) *ContactPage {
	sortContacts(all, page.Sort, page.Descending)

	total := len(all)
	if page.PageSize <= 0 {
		return &ContactPage{Contacts: all, Total: total, Page: 1, TotalPages: 1}
	}

	totalPages := (total + page.PageSize - 1) / page.PageSize
	if totalPages == 0 {
		totalPages = 1
	}
	p := page.Page
	if p < 1 {
		p = 1
	}
	start := (p - 1) * page.PageSize
	if start > total {
		start = total
	}
	end := start + page.PageSize
	if end > total {
		end = total
	}
	return &ContactPage{Contacts: all[start:end], Total: total, Page: p, TotalPages: totalPages}
}

func sortContacts(cs []domain.Contact, key SortKey, desc bool) {
	less := func(a, b domain.Contact) bool {
		switch key {
		case SortByEmail:
			if x, y := NormalizeEmail(a.Email), NormalizeEmail(b.Email); x != y {
				return x < y
			}
		case SortByAddedAt:
			if !a.AddedAt.Equal(b.AddedAt) {
				return a.AddedAt.Before(b.AddedAt)
			}
		default: // SortByName
			x := strings.ToLower(a.LastName + " " + a.FirstName)
			y := strings.ToLower(b.LastName + " " + b.FirstName)
			if x != y {
				return x < y
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(cs, func(i, j int) bool {
		if desc {
			return less(cs[j], cs[i])
		}
		return less(cs[i], cs[j])
	})
}
