package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/service/contacts"
)

// ContactRepo implements contacts.Repository in memory.
type ContactRepo struct {
	mu       sync.RWMutex
	lists    map[string]*domain.DistributionList
	contacts map[string]*domain.Contact
}

// NewContactRepo creates an empty in-memory contact repository.
func NewContactRepo() *ContactRepo {
	return &ContactRepo{
		lists:    make(map[string]*domain.DistributionList),
		contacts: make(map[string]*domain.Contact),
	}
}

func (r *ContactRepo) CreateList(_ context.Context, l *domain.DistributionList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.lists[l.ID] = &cp
	return nil
}

func (r *ContactRepo) GetList(_ context.Context, councillorID, listID string) (*domain.DistributionList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lists[listID]
	if !ok || l.CouncillorID != councillorID {
		return nil, contacts.ErrNotFound
	}
	cp := *l
	cp.ContactCount = r.countLocked(councillorID, listID)
	return &cp, nil
}

func (r *ContactRepo) ListLists(_ context.Context, councillorID string) ([]domain.DistributionList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.DistributionList{}
	for _, l := range r.lists {
		if l.CouncillorID != councillorID {
			continue
		}
		cp := *l
		cp.ContactCount = r.countLocked(councillorID, l.ID)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *ContactRepo) DeleteList(_ context.Context, councillorID, listID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lists[listID]
	if !ok || l.CouncillorID != councillorID {
		return contacts.ErrNotFound
	}
	delete(r.lists, listID)
	for id, c := range r.contacts {
		if c.ListID == listID {
			delete(r.contacts, id)
		}
	}
	return nil
}

func (r *ContactRepo) AddContact(_ context.Context, c *domain.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	norm := contacts.NormalizeEmail(c.Email)
	for _, existing := range r.contacts {
		if existing.ListID == c.ListID && contacts.NormalizeEmail(existing.Email) == norm {
			return fmt.Errorf("%w: %s", contacts.ErrDuplicateContact, norm)
		}
	}
	cp := *c
	r.contacts[c.ID] = &cp
	return nil
}

func (r *ContactRepo) RemoveContact(_ context.Context, councillorID, contactID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactID]
	if !ok || c.CouncillorID != councillorID {
		return contacts.ErrNotFound
	}
	delete(r.contacts, contactID)
	return nil
}

func (r *ContactRepo) ContactsForList(_ context.Context, councillorID, listID string) ([]domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Contact
	for _, c := range r.contacts {
		if c.CouncillorID == councillorID && c.ListID == listID {
			out = append(out, *c)
		}
	}
	// Map iteration is random; callers get a stable base order.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *ContactRepo) ListContacts(_ context.Context, councillorID string) ([]domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Contact
	for _, c := range r.contacts {
		if c.CouncillorID == councillorID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *ContactRepo) countLocked(councillorID, listID string) int {
	n := 0
	for _, c := range r.contacts {
		if c.CouncillorID == councillorID && c.ListID == listID {
			n++
		}
	}
	return n
}
