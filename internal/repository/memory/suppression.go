package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository in memory.
type SuppressionRepo struct {
	mu      sync.RWMutex
	entries map[string]*domain.Suppression
}

// NewSuppressionRepo creates an empty in-memory suppression repository.
func NewSuppressionRepo() *SuppressionRepo {
	return &SuppressionRepo{entries: make(map[string]*domain.Suppression)}
}

func supprKey(councillorID, email string) string { return councillorID + "\x00" + email }

func (r *SuppressionRepo) IsSuppressed(_ context.Context, councillorID, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[supprKey(councillorID, email)]
	return ok, nil
}

func (r *SuppressionRepo) Upsert(_ context.Context, s *domain.Suppression) (*domain.Suppression, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := supprKey(s.CouncillorID, s.Email)
	if existing, ok := r.entries[k]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *s
	r.entries[k] = &cp
	out := cp
	return &out, nil
}

func (r *SuppressionRepo) Remove(_ context.Context, councillorID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := supprKey(councillorID, email)
	if _, ok := r.entries[k]; !ok {
		return suppression.ErrNotFound
	}
	delete(r.entries, k)
	return nil
}

func (r *SuppressionRepo) List(_ context.Context, councillorID string) ([]domain.Suppression, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Suppression
	for _, s := range r.entries {
		if s.CouncillorID == councillorID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnsubscribedAt.Equal(out[j].UnsubscribedAt) {
			return out[i].UnsubscribedAt.After(out[j].UnsubscribedAt)
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}
