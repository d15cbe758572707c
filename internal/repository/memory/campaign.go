package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository in memory.
type CampaignRepo struct {
	mu         sync.RWMutex
	campaigns  map[string]*domain.Campaign
	recipients map[string]*domain.CampaignRecipient
}

// NewCampaignRepo creates an empty in-memory campaign repository.
func NewCampaignRepo() *CampaignRepo {
	return &CampaignRepo{
		campaigns:  make(map[string]*domain.Campaign),
		recipients: make(map[string]*domain.CampaignRecipient),
	}
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *CampaignRepo) Get(_ context.Context, councillorID, id string) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok || c.CouncillorID != councillorID {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CampaignRepo) List(_ context.Context, councillorID string) ([]domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if c.CouncillorID == councillorID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *CampaignRepo) Delete(_ context.Context, councillorID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.CouncillorID != councillorID {
		return campaign.ErrNotFound
	}
	delete(r.campaigns, id)
	for rid, rec := range r.recipients {
		if rec.CampaignID == id {
			delete(r.recipients, rid)
		}
	}
	return nil
}

func (r *CampaignRepo) UpdateStatus(_ context.Context, councillorID, id string, status domain.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.CouncillorID != councillorID {
		return campaign.ErrNotFound
	}
	c.Status = status
	return nil
}

func (r *CampaignRepo) SetTargeting(_ context.Context, councillorID, id string, targeted, filtered int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.CouncillorID != councillorID {
		return campaign.ErrNotFound
	}
	c.TotalTargeted = targeted
	c.TotalFilteredUnsubscribed = filtered
	return nil
}

func (r *CampaignRepo) Finalize(_ context.Context, councillorID, id string, status domain.CampaignStatus, sent, failed int, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.CouncillorID != councillorID {
		return campaign.ErrNotFound
	}
	c.Status = status
	c.TotalSent = sent
	c.TotalFailed = failed
	c.SentAt = &sentAt
	return nil
}

func (r *CampaignRepo) CreateRecipients(_ context.Context, rs []domain.CampaignRecipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range rs {
		cp := rs[i]
		r.recipients[cp.ID] = &cp
	}
	return nil
}

func (r *CampaignRepo) UpdateRecipient(_ context.Context, councillorID, recipientID string, status domain.RecipientStatus, messageID, deliveryError string, sentAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[recipientID]
	if !ok || rec.CouncillorID != councillorID {
		return campaign.ErrNotFound
	}
	rec.Status = status
	rec.MessageID = messageID
	rec.DeliveryError = deliveryError
	rec.SentAt = sentAt
	return nil
}

func (r *CampaignRepo) Recipients(_ context.Context, councillorID, campaignID string) ([]domain.CampaignRecipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.CampaignRecipient
	for _, rec := range r.recipients {
		if rec.CouncillorID == councillorID && rec.CampaignID == campaignID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
