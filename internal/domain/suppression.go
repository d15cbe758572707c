package domain

import "time"

// Suppression is one opted-out address. At most one entry exists per
// (councillor, normalized email); inserts are conditional upserts.
type Suppression struct {
	ID             string    `json:"id" db:"id"`
	CouncillorID   string    `json:"councillor_id" db:"councillor_id"`
	Email          string    `json:"email" db:"email"`
	CampaignID     string    `json:"campaign_id,omitempty" db:"campaign_id"`
	ContactID      string    `json:"contact_id,omitempty" db:"contact_id"`
	UnsubscribedAt time.Time `json:"unsubscribed_at" db:"unsubscribed_at"`
}
