package domain

import "time"

// EngagementEventType enumerates recipient engagement event kinds.
type EngagementEventType string

const (
	EventOpen        EngagementEventType = "open"
	EventUnsubscribe EngagementEventType = "unsubscribe"
)

// EngagementEvent is one append-only record of recipient engagement.
// Events are never mutated or deleted; metrics are recomputed from them.
type EngagementEvent struct {
	ID           string              `json:"id" db:"id"`
	CouncillorID string              `json:"councillor_id" db:"councillor_id"`
	CampaignID   string              `json:"campaign_id" db:"campaign_id"`
	ContactID    string              `json:"contact_id" db:"contact_id"`
	Type         EngagementEventType `json:"event_type" db:"event_type"`
	UserAgent    string              `json:"user_agent,omitempty" db:"user_agent"`
	OccurredAt   time.Time           `json:"occurred_at" db:"occurred_at"`
}

// CampaignMetrics is derived on demand from the event log plus the
// campaign's stored dispatch counters. It is never stored.
type CampaignMetrics struct {
	CampaignID                string     `json:"campaign_id"`
	TotalTargeted             int        `json:"total_targeted"`
	TotalSent                 int        `json:"total_sent"`
	TotalFailed               int        `json:"total_failed"`
	TotalFilteredUnsubscribed int        `json:"total_filtered_unsubscribed"`
	TotalOpens                int        `json:"total_opens"`
	UniqueOpens               int        `json:"unique_opens"`
	TotalUnsubscribes         int        `json:"total_unsubscribes"`
	UniqueUnsubscribes        int        `json:"unique_unsubscribes"`
	OpenRate                  float64    `json:"open_rate"`
	UnsubscribeRate           float64    `json:"unsubscribe_rate"`
	FirstOpenAt               *time.Time `json:"first_open_at,omitempty"`
}
