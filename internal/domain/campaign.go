package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignQueued  CampaignStatus = "queued"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
	CampaignFailed  CampaignStatus = "failed"
)

// Campaign represents one bulk send. Subject, content, and the target list
// set are frozen once the campaign leaves draft.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	CouncillorID string         `json:"councillor_id" db:"councillor_id"`
	Subject      string         `json:"subject" db:"subject"`
	Content      string         `json:"content" db:"content"`
	ListIDs      []string       `json:"list_ids" db:"list_ids"`
	Status       CampaignStatus `json:"status" db:"status"`
	Attachments  []Attachment   `json:"attachments,omitempty" db:"attachments"`

	TotalTargeted             int `json:"total_targeted" db:"total_targeted"`
	TotalSent                 int `json:"total_sent" db:"total_sent"`
	TotalFailed               int `json:"total_failed" db:"total_failed"`
	TotalFilteredUnsubscribed int `json:"total_filtered_unsubscribed" db:"total_filtered_unsubscribed"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignFailed
}

// Sendable reports whether a send may be started from the current state.
func (c *Campaign) Sendable() bool {
	return c.Status == CampaignDraft || c.Status == CampaignQueued
}

// Attachment is metadata about a file attached to a campaign. The raw
// base64 payload is handed to the mailer at dispatch time and never stored.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int    `json:"size_bytes"`
}

// RecipientStatus enumerates the delivery lifecycle of one recipient.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// CampaignRecipient records the per-recipient outcome of a dispatch.
type CampaignRecipient struct {
	ID            string          `json:"id" db:"id"`
	CouncillorID  string          `json:"councillor_id" db:"councillor_id"`
	CampaignID    string          `json:"campaign_id" db:"campaign_id"`
	ContactID     string          `json:"contact_id" db:"contact_id"`
	Email         string          `json:"email" db:"email"`
	Status        RecipientStatus `json:"status" db:"status"`
	MessageID     string          `json:"message_id,omitempty" db:"message_id"`
	DeliveryError string          `json:"error,omitempty" db:"delivery_error"`
	SentAt        *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
}
