package domain

import "time"

// DistributionList is a named group of contacts owned by one councillor.
type DistributionList struct {
	ID           string    `json:"id" db:"id"`
	CouncillorID string    `json:"councillor_id" db:"councillor_id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	ContactCount int       `json:"contact_count" db:"contact_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Contact is a single recipient belonging to exactly one distribution list.
// The stored Email preserves the casing it was entered with; uniqueness
// within a list is enforced on the normalized (trimmed, lowercased) form.
type Contact struct {
	ID           string    `json:"id" db:"id"`
	CouncillorID string    `json:"councillor_id" db:"councillor_id"`
	ListID       string    `json:"list_id" db:"list_id"`
	Email        string    `json:"email" db:"email"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	AddedAt      time.Time `json:"added_at" db:"added_at"`
}
