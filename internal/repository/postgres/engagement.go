package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/civicworks/councilmail/internal/domain"
)

// EngagementRepo implements engagement.Repository against PostgreSQL.
// The table is append-only; rows are never updated.
type EngagementRepo struct{ db *sql.DB }

// NewEngagementRepo creates a Postgres-backed event log.
func NewEngagementRepo(db *sql.DB) *EngagementRepo { return &EngagementRepo{db: db} }

func (r *EngagementRepo) Append(ctx context.Context, e *domain.EngagementEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engagement_events (id, councillor_id, campaign_id, contact_id, event_type, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.CouncillorID, e.CampaignID, e.ContactID, e.Type, e.UserAgent, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *EngagementRepo) EventsForCampaign(ctx context.Context, councillorID, campaignID string) ([]domain.EngagementEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, councillor_id, campaign_id, contact_id, event_type, COALESCE(user_agent,''), occurred_at
		FROM engagement_events
		WHERE councillor_id = $1 AND campaign_id = $2
		ORDER BY occurred_at, id
	`, councillorID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("events for campaign: %w", err)
	}
	defer rows.Close()

	var out []domain.EngagementEvent
	for rows.Next() {
		var e domain.EngagementEvent
		if err := rows.Scan(&e.ID, &e.CouncillorID, &e.CampaignID, &e.ContactID, &e.Type, &e.UserAgent, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
