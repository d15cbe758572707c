package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, councillorID, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppressions WHERE councillor_id = $1 AND email = $2)`,
		councillorID, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return exists, nil
}

// Upsert relies on the (councillor_id, email) unique index: the insert
// is a no-op on conflict and the surviving row is read back, so
// concurrent unsubscribes converge on a single entry.
func (r *SuppressionRepo) Upsert(ctx context.Context, s *domain.Suppression) (*domain.Suppression, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (id, councillor_id, email, campaign_id, contact_id, unsubscribed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (councillor_id, email) DO NOTHING
	`, s.ID, s.CouncillorID, s.Email, s.CampaignID, s.ContactID, s.UnsubscribedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert suppression: %w", err)
	}

	out := &domain.Suppression{}
	err = r.db.QueryRowContext(ctx, `
		SELECT id, councillor_id, email, COALESCE(campaign_id,''), COALESCE(contact_id,''), unsubscribed_at
		FROM suppressions
		WHERE councillor_id = $1 AND email = $2
	`, s.CouncillorID, s.Email).Scan(
		&out.ID, &out.CouncillorID, &out.Email, &out.CampaignID, &out.ContactID, &out.UnsubscribedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("read suppression: %w", err)
	}
	return out, nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, councillorID, email string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE councillor_id = $1 AND email = $2`,
		councillorID, email,
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, councillorID string) ([]domain.Suppression, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, councillor_id, email, COALESCE(campaign_id,''), COALESCE(contact_id,''), unsubscribed_at
		FROM suppressions
		WHERE councillor_id = $1
		ORDER BY unsubscribed_at DESC, email
	`, councillorID)
	if err != nil {
		return nil, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suppression
	for rows.Next() {
		var s domain.Suppression
		if err := rows.Scan(&s.ID, &s.CouncillorID, &s.Email, &s.CampaignID, &s.ContactID, &s.UnsubscribedAt); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
