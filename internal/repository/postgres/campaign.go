package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	attachments, err := json.Marshal(c.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, councillor_id, subject, content, list_ids, attachments, status,
			 total_targeted, total_sent, total_failed, total_filtered_unsubscribed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.ID, c.CouncillorID, c.Subject, c.Content, pq.Array(c.ListIDs), attachments,
		c.Status, c.TotalTargeted, c.TotalSent, c.TotalFailed, c.TotalFilteredUnsubscribed, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

const campaignColumns = `
	id, councillor_id, subject, content, list_ids, attachments, status,
	total_targeted, total_sent, total_failed, total_filtered_unsubscribed,
	created_at, sent_at`

func (r *CampaignRepo) Get(ctx context.Context, councillorID, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1 AND councillor_id = $2
	`, id, councillorID)

	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, councillorID string) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE councillor_id = $1
		ORDER BY created_at DESC, id
	`, councillorID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Delete(ctx context.Context, councillorID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id = $1 AND councillor_id = $2`,
		id, councillorID,
	)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	// Recipient rows cascade via the campaign_id foreign key.
	return nil
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, councillorID, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET status = $1 WHERE id = $2 AND councillor_id = $3`,
		status, id, councillorID,
	)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) SetTargeting(ctx context.Context, councillorID, id string, targeted, filtered int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET total_targeted = $1, total_filtered_unsubscribed = $2
		WHERE id = $3 AND councillor_id = $4
	`, targeted, filtered, id, councillorID)
	if err != nil {
		return fmt.Errorf("set campaign targeting: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Finalize(ctx context.Context, councillorID, id string, status domain.CampaignStatus, sent, failed int, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $1, total_sent = $2, total_failed = $3, sent_at = $4
		WHERE id = $5 AND councillor_id = $6
	`, status, sent, failed, sentAt, id, councillorID)
	if err != nil {
		return fmt.Errorf("finalize campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) CreateRecipients(ctx context.Context, rs []domain.CampaignRecipient) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recipients: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_recipients (id, councillor_id, campaign_id, contact_id, email, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("prepare recipients: %w", err)
	}
	defer stmt.Close()

	for i := range rs {
		rec := &rs[i]
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.CouncillorID, rec.CampaignID, rec.ContactID, rec.Email, rec.Status); err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}
	return tx.Commit()
}

func (r *CampaignRepo) UpdateRecipient(ctx context.Context, councillorID, recipientID string, status domain.RecipientStatus, messageID, deliveryError string, sentAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = $1, message_id = $2, delivery_error = $3, sent_at = $4
		WHERE id = $5 AND councillor_id = $6
	`, status, messageID, deliveryError, sentAt, recipientID, councillorID)
	if err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Recipients(ctx context.Context, councillorID, campaignID string) ([]domain.CampaignRecipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, councillor_id, campaign_id, contact_id, email, status,
		       COALESCE(message_id,''), COALESCE(delivery_error,''), sent_at
		FROM campaign_recipients
		WHERE councillor_id = $1 AND campaign_id = $2
		ORDER BY email
	`, councillorID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignRecipient
	for rows.Next() {
		var rec domain.CampaignRecipient
		var sentAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.CouncillorID, &rec.CampaignID, &rec.ContactID,
			&rec.Email, &rec.Status, &rec.MessageID, &rec.DeliveryError, &sentAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if sentAt.Valid {
			t := sentAt.Time
			rec.SentAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var listIDs pq.StringArray
	var attachments []byte
	var sentAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.CouncillorID, &c.Subject, &c.Content, &listIDs, &attachments, &c.Status,
		&c.TotalTargeted, &c.TotalSent, &c.TotalFailed, &c.TotalFilteredUnsubscribed,
		&c.CreatedAt, &sentAt,
	)
	if err != nil {
		return nil, err
	}
	c.ListIDs = listIDs
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &c.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	if sentAt.Valid {
		t := sentAt.Time
		c.SentAt = &t
	}
	return c, nil
}
