package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/service/contacts"
)

// ContactRepo implements contacts.Repository against PostgreSQL.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

func (r *ContactRepo) CreateList(ctx context.Context, l *domain.DistributionList) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO distribution_lists (id, councillor_id, name, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, l.ID, l.CouncillorID, l.Name, l.Description, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("create list: %w", err)
	}
	return nil
}

func (r *ContactRepo) GetList(ctx context.Context, councillorID, listID string) (*domain.DistributionList, error) {
	l := &domain.DistributionList{}
	err := r.db.QueryRowContext(ctx, `
		SELECT l.id, l.councillor_id, l.name, COALESCE(l.description,''), l.created_at,
		       (SELECT COUNT(*) FROM contacts c WHERE c.list_id = l.id)
		FROM distribution_lists l
		WHERE l.id = $1 AND l.councillor_id = $2
	`, listID, councillorID).Scan(
		&l.ID, &l.CouncillorID, &l.Name, &l.Description, &l.CreatedAt, &l.ContactCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contacts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

func (r *ContactRepo) ListLists(ctx context.Context, councillorID string) ([]domain.DistributionList, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.councillor_id, l.name, COALESCE(l.description,''), l.created_at,
		       (SELECT COUNT(*) FROM contacts c WHERE c.list_id = l.id)
		FROM distribution_lists l
		WHERE l.councillor_id = $1
		ORDER BY l.created_at DESC, l.id
	`, councillorID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	var out []domain.DistributionList
	for rows.Next() {
		var l domain.DistributionList
		if err := rows.Scan(&l.ID, &l.CouncillorID, &l.Name, &l.Description, &l.CreatedAt, &l.ContactCount); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *ContactRepo) DeleteList(ctx context.Context, councillorID, listID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM distribution_lists WHERE id = $1 AND councillor_id = $2`,
		listID, councillorID,
	)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return contacts.ErrNotFound
	}
	// Contacts cascade via the list_id foreign key.
	return nil
}

func (r *ContactRepo) AddContact(ctx context.Context, c *domain.Contact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (id, councillor_id, list_id, email, email_normalized, first_name, last_name, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.CouncillorID, c.ListID, c.Email, contacts.NormalizeEmail(c.Email), c.FirstName, c.LastName, c.AddedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", contacts.ErrDuplicateContact, contacts.NormalizeEmail(c.Email))
	}
	if err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	return nil
}

func (r *ContactRepo) RemoveContact(ctx context.Context, councillorID, contactID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM contacts WHERE id = $1 AND councillor_id = $2`,
		contactID, councillorID,
	)
	if err != nil {
		return fmt.Errorf("remove contact: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return contacts.ErrNotFound
	}
	return nil
}

func (r *ContactRepo) ContactsForList(ctx context.Context, councillorID, listID string) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, councillor_id, list_id, email, first_name, last_name, added_at
		FROM contacts
		WHERE councillor_id = $1 AND list_id = $2
		ORDER BY added_at, id
	`, councillorID, listID)
	if err != nil {
		return nil, fmt.Errorf("contacts for list: %w", err)
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (r *ContactRepo) ListContacts(ctx context.Context, councillorID string) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, councillor_id, list_id, email, first_name, last_name, added_at
		FROM contacts
		WHERE councillor_id = $1
		ORDER BY added_at, id
	`, councillorID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	return scanContacts(rows)
}

func scanContacts(rows *sql.Rows) ([]domain.Contact, error) {
	var out []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.ID, &c.CouncillorID, &c.ListID, &c.Email, &c.FirstName, &c.LastName, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
