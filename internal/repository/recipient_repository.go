package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
)

// RecipientRepository defines the interface for recipient and campaign link access
type RecipientRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Recipient, error)
	GetPending(ctx context.Context, campaignID int64) ([]*models.Recipient, error)
	UpdateLinkStatus(ctx context.Context, campaignID, recipientID int64, status string, lastError *string) error
}

// recipientRepository implements RecipientRepository using PostgreSQL
type recipientRepository struct {
	db *sql.DB
}

// NewRecipientRepository creates a new recipient repository
func NewRecipientRepository(db *sql.DB) RecipientRepository {
	return &recipientRepository{db: db}
}

// GetByID retrieves a recipient by ID
func (r *recipientRepository) GetByID(ctx context.Context, id int64) (*models.Recipient, error) {
	query := `
		SELECT id, name, phone, normalized_phone, company, role
		FROM recipients
		WHERE id = $1`

	recipient := &models.Recipient{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&recipient.ID,
		&recipient.Name,
		&recipient.Phone,
		&recipient.NormalizedPhone,
		&recipient.Company,
		&recipient.Role,
	)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("recipient with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}

	return recipient, nil
}

// GetPending returns every recipient linked to the campaign that has not been processed yet
func (r *recipientRepository) GetPending(ctx context.Context, campaignID int64) ([]*models.Recipient, error) {
	query := `
		SELECT r.id, r.name, r.phone, r.normalized_phone, r.company, r.role
		FROM recipients r
		INNER JOIN campaign_recipients cr ON cr.recipient_id = r.id
		WHERE cr.campaign_id = $1 AND cr.status = $2
		ORDER BY r.id ASC`

	rows, err := r.db.QueryContext(ctx, query, campaignID, models.LinkStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending recipients: %w", err)
	}
	defer rows.Close()

	recipients := []*models.Recipient{}
	for rows.Next() {
		recipient := &models.Recipient{}
		err := rows.Scan(
			&recipient.ID,
			&recipient.Name,
			&recipient.Phone,
			&recipient.NormalizedPhone,
			&recipient.Company,
			&recipient.Role,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, recipient)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}

	return recipients, nil
}

// UpdateLinkStatus records the outcome for one recipient of a campaign.
// A failed outcome also increments the attempts column; a sent one stamps sent_at.
func (r *recipientRepository) UpdateLinkStatus(ctx context.Context, campaignID, recipientID int64, status string, lastError *string) error {
	if !models.IsValidLinkStatus(status) {
		return models.ErrInvalidInput(fmt.Sprintf("invalid link status: %s", status))
	}

	query := `
		UPDATE campaign_recipients
		SET status = $1,
		    last_error = $2,
		    attempts = attempts + CASE WHEN $1 = 'failed' THEN 1 ELSE 0 END,
		    sent_at = CASE WHEN $1 = 'sent' THEN NOW() ELSE sent_at END
		WHERE campaign_id = $3 AND recipient_id = $4`

	result, err := r.db.ExecContext(ctx, query, status, lastError, campaignID, recipientID)
	if err != nil {
		return fmt.Errorf("failed to update link status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrNotFoundWithMsg(
			fmt.Sprintf("recipient %d is not linked to campaign %d", recipientID, campaignID),
		)
	}

	return nil
}
