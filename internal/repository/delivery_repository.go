package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
)

// DeliveryRepository defines the interface for the delivery audit log
type DeliveryRepository interface {
	Insert(ctx context.Context, record *models.DeliveryRecord) error
	List(ctx context.Context, filter models.DeliveryFilter) ([]*models.DeliveryRecord, int64, error)
}

// deliveryRepository implements DeliveryRepository using PostgreSQL
type deliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository creates a new delivery repository
func NewDeliveryRepository(db *sql.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

// Insert appends a delivery record
func (r *deliveryRepository) Insert(ctx context.Context, record *models.DeliveryRecord) error {
	query := `
		INSERT INTO delivery_records (campaign_id, recipient_id, phone, name, message, status, error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, sent_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		record.CampaignID,
		record.RecipientID,
		record.Phone,
		record.Name,
		record.Message,
		record.Status,
		record.Error,
	).Scan(&record.ID, &record.SentAt)

	if err != nil {
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}

	return nil
}

// List retrieves delivery records with pagination and filtering
func (r *deliveryRepository) List(ctx context.Context, filter models.DeliveryFilter) ([]*models.DeliveryRecord, int64, error) {
	filter.Normalize()

	query := `
		SELECT id, campaign_id, recipient_id, phone, name, message, status, error, sent_at
		FROM delivery_records
		WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM delivery_records WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.CampaignID > 0 {
		query += fmt.Sprintf(" AND campaign_id = $%d", argPos)
		countQuery += fmt.Sprintf(" AND campaign_id = $%d", argPos)
		args = append(args, filter.CampaignID)
		argPos++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		countQuery += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}

	var totalCount int64
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count delivery records: %w", err)
	}

	// Records are listed in processing order
	offset := filter.Offset()
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.PageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list delivery records: %w", err)
	}
	defer rows.Close()

	records := []*models.DeliveryRecord{}
	for rows.Next() {
		record := &models.DeliveryRecord{}
		var deliveryErr sql.NullString
		err := rows.Scan(
			&record.ID,
			&record.CampaignID,
			&record.RecipientID,
			&record.Phone,
			&record.Name,
			&record.Message,
			&record.Status,
			&deliveryErr,
			&record.SentAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		if deliveryErr.Valid {
			record.Error = &deliveryErr.String
		}
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating delivery records: %w", err)
	}

	return records, totalCount, nil
}
