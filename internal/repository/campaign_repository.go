package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
)

// CampaignRepository defines the interface for campaign data access
type CampaignRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	MarkStarted(ctx context.Context, id int64) error
	MarkFinished(ctx context.Context, id int64, status string) error
	IncrementCounter(ctx context.Context, id int64, field string) error
	CountRunning(ctx context.Context) (int64, error)
}

// campaignRepository implements CampaignRepository using PostgreSQL
type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

// GetByID retrieves a campaign by ID
func (r *campaignRepository) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	query := `
		SELECT id, name, COALESCE(message_template, ''), template_id,
		       interval_min, interval_max, hourly_cap, status,
		       total_count, sent_count, failed_count,
		       started_at, ended_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1`

	campaign := &models.Campaign{}
	var templateID sql.NullInt64
	var startedAt, endedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&campaign.ID,
		&campaign.Name,
		&campaign.MessageTemplate,
		&templateID,
		&campaign.IntervalMin,
		&campaign.IntervalMax,
		&campaign.HourlyCap,
		&campaign.Status,
		&campaign.TotalCount,
		&campaign.SentCount,
		&campaign.FailedCount,
		&startedAt,
		&endedAt,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	if templateID.Valid {
		campaign.TemplateID = &templateID.Int64
	}
	if startedAt.Valid {
		campaign.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		campaign.EndedAt = &endedAt.Time
	}

	return campaign, nil
}

// UpdateStatus updates only the status of a campaign
func (r *campaignRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `
		UPDATE campaigns
		SET status = $1, updated_at = NOW()
		WHERE id = $2`

	return r.exec(ctx, query, id, "update campaign status", status, id)
}

// MarkStarted flags the campaign as running and stamps started_at
func (r *campaignRepository) MarkStarted(ctx context.Context, id int64) error {
	query := `
		UPDATE campaigns
		SET status = $1, started_at = NOW(), updated_at = NOW()
		WHERE id = $2`

	return r.exec(ctx, query, id, "mark campaign started", models.CampaignStatusRunning, id)
}

// MarkFinished stores the final status of a run and stamps ended_at
func (r *campaignRepository) MarkFinished(ctx context.Context, id int64, status string) error {
	query := `
		UPDATE campaigns
		SET status = $1, ended_at = NOW(), updated_at = NOW()
		WHERE id = $2`

	return r.exec(ctx, query, id, "mark campaign finished", status, id)
}

// IncrementCounter bumps sent_count or failed_count by one
func (r *campaignRepository) IncrementCounter(ctx context.Context, id int64, field string) error {
	if !models.IsValidCounter(field) {
		return models.ErrInvalidInput(fmt.Sprintf("invalid campaign counter: %s", field))
	}

	// field is whitelisted above, so interpolating the column name is safe
	query := fmt.Sprintf(`
		UPDATE campaigns
		SET %[1]s = %[1]s + 1, updated_at = NOW()
		WHERE id = $1`, field)

	return r.exec(ctx, query, id, "increment campaign counter", id)
}

// CountRunning returns how many campaigns are stored with status running
func (r *campaignRepository) CountRunning(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM campaigns WHERE status = $1`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, models.CampaignStatusRunning).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count running campaigns: %w", err)
	}

	return count, nil
}

func (r *campaignRepository) exec(ctx context.Context, query string, id int64, op string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("campaign with ID %d not found", id))
	}

	return nil
}
