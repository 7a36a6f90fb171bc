package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
)

// TemplateRepository reads message templates referenced by campaigns
type TemplateRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Template, error)
}

type templateRepository struct {
	db *sql.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// GetByID retrieves a template by ID
func (r *templateRepository) GetByID(ctx context.Context, id int64) (*models.Template, error) {
	query := `
		SELECT id, name, content, created_at
		FROM templates
		WHERE id = $1`

	template := &models.Template{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&template.ID,
		&template.Name,
		&template.Content,
		&template.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("template with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return template, nil
}
