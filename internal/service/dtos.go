package service

import (
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/worker"
)

// ControlResult is returned by start, pause and resume
type ControlResult struct {
	CampaignID int64  `json:"campaign_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// DispatcherStatus combines the in-memory dispatcher view with the store
type DispatcherStatus struct {
	worker.Status
	// StoredRunning counts campaigns the database still marks as running
	StoredRunning int64 `json:"stored_running"`
}

// PreviewRequest represents a request to preview a personalized message
type PreviewRequest struct {
	RecipientID      int64   `json:"recipient_id"`
	OverrideTemplate *string `json:"override_template,omitempty"`
}

// Validate performs validation on the preview request
func (r *PreviewRequest) Validate() error {
	if r.RecipientID <= 0 {
		return models.ErrInvalidInput("recipient_id is required")
	}
	return nil
}

// PreviewResult represents the result of a personalized preview
type PreviewResult struct {
	RenderedMessage string            `json:"rendered_message"`
	UsedTemplate    string            `json:"used_template"`
	Placeholders    []string          `json:"placeholders"`
	Recipient       *RecipientPreview `json:"recipient"`
}

// RecipientPreview contains minimal recipient info for preview
type RecipientPreview struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	NormalizedPhone string `json:"normalized_phone"`
	ValidPhone      bool   `json:"valid_phone"`
	Address         string `json:"address,omitempty"`
}

// DeliveryListResult represents paginated delivery records
type DeliveryListResult struct {
	Data       []*models.DeliveryRecord `json:"data"`
	Pagination models.Page              `json:"pagination"`
}
