package models

import "time"

// Delivery record outcomes
const (
	DeliveryStatusSent   = "sent"
	DeliveryStatusFailed = "failed"
)

// DeliveryRecord is the append-only audit row for one send attempt
type DeliveryRecord struct {
	ID          int64     `json:"id"`
	CampaignID  int64     `json:"campaign_id"`
	RecipientID int64     `json:"recipient_id"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name"`
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	Error       *string   `json:"error,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// DeliveryFilter holds filtering options for listing delivery records
type DeliveryFilter struct {
	CampaignID int64
	Status     string
	Page       int
	PageSize   int
}
