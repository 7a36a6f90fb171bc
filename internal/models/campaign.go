package models

import "time"

// Campaign status constants
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusErred     = "erred"
)

// Campaign counter columns that the dispatcher may increment
const (
	CounterSent   = "sent_count"
	CounterFailed = "failed_count"
)

// Campaign represents a bulk WhatsApp send job
type Campaign struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	MessageTemplate string     `json:"message_template,omitempty"`
	TemplateID      *int64     `json:"template_id,omitempty"`
	IntervalMin     int        `json:"interval_min"`
	IntervalMax     int        `json:"interval_max"`
	HourlyCap       int        `json:"hourly_cap"`
	Status          string     `json:"status"`
	TotalCount      int        `json:"total_count"`
	SentCount       int        `json:"sent_count"`
	FailedCount     int        `json:"failed_count"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Intervals returns the per-send pause bounds. Unset bounds fall back to
// the given defaults and hi is never below lo.
func (c *Campaign) Intervals(defaultLo, defaultHi time.Duration) (time.Duration, time.Duration) {
	lo, hi := defaultLo, defaultHi
	if c.IntervalMin > 0 {
		lo = time.Duration(c.IntervalMin) * time.Second
	}
	if c.IntervalMax > 0 {
		hi = time.Duration(c.IntervalMax) * time.Second
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// IsValidCampaignStatus checks if the campaign status is valid
func IsValidCampaignStatus(status string) bool {
	switch status {
	case CampaignStatusDraft, CampaignStatusRunning, CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusErred:
		return true
	default:
		return false
	}
}

// IsValidCounter checks that field names a campaign counter column
func IsValidCounter(field string) bool {
	return field == CounterSent || field == CounterFailed
}

// Template is a reusable message body referenced by campaigns
type Template struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
