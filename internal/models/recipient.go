package models

// Link status constants for campaign_recipients
const (
	LinkStatusPending = "pending"
	LinkStatusSent    = "sent"
	LinkStatusFailed  = "failed"
)

// notInformed fills company and role placeholders a contact left blank
const notInformed = "Não informado"

// Recipient is a contact linked to a campaign
type Recipient struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	NormalizedPhone string `json:"normalized_phone"`
	Company         string `json:"company"`
	Role            string `json:"role"`
}

// Variables returns the placeholder values used when personalizing a message
func (r *Recipient) Variables() map[string]string {
	company := r.Company
	if company == "" {
		company = notInformed
	}
	role := r.Role
	if role == "" {
		role = notInformed
	}

	return map[string]string{
		"nome":     r.Name,
		"empresa":  company,
		"telefone": r.Phone,
		"cargo":    role,
	}
}

// IsValidLinkStatus checks if the link status is valid
func IsValidLinkStatus(status string) bool {
	switch status {
	case LinkStatusPending, LinkStatusSent, LinkStatusFailed:
		return true
	default:
		return false
	}
}
