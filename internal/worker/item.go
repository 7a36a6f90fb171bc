package worker

import (
	"fmt"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/phone"
)

// SendItem is one recipient's pending unit of work within a running campaign
type SendItem struct {
	CampaignID  int64
	RecipientID int64
	Name        string
	Phone       string
	Template    string
	Variables   map[string]string
	Attempts    int
	MaxAttempts int
}

// Key identifies the item within the queue
func (i *SendItem) Key() string {
	return fmt.Sprintf("%d_%d", i.CampaignID, i.RecipientID)
}

// CanRetry reports whether a critical failure may re-enqueue the item
func (i *SendItem) CanRetry() bool {
	return i.Attempts < i.MaxAttempts
}

func newSendItem(campaignID int64, recipient *models.Recipient, template string, maxAttempts int) *SendItem {
	key := recipient.NormalizedPhone
	if key == "" {
		key, _ = phone.Normalize(recipient.Phone)
	}

	return &SendItem{
		CampaignID:  campaignID,
		RecipientID: recipient.ID,
		Name:        recipient.Name,
		Phone:       key,
		Template:    template,
		Variables:   recipient.Variables(),
		MaxAttempts: maxAttempts,
	}
}
