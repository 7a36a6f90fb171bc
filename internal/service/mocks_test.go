package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/worker"
)

var errDatabase = errors.New("connection refused")

// mockCampaignRepository for testing
type mockCampaignRepository struct {
	campaigns []*models.Campaign
	updateErr error
	countErr  error
}

func (m *mockCampaignRepository) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	for _, c := range m.campaigns {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, models.ErrNotFoundWithMsg("campaign not found")
}

func (m *mockCampaignRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	c, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	c.Status = status
	return nil
}

func (m *mockCampaignRepository) MarkStarted(ctx context.Context, id int64) error {
	return m.UpdateStatus(ctx, id, models.CampaignStatusRunning)
}

func (m *mockCampaignRepository) MarkFinished(ctx context.Context, id int64, status string) error {
	return m.UpdateStatus(ctx, id, status)
}

func (m *mockCampaignRepository) IncrementCounter(ctx context.Context, id int64, field string) error {
	return nil
}

func (m *mockCampaignRepository) CountRunning(ctx context.Context) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	var n int64
	for _, c := range m.campaigns {
		if c.Status == models.CampaignStatusRunning {
			n++
		}
	}
	return n, nil
}

// mockTemplateRepository for testing
type mockTemplateRepository struct {
	templates map[int64]*models.Template
}

func (m *mockTemplateRepository) GetByID(ctx context.Context, id int64) (*models.Template, error) {
	if t, ok := m.templates[id]; ok {
		return t, nil
	}
	return nil, models.ErrNotFoundWithMsg("template not found")
}

// mockRecipientRepository for testing
type mockRecipientRepository struct {
	recipients map[int64]*models.Recipient
}

func (m *mockRecipientRepository) GetByID(ctx context.Context, id int64) (*models.Recipient, error) {
	if r, ok := m.recipients[id]; ok {
		return r, nil
	}
	return nil, models.ErrNotFoundWithMsg("recipient not found")
}

func (m *mockRecipientRepository) GetPending(ctx context.Context, campaignID int64) ([]*models.Recipient, error) {
	return nil, nil
}

func (m *mockRecipientRepository) UpdateLinkStatus(ctx context.Context, campaignID, recipientID int64, status string, lastError *string) error {
	return nil
}

// mockDeliveryRepository for testing
type mockDeliveryRepository struct {
	records    []*models.DeliveryRecord
	listErr    error
	lastFilter models.DeliveryFilter
}

func (m *mockDeliveryRepository) Insert(ctx context.Context, record *models.DeliveryRecord) error {
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, record)
	return nil
}

func (m *mockDeliveryRepository) List(ctx context.Context, filter models.DeliveryFilter) ([]*models.DeliveryRecord, int64, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}

	filtered := []*models.DeliveryRecord{}
	for _, r := range m.records {
		if r.CampaignID != filter.CampaignID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}

	total := int64(len(filtered))
	start := min(filter.Offset(), len(filtered))
	end := min(start+filter.PageSize, len(filtered))

	return filtered[start:end], total, nil
}

// mockDispatcher records the control calls made by the service
type mockDispatcher struct {
	active    int64
	paused    bool
	launchErr error
	clearErr  error
	launched  []int64
	resumes   int
	status    worker.Status

	// finishing makes Resume report that the run already left its loop
	finishing bool
	waitErr   error
	waits     int
}

func (m *mockDispatcher) Launch(ctx context.Context, campaignID int64) error {
	if m.launchErr != nil {
		return m.launchErr
	}
	m.launched = append(m.launched, campaignID)
	m.active = campaignID
	m.paused = false
	return nil
}

func (m *mockDispatcher) Pause() { m.paused = true }

func (m *mockDispatcher) Resume() bool {
	if m.finishing {
		return false
	}
	m.paused = false
	m.resumes++
	return true
}

func (m *mockDispatcher) WaitContext(ctx context.Context) error {
	m.waits++
	if m.waitErr != nil {
		return m.waitErr
	}
	m.active = 0
	m.finishing = false
	return nil
}

func (m *mockDispatcher) Clear() error { return m.clearErr }

func (m *mockDispatcher) ActiveCampaignID() int64 { return m.active }

func (m *mockDispatcher) Status() worker.Status { return m.status }

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func firstOption(n int) int { return 0 }

func stringPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }
