package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/service"
)

type mockCampaignService struct {
	startFn   func(id int64) (*service.ControlResult, error)
	pauseFn   func(id int64) (*service.ControlResult, error)
	resumeFn  func(id int64) (*service.ControlResult, error)
	statusFn  func() (*service.DispatcherStatus, error)
	clearErr  error
	previewFn func(id int64, req *service.PreviewRequest) (*service.PreviewResult, error)
	listFn    func(id int64, filter models.DeliveryFilter) (*service.DeliveryListResult, error)
}

func (m *mockCampaignService) Start(ctx context.Context, id int64) (*service.ControlResult, error) {
	return m.startFn(id)
}

func (m *mockCampaignService) Pause(ctx context.Context, id int64) (*service.ControlResult, error) {
	return m.pauseFn(id)
}

func (m *mockCampaignService) Resume(ctx context.Context, id int64) (*service.ControlResult, error) {
	return m.resumeFn(id)
}

func (m *mockCampaignService) Status(ctx context.Context) (*service.DispatcherStatus, error) {
	return m.statusFn()
}

func (m *mockCampaignService) Clear(ctx context.Context) error {
	return m.clearErr
}

func (m *mockCampaignService) Preview(ctx context.Context, id int64, req *service.PreviewRequest) (*service.PreviewResult, error) {
	return m.previewFn(id, req)
}

func (m *mockCampaignService) ListDeliveries(ctx context.Context, id int64, filter models.DeliveryFilter) (*service.DeliveryListResult, error) {
	return m.listFn(id, filter)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
