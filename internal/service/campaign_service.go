package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/phone"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/repository"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/worker"
)

// Dispatcher is the part of worker.Dispatcher the campaign service drives
type Dispatcher interface {
	Launch(ctx context.Context, campaignID int64) error
	Pause()
	Resume() bool
	WaitContext(ctx context.Context) error
	Clear() error
	ActiveCampaignID() int64
	Status() worker.Status
}

// CampaignService handles operator control of campaign runs
type CampaignService interface {
	Start(ctx context.Context, campaignID int64) (*ControlResult, error)
	Pause(ctx context.Context, campaignID int64) (*ControlResult, error)
	Resume(ctx context.Context, campaignID int64) (*ControlResult, error)
	Status(ctx context.Context) (*DispatcherStatus, error)
	Clear(ctx context.Context) error
	Preview(ctx context.Context, campaignID int64, req *PreviewRequest) (*PreviewResult, error)
	ListDeliveries(ctx context.Context, campaignID int64, filter models.DeliveryFilter) (*DeliveryListResult, error)
}

type campaignService struct {
	campaignRepo  repository.CampaignRepository
	templateRepo  repository.TemplateRepository
	recipientRepo repository.RecipientRepository
	deliveryRepo  repository.DeliveryRepository
	templateSvc   TemplateService
	dispatcher    Dispatcher
	logger        *slog.Logger
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	templateRepo repository.TemplateRepository,
	recipientRepo repository.RecipientRepository,
	deliveryRepo repository.DeliveryRepository,
	templateSvc TemplateService,
	dispatcher Dispatcher,
	logger *slog.Logger,
) CampaignService {
	return &campaignService{
		campaignRepo:  campaignRepo,
		templateRepo:  templateRepo,
		recipientRepo: recipientRepo,
		deliveryRepo:  deliveryRepo,
		templateSvc:   templateSvc,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// Start launches a background run for the campaign
func (s *campaignService) Start(ctx context.Context, campaignID int64) (*ControlResult, error) {
	if _, err := s.campaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}

	if err := s.launch(ctx, campaignID); err != nil {
		return nil, err
	}

	return &ControlResult{
		CampaignID: campaignID,
		Status:     models.CampaignStatusRunning,
		Message:    "campaign run started",
	}, nil
}

// Pause stops the active run before its next item and stores the paused status.
// A campaign the store still marks as running without a live run is paused too,
// which is how a run orphaned by a crash gets unstuck.
func (s *campaignService) Pause(ctx context.Context, campaignID int64) (*ControlResult, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	active := s.dispatcher.ActiveCampaignID() == campaignID
	if !active && campaign.Status != models.CampaignStatusRunning {
		return nil, models.ErrConflictWithMsg(
			fmt.Sprintf("campaign %d is not running (status: %s)", campaignID, campaign.Status),
		)
	}

	if active {
		s.dispatcher.Pause()
	} else {
		s.logger.Warn("pausing campaign without a live run",
			slog.Int64("campaign_id", campaignID),
		)
	}

	if err := s.campaignRepo.UpdateStatus(ctx, campaignID, models.CampaignStatusPaused); err != nil {
		s.logger.Error("failed to store paused status",
			slog.Int64("campaign_id", campaignID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to pause campaign: %w", err)
	}

	return &ControlResult{
		CampaignID: campaignID,
		Status:     models.CampaignStatusPaused,
		Message:    "campaign paused",
	}, nil
}

// Resume clears the pause flag when the campaign's run is still in flight.
// Otherwise it starts a fresh run over the remaining pending recipients.
// A run that already left its loop is waited for and then replaced.
func (s *campaignService) Resume(ctx context.Context, campaignID int64) (*ControlResult, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if s.dispatcher.ActiveCampaignID() == campaignID {
		if !s.dispatcher.Resume() {
			return s.relaunch(ctx, campaignID)
		}

		if err := s.campaignRepo.UpdateStatus(ctx, campaignID, models.CampaignStatusRunning); err != nil {
			s.logger.Error("failed to store running status",
				slog.Int64("campaign_id", campaignID),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("failed to resume campaign: %w", err)
		}

		return &ControlResult{
			CampaignID: campaignID,
			Status:     models.CampaignStatusRunning,
			Message:    "campaign resumed",
		}, nil
	}

	return s.restart(ctx, campaign)
}

// relaunch waits out a run that is finishing and restarts from the status it stored
func (s *campaignService) relaunch(ctx context.Context, campaignID int64) (*ControlResult, error) {
	s.logger.Info("run is finishing, waiting before restart", slog.Int64("campaign_id", campaignID))

	if err := s.dispatcher.WaitContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to resume campaign: %w", err)
	}

	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	return s.restart(ctx, campaign)
}

func (s *campaignService) restart(ctx context.Context, campaign *models.Campaign) (*ControlResult, error) {
	switch campaign.Status {
	case models.CampaignStatusPaused, models.CampaignStatusErred, models.CampaignStatusRunning:
	default:
		return nil, models.ErrConflictWithMsg(
			fmt.Sprintf("campaign %d cannot be resumed (status: %s)", campaign.ID, campaign.Status),
		)
	}

	if err := s.launch(ctx, campaign.ID); err != nil {
		return nil, err
	}

	return &ControlResult{
		CampaignID: campaign.ID,
		Status:     models.CampaignStatusRunning,
		Message:    "campaign run restarted",
	}, nil
}

// Status returns the dispatcher snapshot
func (s *campaignService) Status(ctx context.Context) (*DispatcherStatus, error) {
	stored, err := s.campaignRepo.CountRunning(ctx)
	if err != nil {
		s.logger.Error("failed to count running campaigns", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to read dispatcher status: %w", err)
	}

	return &DispatcherStatus{
		Status:        s.dispatcher.Status(),
		StoredRunning: stored,
	}, nil
}

// Clear drops any queued items left over from a previous run
func (s *campaignService) Clear(ctx context.Context) error {
	if err := s.dispatcher.Clear(); err != nil {
		if errors.Is(err, worker.ErrAlreadyRunning) {
			return models.ErrConflictWithMsg("cannot clear the queue while a campaign is running")
		}
		return err
	}
	return nil
}

// Preview renders the campaign message for one recipient
func (s *campaignService) Preview(ctx context.Context, campaignID int64, req *PreviewRequest) (*PreviewResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	recipient, err := s.recipientRepo.GetByID(ctx, req.RecipientID)
	if err != nil {
		return nil, err
	}

	var template string
	if req.OverrideTemplate != nil && *req.OverrideTemplate != "" {
		if err := s.templateSvc.ValidateTemplate(*req.OverrideTemplate); err != nil {
			return nil, err
		}
		template = *req.OverrideTemplate
	} else {
		template, err = worker.ResolveMessage(ctx, s.templateRepo, campaign)
		if err != nil {
			if errors.Is(err, worker.ErrNoMessage) {
				return nil, models.ErrInvalidInput(err.Error())
			}
			return nil, err
		}
	}

	key := recipient.NormalizedPhone
	if key == "" {
		key, _ = phone.Normalize(recipient.Phone)
	}

	preview := &RecipientPreview{
		ID:              recipient.ID,
		Name:            recipient.Name,
		Phone:           recipient.Phone,
		NormalizedPhone: key,
		ValidPhone:      phone.IsValid(key),
	}
	if preview.ValidPhone {
		preview.Address = phone.Address(key)
	}

	return &PreviewResult{
		RenderedMessage: s.templateSvc.Render(template, recipient.Variables()),
		UsedTemplate:    template,
		Placeholders:    s.templateSvc.ExtractPlaceholders(template),
		Recipient:       preview,
	}, nil
}

// ListDeliveries returns a page of the campaign's delivery records
func (s *campaignService) ListDeliveries(ctx context.Context, campaignID int64, filter models.DeliveryFilter) (*DeliveryListResult, error) {
	switch filter.Status {
	case "", models.DeliveryStatusSent, models.DeliveryStatusFailed:
	default:
		return nil, models.ErrInvalidInput("invalid status (must be 'sent' or 'failed')")
	}

	if _, err := s.campaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}

	filter.CampaignID = campaignID
	filter.Normalize()

	records, total, err := s.deliveryRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list deliveries",
			slog.Int64("campaign_id", campaignID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}

	if records == nil {
		records = []*models.DeliveryRecord{}
	}

	return &DeliveryListResult{
		Data:       records,
		Pagination: models.NewPage(filter.Page, filter.PageSize, total),
	}, nil
}

func (s *campaignService) launch(ctx context.Context, campaignID int64) error {
	if err := s.dispatcher.Launch(ctx, campaignID); err != nil {
		if errors.Is(err, worker.ErrAlreadyRunning) {
			msg := "another campaign run is already active"
			if active := s.dispatcher.ActiveCampaignID(); active != 0 {
				msg = fmt.Sprintf("campaign %d is already running", active)
			}
			return models.ErrConflictWithMsg(msg)
		}
		s.logger.Error("failed to launch campaign run",
			slog.Int64("campaign_id", campaignID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to start campaign: %w", err)
	}

	s.logger.Info("campaign run launched", slog.Int64("campaign_id", campaignID))
	return nil
}
