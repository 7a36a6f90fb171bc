package handler

import (
	"log/slog"
	"net/http"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/service"
)

// DispatcherHandler exposes the dispatcher state
type DispatcherHandler struct {
	campaignService service.CampaignService
	logger          *slog.Logger
}

// NewDispatcherHandler creates a new dispatcher handler
func NewDispatcherHandler(campaignService service.CampaignService, logger *slog.Logger) *DispatcherHandler {
	return &DispatcherHandler{
		campaignService: campaignService,
		logger:          logger,
	}
}

// Status handles GET /dispatcher
func (h *DispatcherHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.campaignService.Status(r.Context())
	if err != nil {
		respondFailure(w, err, h.logger)
		return
	}

	respondSuccess(w, status)
}

// Clear handles POST /dispatcher/clear
func (h *DispatcherHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.campaignService.Clear(r.Context()); err != nil {
		respondFailure(w, err, h.logger)
		return
	}

	respondSuccess(w, map[string]bool{"cleared": true})
}
