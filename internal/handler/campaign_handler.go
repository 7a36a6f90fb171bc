package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/service"
)

// CampaignHandler handles campaign control HTTP requests
type CampaignHandler struct {
	campaignService service.CampaignService
	logger          *slog.Logger
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService service.CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		logger:          logger,
	}
}

// Routes mounts the campaign endpoints under /campaigns
func (h *CampaignHandler) Routes(r chi.Router) {
	r.Post("/{id}/start", h.StartCampaign)
	r.Post("/{id}/pause", h.PauseCampaign)
	r.Post("/{id}/resume", h.ResumeCampaign)
	r.Post("/{id}/preview", h.PreviewMessage)
	r.Get("/{id}/deliveries", h.ListDeliveries)
}

// StartCampaign handles POST /campaigns/{id}/start
func (h *CampaignHandler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	result, err := h.campaignService.Start(r.Context(), id)
	if err != nil {
		respondFailure(w, err, h.logger)
		return
	}

	respondAccepted(w, result)
}

// PauseCampaign handles POST /campaigns/{id}/pause
func (h *CampaignHandler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	result, err := h.campaignService.Pause(r.Context(), id)
	if err != nil {
		respondFailure(w, err, h.logger)
		return
	}

	respondSuccess(w, result)
}

// ResumeCampaign handles POST /campaigns/{id}/resume
func (h *CampaignHandler) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	result, err := h.campaignService.Resume(r.Context(), id)
	if err != nil {
		respondFailure(w, err, h.logger)
		return
	}

	respondAccepted(w, result)
}

// PreviewMessage handles POST /campaigns/{id}/preview
func (h *CampaignHandler) PreviewMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var req service.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	result, err := h.campaignService.Preview(r.Context(), id, &req)
	if err != nil {
		respondFailure(w, err, h.logger)
		return
	}

	respondSuccess(w, result)
}

// ListDeliveries handles GET /campaigns/{id}/deliveries
func (h *CampaignHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))

	filter := models.DeliveryFilter{
		Status:   query.Get("status"),
		Page:     page,
		PageSize: pageSize,
	}

	result, err := h.campaignService.ListDeliveries(r.Context(), id, filter)
	if err != nil {
		respondFailure(w, err, h.logger)
		return
	}

	respondSuccess(w, result)
}

// campaignID reads the {id} URL parameter, answering 400 when it is not a positive integer
func campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Invalid campaign ID")
		return 0, false
	}
	return id, true
}
