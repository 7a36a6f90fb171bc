package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/worker"
)

var statusByCode = map[string]int{
	"INVALID_INPUT": http.StatusBadRequest,
	"NOT_FOUND":     http.StatusNotFound,
	"CONFLICT":      http.StatusConflict,
	"UNAVAILABLE":   http.StatusServiceUnavailable,
}

// bare errors from the repositories and the dispatcher that clients may see
var knownFailures = []struct {
	err  error
	code string
}{
	{models.ErrNotFound, "NOT_FOUND"},
	{models.ErrConflict, "CONFLICT"},
	{worker.ErrAlreadyRunning, "CONFLICT"},
	{models.ErrUnavailable, "UNAVAILABLE"},
}

// respondFailure answers a failed campaign or dispatcher call.
// Unrecognised errors are logged and reported as a generic 500.
func respondFailure(w http.ResponseWriter, err error, logger *slog.Logger) {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		respondError(w, statusForCode(appErr.Code), appErr.Code, appErr.Message)
		return
	}

	for _, known := range knownFailures {
		if errors.Is(err, known.err) {
			respondError(w, statusForCode(known.code), known.code, err.Error())
			return
		}
	}

	logger.Error("control request failed", slog.String("error", err.Error()))
	respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "the dispatcher could not complete the request")
}

func statusForCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
