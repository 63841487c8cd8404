package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

type errorResponse struct {
	Error    string         `json:"error"`
	Message  string         `json:"message"`
	Field    string         `json:"field,omitempty"`
	Conflict *conflictInfo  `json:"conflict,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

type conflictInfo struct {
	AppointmentID string `json:"appointment_id"`
	Start         string `json:"start"`
	End           string `json:"end"`
}

// writeError is the single place domain errors become HTTP responses. The
// error code lets clients tell a taken slot from an illegal status change.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		conflict   *model.ConflictError
		invalid    *model.ValidationError
		transition *model.TransitionError
	)
	switch {
	case errors.As(err, &conflict):
		httpx.WriteJSON(w, http.StatusConflict, errorResponse{
			Error:   "scheduling_conflict",
			Message: "the professional already has an appointment in this window",
			Conflict: &conflictInfo{
				AppointmentID: conflict.AppointmentID,
				Start:         conflict.Start.UTC().Format(time.RFC3339),
				End:           conflict.End.UTC().Format(time.RFC3339),
			},
		})
	case errors.As(err, &invalid):
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: invalid.Error(), Field: invalid.Field})
	case errors.As(err, &transition):
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid_transition",
			Message: transition.Error(),
			Details: map[string]any{"from": transition.From, "to": transition.To},
		})
	case errors.Is(err, model.ErrInvalidTransition):
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_transition", Message: err.Error()})
	case errors.Is(err, model.ErrAlreadyPaid):
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "already_paid", Message: err.Error()})
	case errors.Is(err, model.ErrAlreadyCompleted):
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "already_completed", Message: err.Error()})
	case errors.Is(err, model.ErrValidation):
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: err.Error()})
	case errors.Is(err, model.ErrImmutable):
		httpx.WriteJSON(w, http.StatusConflict, errorResponse{Error: "immutable", Message: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "resource not found"})
	case errors.Is(err, model.ErrForbidden):
		httpx.WriteJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Message: "not allowed"})
	default:
		logger.Error("request failed", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, message string) {
	httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}

func methodNotAllowed(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed", Message: "method not allowed"})
}
