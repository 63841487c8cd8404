package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/reconcile"
)

type ReconcileHandler struct {
	engine *reconcile.Engine
	logger *slog.Logger
}

func NewReconcileHandler(engine *reconcile.Engine, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{engine: engine, logger: logger}
}

type diagnoseResponse struct {
	Total    int                 `json:"total"`
	Problems []reconcile.Finding `json:"problems"`
}

func (h *ReconcileHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	findings, err := h.engine.Diagnose(r.Context(), actor.CompanyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, diagnoseResponse{Total: len(findings), Problems: findings})
}

type backfillRequest struct {
	Force bool `json:"force"`
}

func (h *ReconcileHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req backfillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid json body")
		return
	}
	if raw := r.URL.Query().Get("force"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "force must be a boolean")
			return
		}
		req.Force = force
	}

	res, err := h.engine.Backfill(r.Context(), actor.CompanyID, req.Force)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

type regenerateRequest struct {
	Confirm bool `json:"confirm"`
}

// Regenerate rewrites every supply expense of the caller's company. The body
// must carry {"confirm": true}.
func (h *ReconcileHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req regenerateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || !req.Confirm {
		badRequest(w, `regenerate requires {"confirm": true}`)
		return
	}

	h.logger.Warn("supply expense regeneration requested", "company_id", actor.CompanyID, "user_id", actor.UserID)
	res, err := h.engine.Regenerate(r.Context(), actor.CompanyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
