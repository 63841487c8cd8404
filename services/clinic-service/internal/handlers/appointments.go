package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/appointments"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/inventory"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

type AppointmentHandler struct {
	svc    *appointments.Service
	logger *slog.Logger
}

func NewAppointmentHandler(svc *appointments.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

type appointmentResponse struct {
	ID                      string          `json:"id"`
	PatientID               string          `json:"patient_id"`
	ProfessionalID          string          `json:"professional_id"`
	ProcedureID             string          `json:"procedure_id"`
	Date                    string          `json:"date"`
	End                     string          `json:"end"`
	DurationMinutes         int             `json:"duration_minutes"`
	Price                   decimal.Decimal `json:"price"`
	Status                  model.Status    `json:"status"`
	Paid                    bool            `json:"paid"`
	StockDeducted           bool            `json:"stock_deducted"`
	Notes                   string          `json:"notes,omitempty"`
	ExternalCalendarEventID string          `json:"external_calendar_event_id,omitempty"`
	AllowedTransitions      []model.Status  `json:"allowed_transitions"`
	CreatedAt               string          `json:"created_at,omitempty"`
	UpdatedAt               string          `json:"updated_at,omitempty"`
}

func toResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		ProfessionalID:     a.ProfessionalID,
		ProcedureID:        a.ProcedureID,
		Date:               a.Date.UTC().Format(time.RFC3339),
		End:                a.End().UTC().Format(time.RFC3339),
		DurationMinutes:    a.DurationMinutes,
		Price:              a.Price,
		Status:             a.Status,
		Paid:               a.Paid,
		StockDeducted:      a.StockDeducted,
		Notes:              a.Notes,
		AllowedTransitions: lifecycle.Allowed(a.Status),
	}
	if a.ExternalCalendarEventID != nil {
		resp.ExternalCalendarEventID = *a.ExternalCalendarEventID
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !a.UpdatedAt.IsZero() {
		resp.UpdatedAt = a.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type transactionResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

func toTransaction(t *model.Transaction) *transactionResponse {
	if t == nil {
		return nil
	}
	return &transactionResponse{
		ID:          t.ID,
		Type:        string(t.Type),
		Category:    t.Category,
		Amount:      t.Amount,
		Description: t.Description,
		Date:        t.Date.UTC().Format(time.RFC3339),
	}
}

func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "missing principal"})
	}
	return p, ok
}

func parseTime(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, model.Invalid(field, "must be RFC3339")
	}
	return t, nil
}

type createAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	ProfessionalID  string `json:"professional_id"`
	ProcedureID     string `json:"procedure_id"`
	Date            string `json:"date"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Notes           string `json:"notes"`
}

// Appointments serves GET (list) and POST (create) on the collection.
func (h *AppointmentHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *AppointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	start, err := parseTime("date", req.Date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status, err := lifecycle.InitialStatus(req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	appt, err := h.svc.Create(r.Context(), actor, appointments.CreateInput{
		PatientID:       strings.TrimSpace(req.PatientID),
		ProfessionalID:  strings.TrimSpace(req.ProfessionalID),
		ProcedureID:     strings.TrimSpace(req.ProcedureID),
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Status:          status,
		Notes:           req.Notes,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(appt))
}

func (h *AppointmentHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	in := appointments.ListInput{
		ProfessionalID: strings.TrimSpace(q.Get("professional_id")),
		Limit:          50,
	}
	var err error
	if raw := q.Get("from"); raw != "" {
		if in.From, err = parseTime("from", raw); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if in.To, err = parseTime("to", raw); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	if raw := q.Get("status"); raw != "" {
		if in.Status, err = lifecycle.Parse(raw); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			in.Limit = n
		}
	}

	appts, err := h.svc.List(r.Context(), actor, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

type updateAppointmentRequest struct {
	AppointmentID   string  `json:"appointment_id"`
	PatientID       *string `json:"patient_id"`
	ProfessionalID  *string `json:"professional_id"`
	ProcedureID     *string `json:"procedure_id"`
	Date            *string `json:"date"`
	DurationMinutes *int    `json:"duration_minutes"`
	Notes           *string `json:"notes"`
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		badRequest(w, "appointment_id required")
		return
	}

	in := appointments.UpdateInput{
		PatientID:       req.PatientID,
		ProfessionalID:  req.ProfessionalID,
		ProcedureID:     req.ProcedureID,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	}
	if req.Date != nil {
		start, err := parseTime("date", *req.Date)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		in.Start = &start
	}

	appt, err := h.svc.Update(r.Context(), actor, strings.TrimSpace(req.AppointmentID), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(appt))
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type lifecycleResponse struct {
	Appointment appointmentResponse  `json:"appointment"`
	Income      *transactionResponse `json:"income,omitempty"`
	Expense     *transactionResponse `json:"expense,omitempty"`
	Inventory   []inventory.Delta    `json:"inventory"`
}

func (h *AppointmentHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		badRequest(w, "appointment_id required")
		return
	}
	target, err := lifecycle.Parse(req.Status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.Transition(r.Context(), actor, strings.TrimSpace(req.AppointmentID), target)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, lifecycleResponse{
		Appointment: toResponse(res.Appointment),
		Expense:     toTransaction(res.Expense),
		Inventory:   nonNil(res.Inventory),
	})
}

type payRequest struct {
	AppointmentID string `json:"appointment_id"`
	PaymentMethod string `json:"payment_method"`
}

func (h *AppointmentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req payRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		badRequest(w, "appointment_id required")
		return
	}

	res, err := h.svc.Pay(r.Context(), actor, strings.TrimSpace(req.AppointmentID), req.PaymentMethod)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, lifecycleResponse{
		Appointment: toResponse(res.Appointment),
		Income:      toTransaction(&res.Income),
		Expense:     toTransaction(res.Expense),
		Inventory:   nonNil(res.Inventory),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
