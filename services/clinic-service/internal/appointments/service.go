// Package appointments runs the appointment lifecycle: booking, edits, status
// transitions and payment, with their stock and ledger side effects applied
// in the same tenant transaction.
package appointments

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/conflict"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage"
)

type Service struct {
	store    storage.Store
	queue    outbox.Queue
	detector *conflict.Detector
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store storage.Store, queue outbox.Queue, detector *conflict.Detector, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		queue:    queue,
		detector: detector,
		logger:   logger,
		tracer:   otelx.Tracer("appointments"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInput struct {
	PatientID       string
	ProfessionalID  string
	ProcedureID     string
	Start           time.Time
	DurationMinutes int
	Status          model.Status
	Notes           string
	IdempotencyKey  string
}

func (in CreateInput) validate() error {
	switch {
	case strings.TrimSpace(in.PatientID) == "":
		return model.Invalid("patient_id", "required")
	case strings.TrimSpace(in.ProfessionalID) == "":
		return model.Invalid("professional_id", "required")
	case strings.TrimSpace(in.ProcedureID) == "":
		return model.Invalid("procedure_id", "required")
	case in.Start.IsZero():
		return model.Invalid("start", "required")
	case in.DurationMinutes < 0:
		return model.Invalid("duration_minutes", "must be positive")
	case in.Status != "" && in.Status != model.StatusPendingApproval && in.Status != model.StatusScheduled:
		return model.Invalid("status", "new appointments start as PENDING_APPROVAL or SCHEDULED")
	}
	return nil
}

// Create books an appointment after checking the professional's agenda. The
// price is a snapshot of the procedure price; a zero duration takes the
// procedure's default. A repeated IdempotencyKey returns the appointment
// created by the first call.
func (s *Service) Create(ctx context.Context, actor auth.Principal, in CreateInput) (model.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.create")
	defer span.End()

	if err := authorize(actor, auth.StaffRoles); err != nil {
		return model.Appointment{}, err
	}
	if err := in.validate(); err != nil {
		return model.Appointment{}, err
	}
	if in.Status == "" {
		in.Status = model.StatusScheduled
	}

	var appt model.Appointment
	var replayed bool
	err := s.store.InTenant(ctx, actor.CompanyID, func(ctx context.Context, tx storage.Tx) error {
		replayed = false
		if in.IdempotencyKey != "" {
			existingID, err := tx.ClaimIdempotencyKey(ctx, in.IdempotencyKey)
			if err != nil {
				return err
			}
			if existingID != "" {
				replayed = true
				appt, err = tx.GetAppointment(ctx, existingID)
				return err
			}
		}

		proc, err := tx.GetProcedure(ctx, in.ProcedureID)
		if err != nil {
			return err
		}
		if _, err := tx.GetPatient(ctx, in.PatientID); err != nil {
			return err
		}

		appt = model.Appointment{
			PatientID:       in.PatientID,
			ProfessionalID:  in.ProfessionalID,
			ProcedureID:     proc.ID,
			Date:            in.Start,
			DurationMinutes: in.DurationMinutes,
			Price:           proc.Price,
			Status:          in.Status,
			Notes:           strings.TrimSpace(in.Notes),
		}
		if appt.DurationMinutes == 0 {
			appt.DurationMinutes = proc.DurationMinutes
		}
		if appt.DurationMinutes <= 0 {
			return model.Invalid("duration_minutes", "must be positive")
		}

		if err := s.detector.Check(ctx, tx, appt.ProfessionalID, appt.Date, appt.DurationMinutes, ""); err != nil {
			return err
		}
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return err
		}
		if err := s.record(ctx, tx, actor, appt.ID, model.ActionCreated, "", appt.Status); err != nil {
			return err
		}
		if in.IdempotencyKey != "" {
			return tx.FinalizeIdempotencyKey(ctx, in.IdempotencyKey, appt.ID)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, s.fail(span, err)
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID), attribute.Bool("idempotent_replay", replayed))
	if !replayed {
		s.notifyCalendar(ctx, appt)
	}
	return appt, nil
}

// UpdateInput carries the fields to change; nil means unchanged.
type UpdateInput struct {
	PatientID       *string
	ProfessionalID  *string
	ProcedureID     *string
	Start           *time.Time
	DurationMinutes *int
	Notes           *string
}

// Update edits a non-terminal appointment. Changing the professional, start
// or duration re-runs the overlap check, excluding the appointment itself.
// Changing the procedure re-snapshots the price.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id string, in UpdateInput) (model.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.update", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer span.End()

	if err := authorize(actor, auth.StaffRoles); err != nil {
		return model.Appointment{}, err
	}

	var appt model.Appointment
	err := s.store.InTenant(ctx, actor.CompanyID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		appt, err = tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status == model.StatusCompleted || appt.Status == model.StatusCanceled {
			return model.ErrImmutable
		}

		reschedule := false
		if in.PatientID != nil && *in.PatientID != appt.PatientID {
			if _, err := tx.GetPatient(ctx, *in.PatientID); err != nil {
				return err
			}
			appt.PatientID = *in.PatientID
		}
		if in.ProcedureID != nil && *in.ProcedureID != appt.ProcedureID {
			proc, err := tx.GetProcedure(ctx, *in.ProcedureID)
			if err != nil {
				return err
			}
			appt.ProcedureID = proc.ID
			appt.Price = proc.Price
		}
		if in.ProfessionalID != nil && *in.ProfessionalID != appt.ProfessionalID {
			if strings.TrimSpace(*in.ProfessionalID) == "" {
				return model.Invalid("professional_id", "required")
			}
			appt.ProfessionalID = *in.ProfessionalID
			reschedule = true
		}
		if in.Start != nil && !in.Start.Equal(appt.Date) {
			if in.Start.IsZero() {
				return model.Invalid("start", "required")
			}
			appt.Date = *in.Start
			reschedule = true
		}
		if in.DurationMinutes != nil && *in.DurationMinutes != appt.DurationMinutes {
			if *in.DurationMinutes <= 0 {
				return model.Invalid("duration_minutes", "must be positive")
			}
			appt.DurationMinutes = *in.DurationMinutes
			reschedule = true
		}
		if in.Notes != nil {
			appt.Notes = strings.TrimSpace(*in.Notes)
		}

		if reschedule {
			if err := s.detector.Check(ctx, tx, appt.ProfessionalID, appt.Date, appt.DurationMinutes, appt.ID); err != nil {
				return err
			}
		}
		if err := tx.UpdateAppointment(ctx, &appt); err != nil {
			return err
		}
		return s.record(ctx, tx, actor, appt.ID, model.ActionUpdated, appt.Status, appt.Status)
	})
	if err != nil {
		return model.Appointment{}, s.fail(span, err)
	}

	s.notifyCalendar(ctx, appt)
	return appt, nil
}

type ListInput struct {
	From           time.Time
	To             time.Time
	ProfessionalID string
	Status         model.Status
	Limit          int
}

func (s *Service) List(ctx context.Context, actor auth.Principal, in ListInput) ([]model.Appointment, error) {
	var out []model.Appointment
	err := s.store.InTenant(ctx, actor.CompanyID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListAppointments(ctx, storage.ListFilter(in))
		return err
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (model.Appointment, error) {
	var appt model.Appointment
	err := s.store.InTenant(ctx, actor.CompanyID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		appt, err = tx.GetAppointment(ctx, id)
		return err
	})
	return appt, err
}

// authorize is the service side of role gating, so callers other than the
// HTTP API get the same rules.
func authorize(actor auth.Principal, roles []auth.Role) error {
	if actor.CompanyID == "" {
		return model.ErrForbidden
	}
	if !slices.Contains(roles, actor.Role) {
		return model.ErrForbidden
	}
	return nil
}

func (s *Service) record(ctx context.Context, tx storage.Tx, actor auth.Principal, appointmentID, action string, from, to model.Status) error {
	return tx.InsertActivity(ctx, &model.Activity{
		AppointmentID: appointmentID,
		ActorID:       actor.UserID,
		Action:        action,
		FromStatus:    from,
		ToStatus:      to,
		CreatedAt:     s.now(),
	})
}

// fail records err on span. Expected domain errors do not mark the span as
// failed.
func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	var ce *model.ConflictError
	switch {
	case errors.As(err, &ce),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrAlreadyPaid),
		errors.Is(err, model.ErrAlreadyCompleted),
		errors.Is(err, model.ErrImmutable),
		errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrForbidden):
	default:
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
