package appointments

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/inventory"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage"
)

// TransitionResult is the appointment after the change plus the side effects
// applied when the change entered COMPLETED.
type TransitionResult struct {
	Appointment model.Appointment
	Expense     *model.Transaction
	Inventory   []inventory.Delta
}

// Transition moves an appointment to target. The transition table is checked
// on the locked row before anything else runs. Entering COMPLETED deducts
// stock and posts the supply expense unless that already happened.
// Cancellation reverses nothing.
func (s *Service) Transition(ctx context.Context, actor auth.Principal, id string, target model.Status) (TransitionResult, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.transition", trace.WithAttributes(
		attribute.String("appointment.id", id),
		attribute.String("appointment.target_status", string(target)),
	))
	defer span.End()

	if err := authorize(actor, auth.StaffRoles); err != nil {
		return TransitionResult{}, err
	}

	var res TransitionResult
	var alerts []inventory.LowStockAlert
	err := s.store.InTenant(ctx, actor.CompanyID, func(ctx context.Context, tx storage.Tx) error {
		res, alerts = TransitionResult{}, nil

		appt, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := lifecycle.Validate(appt.Status, target); err != nil {
			return err
		}
		from := appt.Status

		// Pending bookings do not block the agenda, so approval re-checks it.
		if from == model.StatusPendingApproval && lifecycle.IsActive(target) {
			if err := s.detector.Check(ctx, tx, appt.ProfessionalID, appt.Date, appt.DurationMinutes, appt.ID); err != nil {
				return err
			}
		}

		if target == model.StatusCompleted && !appt.StockDeducted {
			effects, err := s.settleSupplies(ctx, tx, &appt)
			if err != nil {
				return err
			}
			res.Expense, res.Inventory, alerts = effects.expense, effects.deltas, effects.alerts
		}

		appt.Status = target
		if err := tx.UpdateAppointment(ctx, &appt); err != nil {
			return err
		}
		if err := s.record(ctx, tx, actor, appt.ID, model.ActionTransition, from, target); err != nil {
			return err
		}
		res.Appointment = appt
		return nil
	})
	if err != nil {
		return TransitionResult{}, s.fail(span, err)
	}

	s.notifyCalendar(ctx, res.Appointment)
	s.notifyLowStock(ctx, alerts)
	return res, nil
}

// PaymentResult is what a payment produced.
type PaymentResult struct {
	Appointment model.Appointment
	Income      model.Transaction
	Expense     *model.Transaction
	Inventory   []inventory.Delta
}

// Pay records payment for an appointment. It posts the income, and when stock
// has not been deducted yet it also deducts and posts the supply expense.
// The appointment ends up paid, COMPLETED and deducted. Both guards are read
// from the locked row inside the transaction that writes the effects, so
// Pay and Transition cannot double-apply either side effect.
func (s *Service) Pay(ctx context.Context, actor auth.Principal, id, method string) (PaymentResult, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.pay", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer span.End()

	if err := authorize(actor, auth.AdminRoles); err != nil {
		return PaymentResult{}, err
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return PaymentResult{}, model.Invalid("payment_method", "required")
	}

	var res PaymentResult
	var alerts []inventory.LowStockAlert
	err := s.store.InTenant(ctx, actor.CompanyID, func(ctx context.Context, tx storage.Tx) error {
		res, alerts = PaymentResult{}, nil

		appt, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.Paid {
			return model.ErrAlreadyPaid
		}
		if appt.Status == model.StatusCanceled {
			return &model.TransitionError{From: appt.Status, To: model.StatusCompleted}
		}
		from := appt.Status

		proc, err := tx.GetProcedure(ctx, appt.ProcedureID)
		if err != nil {
			return err
		}
		patient, err := tx.GetPatient(ctx, appt.PatientID)
		if err != nil {
			return err
		}
		res.Income, err = ledger.PostIncome(ctx, tx, appt, proc, patient, method, s.now())
		if err != nil {
			return err
		}

		if !appt.StockDeducted {
			effects, err := s.settleSupplies(ctx, tx, &appt)
			if err != nil {
				return err
			}
			res.Expense, res.Inventory, alerts = effects.expense, effects.deltas, effects.alerts
		}

		appt.Paid = true
		appt.Status = model.StatusCompleted
		if err := tx.UpdateAppointment(ctx, &appt); err != nil {
			return err
		}
		if err := s.record(ctx, tx, actor, appt.ID, model.ActionPaid, from, model.StatusCompleted); err != nil {
			return err
		}
		res.Appointment = appt
		return nil
	})
	if err != nil {
		return PaymentResult{}, s.fail(span, err)
	}

	s.notifyCalendar(ctx, res.Appointment)
	s.notifyLowStock(ctx, alerts)
	return res, nil
}

type supplyEffects struct {
	expense *model.Transaction
	deltas  []inventory.Delta
	alerts  []inventory.LowStockAlert
}

// settleSupplies deducts the procedure's supplies, posts the supply expense
// and flips StockDeducted on appt. The caller writes appt in the same
// transaction.
func (s *Service) settleSupplies(ctx context.Context, tx storage.Tx, appt *model.Appointment) (supplyEffects, error) {
	proc, err := tx.GetProcedure(ctx, appt.ProcedureID)
	if err != nil {
		return supplyEffects{}, err
	}
	patient, err := tx.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return supplyEffects{}, err
	}
	lines, err := tx.SupplyLines(ctx, proc.ID)
	if err != nil {
		return supplyEffects{}, err
	}

	now := s.now()
	deducted, err := inventory.Deduct(ctx, tx, *appt, proc, lines, now)
	if err != nil {
		return supplyEffects{}, err
	}
	expense, err := ledger.PostSupplyExpense(ctx, tx, *appt, proc, patient, inventory.SupplyCost(lines), now)
	if err != nil {
		return supplyEffects{}, err
	}
	appt.StockDeducted = true
	return supplyEffects{expense: expense, deltas: deducted.Deltas, alerts: deducted.Alerts}, nil
}
