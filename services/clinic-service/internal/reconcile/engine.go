// Package reconcile compares the supply expenses in the ledger with what the
// current supply costs say they should be, and rewrites them on request.
//
// Candidates are the tenant's settled appointments (paid or stock deducted),
// walked by ID in batches. Appointments whose supplies cost nothing are
// skipped everywhere, so Diagnose right after Backfill reports nothing.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/inventory"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/ledger"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage"
)

type Problem string

const (
	ProblemMissing          Problem = "missing"
	ProblemDuplicate        Problem = "duplicate"
	ProblemWrongAmount      Problem = "wrong_amount"
	ProblemWrongDescription Problem = "wrong_description"
)

// Tolerance is the largest difference between the posted and the computed
// supply cost that is not reported.
var Tolerance = decimal.New(1, -2)

type Finding struct {
	AppointmentID     string          `json:"appointment_id"`
	PatientName       string          `json:"patient_name,omitempty"`
	ProcedureName     string          `json:"procedure_name"`
	Date              time.Time       `json:"date"`
	Problem           Problem         `json:"problem"`
	CorrectSupplyCost decimal.Decimal `json:"correct_supply_cost"`
	CurrentAmount     decimal.Decimal `json:"current_amount"`
}

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
	ActionFailed  = "failed"
)

type Detail struct {
	AppointmentID string          `json:"appointment_id"`
	Action        string          `json:"action"`
	Problem       Problem         `json:"problem,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Error         string          `json:"error,omitempty"`
}

type BackfillResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Details []Detail `json:"details"`
}

type RegenerateResult struct {
	Deleted int64 `json:"deleted"`
	Created int   `json:"created"`
	Skipped int   `json:"skipped"`
}

type Engine struct {
	store     storage.Store
	logger    *slog.Logger
	tracer    trace.Tracer
	batchSize int
	now       func() time.Time
}

type Option func(*Engine)

func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store storage.Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		logger:    logger,
		tracer:    otelx.Tracer("reconcile"),
		batchSize: 100,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// expected is what the ledger should hold for one appointment.
type expected struct {
	appt        model.Appointment
	proc        model.Procedure
	patient     model.Patient
	hasPatient  bool
	cost        decimal.Decimal
	expenses    []model.Transaction
	problem     Problem
	currentSum  decimal.Decimal
	zeroCost    bool
	missingProc bool
}

func (e *Engine) evaluate(ctx context.Context, tx storage.Tx, appt model.Appointment) (expected, error) {
	ex := expected{appt: appt}

	proc, err := tx.GetProcedure(ctx, appt.ProcedureID)
	if errors.Is(err, model.ErrNotFound) {
		ex.missingProc = true
		return ex, nil
	}
	if err != nil {
		return ex, err
	}
	ex.proc = proc

	lines, err := tx.SupplyLines(ctx, proc.ID)
	if err != nil {
		return ex, err
	}
	ex.cost = inventory.SupplyCost(lines)
	if !ex.cost.IsPositive() {
		ex.zeroCost = true
		return ex, nil
	}

	patient, err := tx.GetPatient(ctx, appt.PatientID)
	switch {
	case err == nil:
		ex.patient, ex.hasPatient = patient, true
	case !errors.Is(err, model.ErrNotFound):
		return ex, err
	}

	ex.expenses, err = tx.AppointmentTransactions(ctx, appt.ID, model.TransactionExpense, model.CategorySupplies)
	if err != nil {
		return ex, err
	}
	for _, t := range ex.expenses {
		ex.currentSum = ex.currentSum.Add(t.Amount)
	}
	ex.problem = classify(ex)
	return ex, nil
}

func classify(ex expected) Problem {
	switch {
	case len(ex.expenses) == 0:
		return ProblemMissing
	case len(ex.expenses) > 1:
		return ProblemDuplicate
	case ex.expenses[0].Amount.Sub(ex.cost).Abs().GreaterThan(Tolerance):
		return ProblemWrongAmount
	case ex.hasPatient && !ledger.MentionsPatient(ex.expenses[0], ex.patient.Name):
		return ProblemWrongDescription
	}
	return ""
}

func (ex expected) finding() Finding {
	return Finding{
		AppointmentID:     ex.appt.ID,
		PatientName:       ex.patient.Name,
		ProcedureName:     ex.proc.Name,
		Date:              ex.appt.Date,
		Problem:           ex.problem,
		CorrectSupplyCost: ex.cost,
		CurrentAmount:     ex.currentSum,
	}
}

// page loads the next batch of candidates after afterID in its own read
// transaction.
func (e *Engine) page(ctx context.Context, companyID, afterID string) ([]model.Appointment, error) {
	var out []model.Appointment
	err := e.store.InTenant(ctx, companyID, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.SettledAppointments(ctx, afterID, e.batchSize)
		return err
	})
	return out, err
}

// Diagnose reports every candidate whose supply expense is missing,
// duplicated, off by more than Tolerance or not naming the patient. It writes
// nothing.
func (e *Engine) Diagnose(ctx context.Context, companyID string) ([]Finding, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.diagnose", trace.WithAttributes(attribute.String("company.id", companyID)))
	defer span.End()

	findings := []Finding{}
	after := ""
	for {
		batch, err := e.page(ctx, companyID, after)
		if err != nil {
			return nil, e.fail(span, err)
		}
		if len(batch) == 0 {
			break
		}
		var found []Finding
		err = e.store.InTenant(ctx, companyID, func(ctx context.Context, tx storage.Tx) error {
			found = nil
			for _, appt := range batch {
				ex, err := e.evaluate(ctx, tx, appt)
				if err != nil {
					return fmt.Errorf("appointment %s: %w", appt.ID, err)
				}
				if ex.problem != "" {
					found = append(found, ex.finding())
				}
			}
			return nil
		})
		if err != nil {
			return nil, e.fail(span, err)
		}
		findings = append(findings, found...)
		after = batch[len(batch)-1].ID
	}

	span.SetAttributes(attribute.Int("reconcile.problems", len(findings)))
	return findings, nil
}

// Backfill repairs supply expenses one appointment per transaction. Missing
// entries are created; flagged ones, or every existing one when force is set,
// are deleted and written again. The rewritten entry is dated on the
// appointment. A failure on one appointment is recorded and the run goes on.
func (e *Engine) Backfill(ctx context.Context, companyID string, force bool) (BackfillResult, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.backfill", trace.WithAttributes(
		attribute.String("company.id", companyID),
		attribute.Bool("reconcile.force", force),
	))
	defer span.End()

	res := BackfillResult{Details: []Detail{}}
	after := ""
	for {
		batch, err := e.page(ctx, companyID, after)
		if err != nil {
			return res, e.fail(span, err)
		}
		if len(batch) == 0 {
			break
		}
		for _, appt := range batch {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			d, err := e.repair(ctx, companyID, appt.ID, force)
			if err != nil {
				e.logger.Warn("backfill failed for appointment", "err", err, "company_id", companyID, "appointment_id", appt.ID)
				d = Detail{AppointmentID: appt.ID, Action: ActionFailed, Error: err.Error()}
			}
			switch d.Action {
			case ActionCreated:
				res.Created++
			case ActionUpdated:
				res.Updated++
			case ActionSkipped:
				res.Skipped++
			case ActionFailed:
				res.Failed++
			}
			res.Details = append(res.Details, d)
		}
		after = batch[len(batch)-1].ID
	}

	e.logger.Info("backfill finished",
		"company_id", companyID,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"force", force,
	)
	return res, nil
}

func (e *Engine) repair(ctx context.Context, companyID, appointmentID string, force bool) (Detail, error) {
	var d Detail
	err := e.store.InTenant(ctx, companyID, func(ctx context.Context, tx storage.Tx) error {
		d = Detail{AppointmentID: appointmentID}
		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		ex, err := e.evaluate(ctx, tx, appt)
		if err != nil {
			return err
		}
		if ex.missingProc || ex.zeroCost {
			d.Action = ActionSkipped
			return nil
		}
		d.Problem, d.Amount = ex.problem, ex.cost
		if ex.problem == "" && !force {
			d.Action = ActionSkipped
			return nil
		}

		d.Action = ActionCreated
		if len(ex.expenses) > 0 {
			ids := make([]string, 0, len(ex.expenses))
			for _, t := range ex.expenses {
				ids = append(ids, t.ID)
			}
			if err := tx.DeleteTransactions(ctx, ids); err != nil {
				return err
			}
			d.Action = ActionUpdated
		}
		return e.insertExpense(ctx, tx, ex)
	})
	return d, err
}

func (e *Engine) insertExpense(ctx context.Context, tx storage.Tx, ex expected) error {
	t := ledger.SupplyExpense(ex.appt, ex.proc, ex.patient, ex.cost, ex.appt.Date)
	t.CreatedAt = e.now()
	return tx.InsertTransaction(ctx, &t)
}

// Regenerate deletes every supply expense of the company and writes them
// again from current costs, all in one transaction.
func (e *Engine) Regenerate(ctx context.Context, companyID string) (RegenerateResult, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.regenerate", trace.WithAttributes(attribute.String("company.id", companyID)))
	defer span.End()

	var res RegenerateResult
	err := e.store.InTenant(ctx, companyID, func(ctx context.Context, tx storage.Tx) error {
		res = RegenerateResult{}
		deleted, err := tx.DeleteTransactionsByCategory(ctx, model.TransactionExpense, model.CategorySupplies)
		if err != nil {
			return err
		}
		res.Deleted = deleted

		after := ""
		for {
			batch, err := tx.SettledAppointments(ctx, after, e.batchSize)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				return nil
			}
			for _, appt := range batch {
				ex, err := e.evaluate(ctx, tx, appt)
				if err != nil {
					return fmt.Errorf("appointment %s: %w", appt.ID, err)
				}
				if ex.missingProc || ex.zeroCost {
					res.Skipped++
					continue
				}
				if err := e.insertExpense(ctx, tx, ex); err != nil {
					return fmt.Errorf("appointment %s: %w", appt.ID, err)
				}
				res.Created++
			}
			after = batch[len(batch)-1].ID
		}
	})
	if err != nil {
		return RegenerateResult{}, e.fail(span, err)
	}

	e.logger.Warn("supply expenses regenerated", "company_id", companyID, "deleted", res.Deleted, "created", res.Created)
	return res, nil
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
