package appointments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/conflict"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/events"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage/memory"
)

const company = "11111111-1111-1111-1111-111111111111"

var (
	owner        = auth.Principal{UserID: "u-owner", CompanyID: company, Role: auth.RoleOwner}
	receptionist = auth.Principal{UserID: "u-recep", CompanyID: company, Role: auth.RoleReceptionist}
	fixedNow     = time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc     *Service
	store   *memory.Store
	queue   *outbox.MemoryQueue
	patient model.Patient
	proc    model.Procedure
	item    model.InventoryItem
}

// newFixture seeds "Limpeza de Pele": R$150, one supply line of 2 units at
// R$10 each.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	queue := &outbox.MemoryQueue{}

	f := &fixture{store: store, queue: queue}
	f.patient = store.AddPatient(model.Patient{CompanyID: company, Name: "Maria Souza"})
	f.item = store.AddInventoryItem(model.InventoryItem{
		CompanyID:    company,
		Name:         "Algodão",
		Unit:         "un",
		CurrentStock: decimal.NewFromInt(10),
		MinStock:     decimal.NewFromInt(3),
		CostPerUnit:  decimal.NewFromInt(10),
	})
	f.proc = store.AddProcedure(model.Procedure{
		CompanyID:       company,
		Name:            "Limpeza de Pele",
		Price:           decimal.NewFromInt(150),
		DurationMinutes: 30,
	}, model.ProcedureSupply{InventoryItemID: f.item.ID, QuantityUsed: decimal.NewFromInt(2)})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(store, queue, conflict.New(time.UTC), logger, WithClock(func() time.Time { return fixedNow }))
	return f
}

func (f *fixture) book(t *testing.T, start time.Time) model.Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), receptionist, CreateInput{
		PatientID:      f.patient.ID,
		ProfessionalID: "prof-1",
		ProcedureID:    f.proc.ID,
		Start:          start,
	})
	require.NoError(t, err)
	return appt
}

func (f *fixture) transactions(typ model.TransactionType) []model.Transaction {
	var out []model.Transaction
	for _, tr := range f.store.Transactions(company) {
		if tr.Type == typ {
			out = append(out, tr)
		}
	}
	return out
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestCreateSnapshotsPriceAndDuration(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))

	assert.Equal(t, model.StatusScheduled, appt.Status)
	assert.True(t, appt.Price.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, 30, appt.DurationMinutes)
	assert.False(t, appt.Paid)
	assert.False(t, appt.StockDeducted)

	evts := f.queue.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.TopicCalendarPush, evts[0].EventType)
	assert.Len(t, f.store.Activities(company), 1)
}

func TestCreateRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	first := f.book(t, at(9, 0))
	f.book(t, at(9, 30))

	_, err := f.svc.Create(context.Background(), receptionist, CreateInput{
		PatientID:      f.patient.ID,
		ProfessionalID: "prof-1",
		ProcedureID:    f.proc.ID,
		Start:          at(9, 15),
	})
	require.ErrorIs(t, err, model.ErrSchedulingConflict)

	var ce *model.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, first.ID, ce.AppointmentID)
	assert.True(t, ce.Start.Equal(at(9, 0)))
	assert.True(t, ce.End.Equal(at(9, 30)))
}

func TestCreateOtherProfessionalDoesNotConflict(t *testing.T) {
	f := newFixture(t)
	f.book(t, at(9, 0))

	_, err := f.svc.Create(context.Background(), receptionist, CreateInput{
		PatientID:      f.patient.ID,
		ProfessionalID: "prof-2",
		ProcedureID:    f.proc.ID,
		Start:          at(9, 0),
	})
	assert.NoError(t, err)
}

func TestCreateIdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	in := CreateInput{
		PatientID:      f.patient.ID,
		ProfessionalID: "prof-1",
		ProcedureID:    f.proc.ID,
		Start:          at(10, 0),
		IdempotencyKey: "req-1",
	}
	first, err := f.svc.Create(context.Background(), receptionist, in)
	require.NoError(t, err)
	second, err := f.svc.Create(context.Background(), receptionist, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.queue.Events(), 1)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), receptionist, CreateInput{ProfessionalID: "prof-1", ProcedureID: f.proc.ID, Start: at(9, 0)})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.Create(context.Background(), receptionist, CreateInput{
		PatientID:      f.patient.ID,
		ProfessionalID: "prof-1",
		ProcedureID:    f.proc.ID,
		Start:          at(9, 0),
		Status:         model.StatusCompleted,
	})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestUpdateRescheduleExcludesItself(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))
	f.book(t, at(10, 0))

	start := at(9, 10)
	moved, err := f.svc.Update(context.Background(), receptionist, appt.ID, UpdateInput{Start: &start})
	require.NoError(t, err)
	assert.True(t, moved.Date.Equal(start))

	start = at(9, 45)
	_, err = f.svc.Update(context.Background(), receptionist, appt.ID, UpdateInput{Start: &start})
	assert.ErrorIs(t, err, model.ErrSchedulingConflict)

	got, _ := f.store.Appointment(company, appt.ID)
	assert.True(t, got.Date.Equal(at(9, 10)))
}

func TestUpdateTerminalIsImmutable(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))
	_, err := f.svc.Transition(context.Background(), receptionist, appt.ID, model.StatusCanceled)
	require.NoError(t, err)

	notes := "late"
	_, err = f.svc.Update(context.Background(), receptionist, appt.ID, UpdateInput{Notes: &notes})
	assert.ErrorIs(t, err, model.ErrImmutable)
}

func TestPayAppliesAllSideEffects(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))

	res, err := f.svc.Pay(context.Background(), owner, appt.ID, "pix")
	require.NoError(t, err)

	assert.True(t, res.Appointment.Paid)
	assert.True(t, res.Appointment.StockDeducted)
	assert.Equal(t, model.StatusCompleted, res.Appointment.Status)

	income := f.transactions(model.TransactionIncome)
	require.Len(t, income, 1)
	assert.Equal(t, "150", income[0].Amount.String())
	assert.Equal(t, "PIX", income[0].PaymentMethod)
	assert.Equal(t, "Procedimento: Limpeza de Pele - Maria Souza", income[0].Description)

	expense := f.transactions(model.TransactionExpense)
	require.Len(t, expense, 1)
	assert.Equal(t, "20", expense[0].Amount.String())
	assert.Equal(t, model.CategorySupplies, expense[0].Category)

	item, _ := f.store.InventoryItem(company, f.item.ID)
	assert.Equal(t, "8", item.CurrentStock.String())
	require.Len(t, f.store.StockMovements(company), 1)

	stored, _ := f.store.Appointment(company, appt.ID)
	assert.Equal(t, res.Appointment, stored)
}

func TestPayTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))
	_, err := f.svc.Pay(context.Background(), owner, appt.ID, "PIX")
	require.NoError(t, err)

	_, err = f.svc.Pay(context.Background(), owner, appt.ID, "PIX")
	assert.ErrorIs(t, err, model.ErrAlreadyPaid)

	assert.Len(t, f.store.Transactions(company), 2)
	assert.Len(t, f.store.StockMovements(company), 1)
	item, _ := f.store.InventoryItem(company, f.item.ID)
	assert.Equal(t, "8", item.CurrentStock.String())
}

func TestCompleteThenPayDeductsOnce(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, receptionist, appt.ID, model.StatusConfirmed)
	require.NoError(t, err)
	done, err := f.svc.Transition(ctx, receptionist, appt.ID, model.StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, done.Expense)
	assert.True(t, done.Appointment.StockDeducted)
	assert.False(t, done.Appointment.Paid)
	assert.Empty(t, f.transactions(model.TransactionIncome))

	paid, err := f.svc.Pay(ctx, owner, appt.ID, "CARD")
	require.NoError(t, err)
	assert.Nil(t, paid.Expense)
	assert.Empty(t, paid.Inventory)

	assert.Len(t, f.transactions(model.TransactionIncome), 1)
	assert.Len(t, f.transactions(model.TransactionExpense), 1)
	item, _ := f.store.InventoryItem(company, f.item.ID)
	assert.Equal(t, "8", item.CurrentStock.String())
}

func TestPayThenCompleteIsAlreadyCompleted(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))
	_, err := f.svc.Pay(context.Background(), owner, appt.ID, "PIX")
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), receptionist, appt.ID, model.StatusCompleted)
	assert.ErrorIs(t, err, model.ErrAlreadyCompleted)
	assert.Len(t, f.store.StockMovements(company), 1)
}

func TestInvalidTransitionLeavesAppointmentUnchanged(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))
	before, _ := f.store.Appointment(company, appt.ID)

	_, err := f.svc.Transition(context.Background(), receptionist, appt.ID, model.StatusCompleted)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	var te *model.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, model.StatusScheduled, te.From)

	after, _ := f.store.Appointment(company, appt.ID)
	assert.Equal(t, before, after)
	assert.Empty(t, f.store.Transactions(company))
	assert.Empty(t, f.store.StockMovements(company))
}

func TestCancelDoesNotReverse(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))

	res, err := f.svc.Transition(context.Background(), receptionist, appt.ID, model.StatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, res.Appointment.Status)

	evts := f.queue.Events()
	assert.Equal(t, events.TopicCalendarDelete, evts[len(evts)-1].EventType)

	_, err = f.svc.Pay(context.Background(), owner, appt.ID, "PIX")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestPayRequiresAdminRole(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))

	_, err := f.svc.Pay(context.Background(), receptionist, appt.ID, "PIX")
	assert.ErrorIs(t, err, model.ErrForbidden)
	assert.Empty(t, f.store.Transactions(company))
}

func TestOtherCompanyCannotSeeAppointment(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))
	stranger := auth.Principal{UserID: "u-x", CompanyID: "22222222-2222-2222-2222-222222222222", Role: auth.RoleOwner}

	_, err := f.svc.Pay(context.Background(), stranger, appt.ID, "PIX")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.svc.Get(context.Background(), stranger, appt.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeletedSupplyItemAbortsPayment(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))
	f.store.DeleteInventoryItem(company, f.item.ID)

	_, err := f.svc.Pay(context.Background(), owner, appt.ID, "PIX")
	require.ErrorIs(t, err, model.ErrNotFound)

	got, _ := f.store.Appointment(company, appt.ID)
	assert.False(t, got.Paid)
	assert.False(t, got.StockDeducted)
	assert.Empty(t, f.store.Transactions(company))
}

func TestEnqueueFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, at(9, 0))
	f.queue.Err = errors.New("queue down")

	res, err := f.svc.Transition(context.Background(), receptionist, appt.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, res.Appointment.Status)

	got, _ := f.store.Appointment(company, appt.ID)
	assert.Equal(t, model.StatusConfirmed, got.Status)
}

func TestLowStockRaisesAlert(t *testing.T) {
	f := newFixture(t)
	f.store.AddInventoryItem(model.InventoryItem{
		ID:           f.item.ID,
		CompanyID:    company,
		Name:         f.item.Name,
		Unit:         f.item.Unit,
		CurrentStock: decimal.NewFromInt(4),
		MinStock:     decimal.NewFromInt(3),
		CostPerUnit:  f.item.CostPerUnit,
	})
	appt := f.book(t, at(9, 0))

	_, err := f.svc.Pay(context.Background(), owner, appt.ID, "PIX")
	require.NoError(t, err)

	var low []outbox.Event
	for _, e := range f.queue.Events() {
		if e.EventType == events.TopicLowStock {
			low = append(low, e)
		}
	}
	require.Len(t, low, 1)
	assert.Equal(t, f.item.ID, low[0].AggregateID)
}

func TestApprovingPendingRechecksAgenda(t *testing.T) {
	f := newFixture(t)
	pending, err := f.svc.Create(context.Background(), receptionist, CreateInput{
		PatientID:      f.patient.ID,
		ProfessionalID: "prof-1",
		ProcedureID:    f.proc.ID,
		Start:          at(9, 0),
		Status:         model.StatusPendingApproval,
	})
	require.NoError(t, err)
	booked := f.book(t, at(9, 15))

	_, err = f.svc.Transition(context.Background(), receptionist, pending.ID, model.StatusScheduled)
	var ce *model.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, booked.ID, ce.AppointmentID)

	got, ok := f.store.Appointment(company, pending.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusPendingApproval, got.Status)

	_, err = f.svc.Transition(context.Background(), receptionist, pending.ID, model.StatusCanceled)
	require.NoError(t, err)
}

// race runs every fn at the same moment and returns their errors.
func race(fns ...func() error) []error {
	errs := make([]error, len(fns))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

func (f *fixture) assertSettledOnce(t *testing.T, apptID string) {
	t.Helper()
	assert.Len(t, f.transactions(model.TransactionIncome), 1)
	assert.Len(t, f.transactions(model.TransactionExpense), 1)
	assert.Len(t, f.store.StockMovements(company), 1)
	item, ok := f.store.InventoryItem(company, f.item.ID)
	require.True(t, ok)
	assert.True(t, item.CurrentStock.Equal(decimal.NewFromInt(8)), "stock %s", item.CurrentStock)

	appt, ok := f.store.Appointment(company, apptID)
	require.True(t, ok)
	assert.True(t, appt.Paid)
	assert.True(t, appt.StockDeducted)
	assert.Equal(t, model.StatusCompleted, appt.Status)
}

func TestConcurrentPayAndCompleteSettleOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		appt := f.book(t, at(9, 0))
		_, err := f.svc.Transition(context.Background(), receptionist, appt.ID, model.StatusConfirmed)
		require.NoError(t, err)

		errs := race(
			func() error {
				_, err := f.svc.Pay(context.Background(), owner, appt.ID, "PIX")
				return err
			},
			func() error {
				_, err := f.svc.Transition(context.Background(), receptionist, appt.ID, model.StatusCompleted)
				return err
			},
		)
		require.NoError(t, errs[0])
		if errs[1] != nil {
			require.ErrorIs(t, errs[1], model.ErrAlreadyCompleted)
		}
		f.assertSettledOnce(t, appt.ID)
	}
}

func TestConcurrentDoublePaySettlesOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		appt := f.book(t, at(9, 0))

		pay := func() error {
			_, err := f.svc.Pay(context.Background(), owner, appt.ID, "PIX")
			return err
		}
		errs := race(pay, pay)

		var ok, already int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrAlreadyPaid):
				already++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, already)
		f.assertSettledOnce(t, appt.ID)
	}
}
