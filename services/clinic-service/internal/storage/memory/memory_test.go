package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage"
)

func TestInTenantRollsBackOnError(t *testing.T) {
	s := New()
	item := s.AddInventoryItem(model.InventoryItem{CompanyID: "c1", CurrentStock: decimal.NewFromInt(5)})
	boom := errors.New("boom")

	err := s.InTenant(context.Background(), "c1", func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.DecrementStock(ctx, item.ID, decimal.NewFromInt(2))
		require.NoError(t, err)
		require.NoError(t, tx.InsertTransaction(ctx, &model.Transaction{Type: model.TransactionIncome, AppointmentID: "a"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, _ := s.InventoryItem("c1", item.ID)
	assert.Equal(t, "5", got.CurrentStock.String())
	assert.Empty(t, s.Transactions("c1"))
}

func TestTenantIsolation(t *testing.T) {
	s := New()
	p := s.AddPatient(model.Patient{CompanyID: "c1", Name: "Ana"})

	err := s.InTenant(context.Background(), "c2", func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.GetPatient(ctx, p.ID)
		return err
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLedgerUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.InTenant(ctx, "c1", func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.InsertTransaction(ctx, &model.Transaction{Type: model.TransactionIncome, AppointmentID: "a"}))
		require.NoError(t, tx.InsertTransaction(ctx, &model.Transaction{Type: model.TransactionExpense, Category: model.CategorySupplies, AppointmentID: "a"}))
		require.NoError(t, tx.InsertTransaction(ctx, &model.Transaction{Type: model.TransactionExpense, Category: "Outros", AppointmentID: "a"}))
		assert.ErrorIs(t, tx.InsertTransaction(ctx, &model.Transaction{Type: model.TransactionIncome, AppointmentID: "a"}), storage.ErrDuplicate)
		assert.ErrorIs(t, tx.InsertTransaction(ctx, &model.Transaction{Type: model.TransactionExpense, Category: model.CategorySupplies, AppointmentID: "a"}), storage.ErrDuplicate)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, s.Transactions("c1"), 3)
}

func TestSettledAppointmentsPaging(t *testing.T) {
	s := New()
	for _, id := range []string{"a3", "a1", "a2", "a4"} {
		s.PutAppointment(model.Appointment{ID: id, CompanyID: "c1", Paid: id != "a4", Date: time.Now()})
	}
	s.PutAppointment(model.Appointment{ID: "b1", CompanyID: "c2", StockDeducted: true})

	var got []string
	err := s.InTenant(context.Background(), "c1", func(ctx context.Context, tx storage.Tx) error {
		after := ""
		for {
			page, err := tx.SettledAppointments(ctx, after, 2)
			if err != nil || len(page) == 0 {
				return err
			}
			for _, a := range page {
				got = append(got, a.ID)
			}
			after = page[len(page)-1].ID
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "a3"}, got)

	companies, err := s.SettledCompanies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, companies)
}
