// Package ledger derives the financial entries of a settled appointment.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

type Writer interface {
	InsertTransaction(ctx context.Context, t *model.Transaction) error
}

// PostIncome books the full appointment price under "Procedimentos".
func PostIncome(ctx context.Context, w Writer, appt model.Appointment, proc model.Procedure, patient model.Patient, method string, at time.Time) (model.Transaction, error) {
	t := model.Transaction{
		CompanyID:      appt.CompanyID,
		Date:           at,
		Description:    IncomeDescription(proc.Name, patient.Name),
		Amount:         appt.Price,
		Type:           model.TransactionIncome,
		Category:       model.CategoryProcedures,
		Status:         model.TransactionStatusPaid,
		PaymentMethod:  method,
		AppointmentID:  appt.ID,
		PatientID:      appt.PatientID,
		ProfessionalID: appt.ProfessionalID,
		CreatedAt:      at,
	}
	if err := w.InsertTransaction(ctx, &t); err != nil {
		return model.Transaction{}, fmt.Errorf("post income: %w", err)
	}
	return t, nil
}

// PostSupplyExpense books the supply cost under "Insumos". Nothing is written
// when cost is not positive, and the returned pointer is nil.
func PostSupplyExpense(ctx context.Context, w Writer, appt model.Appointment, proc model.Procedure, patient model.Patient, cost decimal.Decimal, at time.Time) (*model.Transaction, error) {
	if !cost.IsPositive() {
		return nil, nil
	}
	t := SupplyExpense(appt, proc, patient, cost, at)
	if err := w.InsertTransaction(ctx, &t); err != nil {
		return nil, fmt.Errorf("post supply expense: %w", err)
	}
	return &t, nil
}

// SupplyExpense builds the expense row without writing it.
func SupplyExpense(appt model.Appointment, proc model.Procedure, patient model.Patient, cost decimal.Decimal, at time.Time) model.Transaction {
	return model.Transaction{
		CompanyID:      appt.CompanyID,
		Date:           at,
		Description:    SupplyExpenseDescription(proc.Name, patient.Name),
		Amount:         cost,
		Type:           model.TransactionExpense,
		Category:       model.CategorySupplies,
		Status:         model.TransactionStatusPaid,
		AppointmentID:  appt.ID,
		PatientID:      appt.PatientID,
		ProfessionalID: appt.ProfessionalID,
		CreatedAt:      at,
	}
}

func IncomeDescription(procedureName, patientName string) string {
	return fmt.Sprintf("Procedimento: %s - %s", procedureName, patientName)
}

func SupplyExpenseDescription(procedureName, patientName string) string {
	return fmt.Sprintf("Insumos: %s - %s", procedureName, patientName)
}

// IsSupplyExpense reports whether t is an appointment's supply cost entry.
func IsSupplyExpense(t model.Transaction) bool {
	return t.Type == model.TransactionExpense && t.Category == model.CategorySupplies
}

// MentionsPatient is the check reconciliation uses to tell entries written by
// the current posting code from older ones. A blank name is contained in
// every description.
func MentionsPatient(t model.Transaction, patientName string) bool {
	name := strings.TrimSpace(patientName)
	return name == "" || strings.Contains(strings.ToLower(t.Description), strings.ToLower(name))
}
