package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)

const (
	CategoryProcedures = "Procedimentos"
	CategorySupplies   = "Insumos"

	TransactionStatusPaid = "PAID"
)

// Transaction is a financial ledger entry. Entries derived from an appointment
// carry its ID; at most one INCOME and one supplies EXPENSE exist per
// appointment.
type Transaction struct {
	ID             string
	CompanyID      string
	Date           time.Time
	Description    string
	Amount         decimal.Decimal
	Type           TransactionType
	Category       string
	Status         string
	PaymentMethod  string
	AppointmentID  string
	PatientID      string
	ProfessionalID string
	CreatedAt      time.Time
}
