package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Procedure is a sellable service. Cost is the manually entered estimate and
// is never used for stock or expense postings.
type Procedure struct {
	ID              string
	CompanyID       string
	Name            string
	Price           decimal.Decimal
	Cost            decimal.Decimal
	DurationMinutes int
}

type ProcedureSupply struct {
	ProcedureID     string
	InventoryItemID string
	QuantityUsed    decimal.Decimal
}

// SupplyLine is a ProcedureSupply joined with the item it consumes. ItemFound
// is false when the item row no longer exists.
type SupplyLine struct {
	ProcedureSupply
	ItemName    string
	Unit        string
	CostPerUnit decimal.Decimal
	ItemFound   bool
}

type InventoryItem struct {
	ID           string
	CompanyID    string
	Name         string
	Unit         string
	CurrentStock decimal.Decimal
	MinStock     decimal.Decimal
	CostPerUnit  decimal.Decimal
}

func (i InventoryItem) Low() bool {
	return i.CurrentStock.LessThanOrEqual(i.MinStock)
}

const MovementOut = "OUT"

type StockMovement struct {
	ID              string
	CompanyID       string
	InventoryItemID string
	AppointmentID   string
	Quantity        decimal.Decimal
	Type            string
	Reason          string
	CreatedAt       time.Time
}
