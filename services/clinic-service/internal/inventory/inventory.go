// Package inventory applies a procedure's bill of materials to stock.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

type Tx interface {
	// DecrementStock subtracts qty without a floor and returns the item after
	// the update. A missing item is model.ErrNotFound.
	DecrementStock(ctx context.Context, itemID string, qty decimal.Decimal) (model.InventoryItem, error)
	InsertStockMovement(ctx context.Context, m *model.StockMovement) error
}

type Delta struct {
	InventoryItemID string          `json:"inventory_item_id"`
	Name            string          `json:"name"`
	Unit            string          `json:"unit"`
	Quantity        decimal.Decimal `json:"quantity"`
	StockAfter      decimal.Decimal `json:"stock_after"`
}

// LowStockAlert is raised when a deduction leaves an item at or below its
// minimum. Alerts are delivered after the enclosing transaction commits.
type LowStockAlert struct {
	CompanyID       string
	InventoryItemID string
	Name            string
	Unit            string
	CurrentStock    decimal.Decimal
	MinStock        decimal.Decimal
	AppointmentID   string
}

type Result struct {
	Deltas []Delta
	Alerts []LowStockAlert
}

// Deduct decrements stock for every supply line and appends one OUT movement
// per line. It does not check whether the appointment was already deducted;
// callers guard on Appointment.StockDeducted in the same transaction. Any
// failure must abort the caller's transaction.
func Deduct(ctx context.Context, tx Tx, appt model.Appointment, proc model.Procedure, lines []model.SupplyLine, now time.Time) (Result, error) {
	var res Result
	reason := MovementReason(appt.ID, proc.Name)

	for _, line := range lines {
		if !line.QuantityUsed.IsPositive() {
			continue
		}
		item, err := tx.DecrementStock(ctx, line.InventoryItemID, line.QuantityUsed)
		if err != nil {
			return Result{}, fmt.Errorf("decrement item %s: %w", line.InventoryItemID, err)
		}
		if err := tx.InsertStockMovement(ctx, &model.StockMovement{
			CompanyID:       appt.CompanyID,
			InventoryItemID: item.ID,
			AppointmentID:   appt.ID,
			Quantity:        line.QuantityUsed,
			Type:            model.MovementOut,
			Reason:          reason,
			CreatedAt:       now,
		}); err != nil {
			return Result{}, fmt.Errorf("record movement for item %s: %w", item.ID, err)
		}

		res.Deltas = append(res.Deltas, Delta{
			InventoryItemID: item.ID,
			Name:            item.Name,
			Unit:            item.Unit,
			Quantity:        line.QuantityUsed.Neg(),
			StockAfter:      item.CurrentStock,
		})
		if item.Low() {
			res.Alerts = append(res.Alerts, LowStockAlert{
				CompanyID:       appt.CompanyID,
				InventoryItemID: item.ID,
				Name:            item.Name,
				Unit:            item.Unit,
				CurrentStock:    item.CurrentStock,
				MinStock:        item.MinStock,
				AppointmentID:   appt.ID,
			})
		}
	}
	return res, nil
}

// SupplyCost is Σ costPerUnit × quantityUsed. Lines whose item is gone count
// as zero; a procedure without lines costs zero.
func SupplyCost(lines []model.SupplyLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		if !line.ItemFound {
			continue
		}
		total = total.Add(line.CostPerUnit.Mul(line.QuantityUsed))
	}
	return total.Round(2)
}

func MovementReason(appointmentID, procedureName string) string {
	return fmt.Sprintf("Atendimento %s - %s", appointmentID, procedureName)
}
