package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

func (t *tenantTx) GetProcedure(ctx context.Context, id string) (model.Procedure, error) {
	if !validID(id) {
		return model.Procedure{}, fmt.Errorf("procedure %s: %w", id, model.ErrNotFound)
	}
	var p model.Procedure
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, company_id::text, name, price, cost, duration_minutes
		FROM procedures
		WHERE id = $1 AND company_id = $2
	`, id, t.companyID).Scan(&p.ID, &p.CompanyID, &p.Name, &p.Price, &p.Cost, &p.DurationMinutes)
	if err != nil {
		return model.Procedure{}, notFound(err, "procedure "+id)
	}
	return p, nil
}

// SupplyLines left joins the items so a line whose item disappeared is still
// returned (with ItemFound false) instead of silently dropped.
func (t *tenantTx) SupplyLines(ctx context.Context, procedureID string) ([]model.SupplyLine, error) {
	if !validID(procedureID) {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT ps.procedure_id::text, ps.inventory_item_id::text, ps.quantity_used,
			COALESCE(i.name, ''), COALESCE(i.unit, ''), COALESCE(i.cost_per_unit, 0), i.id IS NOT NULL
		FROM procedure_supplies ps
		JOIN procedures p ON p.id = ps.procedure_id AND p.company_id = $2
		LEFT JOIN inventory_items i ON i.id = ps.inventory_item_id AND i.company_id = $2
		WHERE ps.procedure_id = $1
		ORDER BY ps.inventory_item_id
	`, procedureID, t.companyID)
	if err != nil {
		return nil, fmt.Errorf("supply lines: %w", err)
	}
	defer rows.Close()

	var out []model.SupplyLine
	for rows.Next() {
		var l model.SupplyLine
		if err := rows.Scan(&l.ProcedureID, &l.InventoryItemID, &l.QuantityUsed, &l.ItemName, &l.Unit, &l.CostPerUnit, &l.ItemFound); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *tenantTx) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	if !validID(id) {
		return model.Patient{}, fmt.Errorf("patient %s: %w", id, model.ErrNotFound)
	}
	var p model.Patient
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, company_id::text, name
		FROM patients
		WHERE id = $1 AND company_id = $2
	`, id, t.companyID).Scan(&p.ID, &p.CompanyID, &p.Name)
	if err != nil {
		return model.Patient{}, notFound(err, "patient "+id)
	}
	return p, nil
}

// DecrementStock is a blind decrement: concurrent deductions for different
// appointments compose without a read-modify-write.
func (t *tenantTx) DecrementStock(ctx context.Context, itemID string, qty decimal.Decimal) (model.InventoryItem, error) {
	if !validID(itemID) {
		return model.InventoryItem{}, fmt.Errorf("inventory item %s: %w", itemID, model.ErrNotFound)
	}
	var item model.InventoryItem
	err := t.tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET current_stock = current_stock - $3
		WHERE id = $1 AND company_id = $2
		RETURNING id::text, company_id::text, name, unit, current_stock, min_stock, cost_per_unit
	`, itemID, t.companyID, qty).Scan(&item.ID, &item.CompanyID, &item.Name, &item.Unit, &item.CurrentStock, &item.MinStock, &item.CostPerUnit)
	if err != nil {
		return model.InventoryItem{}, notFound(err, "inventory item "+itemID)
	}
	return item, nil
}

func (t *tenantTx) InsertStockMovement(ctx context.Context, m *model.StockMovement) error {
	m.CompanyID = t.companyID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_movements (company_id, inventory_item_id, appointment_id, quantity, type, reason, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7)
		RETURNING id::text
	`, t.companyID, m.InventoryItemID, m.AppointmentID, m.Quantity, m.Type, m.Reason, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}
