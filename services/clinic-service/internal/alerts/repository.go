// Package alerts keeps the low-stock alerts raised by inventory deductions.
package alerts

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/events"
)

type Store interface {
	Insert(ctx context.Context, a events.LowStock) error
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, a events.LowStock) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO low_stock_alerts (company_id, inventory_item_id, item_name, current_stock, min_stock, appointment_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid)
	`, a.CompanyID, a.InventoryItemID, a.Name, a.CurrentStock, a.MinStock, a.AppointmentID)
	return err
}

// Handler persists low-stock events.
func Handler(store Store, logger *slog.Logger) func(ctx context.Context, msg kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var alert events.LowStock
		if err := json.Unmarshal(msg.Value, &alert); err != nil {
			logger.Error("invalid low stock payload", "err", err)
			return nil
		}
		if alert.CompanyID == "" || alert.InventoryItemID == "" {
			logger.Error("low stock payload missing ids")
			return nil
		}
		if err := store.Insert(ctx, alert); err != nil {
			return err
		}
		logger.Warn("inventory below minimum",
			"company_id", alert.CompanyID,
			"inventory_item_id", alert.InventoryItemID,
			"item", alert.Name,
			"current_stock", alert.CurrentStock.String(),
			"min_stock", alert.MinStock.String(),
		)
		return nil
	}
}
