// Package memory is an in-process storage.Store used by tests and local runs.
// Transactions are serialised by one mutex and rolled back by restoring a
// snapshot of the tenant.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage"
)

type tenant struct {
	appointments map[string]model.Appointment
	procedures   map[string]model.Procedure
	supplies     map[string][]model.ProcedureSupply
	items        map[string]model.InventoryItem
	patients     map[string]model.Patient
	movements    []model.StockMovement
	transactions []model.Transaction
	activities   []model.Activity
	idempotency  map[string]string
}

func newTenant() *tenant {
	return &tenant{
		appointments: map[string]model.Appointment{},
		procedures:   map[string]model.Procedure{},
		supplies:     map[string][]model.ProcedureSupply{},
		items:        map[string]model.InventoryItem{},
		patients:     map[string]model.Patient{},
		idempotency:  map[string]string{},
	}
}

func (t *tenant) clone() *tenant {
	supplies := make(map[string][]model.ProcedureSupply, len(t.supplies))
	for k, v := range t.supplies {
		supplies[k] = slices.Clone(v)
	}
	return &tenant{
		appointments: maps.Clone(t.appointments),
		procedures:   maps.Clone(t.procedures),
		supplies:     supplies,
		items:        maps.Clone(t.items),
		patients:     maps.Clone(t.patients),
		movements:    slices.Clone(t.movements),
		transactions: slices.Clone(t.transactions),
		activities:   slices.Clone(t.activities),
		idempotency:  maps.Clone(t.idempotency),
	}
}

type Store struct {
	mu      sync.Mutex
	tenants map[string]*tenant
}

func New() *Store {
	return &Store{tenants: map[string]*tenant{}}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) tenant(companyID string) *tenant {
	t, ok := s.tenants[companyID]
	if !ok {
		t = newTenant()
		s.tenants[companyID] = t
	}
	return t
}

func (s *Store) InTenant(ctx context.Context, companyID string, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.tenant(companyID).clone()
	tx := &memTx{companyID: companyID, t: s.tenants[companyID]}
	if err := fn(ctx, tx); err != nil {
		s.tenants[companyID] = snapshot
		return err
	}
	return nil
}

func (s *Store) SettledCompanies(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for id, t := range s.tenants {
		for _, a := range t.appointments {
			if a.Settled() {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

type memTx struct {
	companyID string
	t         *tenant
}

func (tx *memTx) CompanyID() string { return tx.companyID }

func (tx *memTx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CompanyID = tx.companyID
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	tx.t.appointments[a.ID] = *a
	return nil
}

func (tx *memTx) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	a, ok := tx.t.appointments[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (tx *memTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return tx.GetAppointment(ctx, id)
}

func (tx *memTx) UpdateAppointment(_ context.Context, a *model.Appointment) error {
	if _, ok := tx.t.appointments[a.ID]; !ok {
		return model.ErrNotFound
	}
	a.CompanyID = tx.companyID
	a.UpdatedAt = time.Now().UTC()
	tx.t.appointments[a.ID] = *a
	return nil
}

func (tx *memTx) ListAppointments(_ context.Context, f storage.ListFilter) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range tx.t.appointments {
		if !f.From.IsZero() && a.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.Date.Before(f.To) {
			continue
		}
		if f.ProfessionalID != "" && a.ProfessionalID != f.ProfessionalID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// LockProfessionalDay is a no-op: InTenant already holds the store mutex.
func (tx *memTx) LockProfessionalDay(context.Context, string, time.Time) error { return nil }

func (tx *memTx) ActiveAppointmentsBetween(_ context.Context, professionalID string, from, to time.Time, excludeID string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range tx.t.appointments {
		if a.ProfessionalID != professionalID || a.ID == excludeID || !lifecycle.IsActive(a.Status) {
			continue
		}
		if a.Date.Before(from) || !a.Date.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (tx *memTx) SettledAppointments(_ context.Context, afterID string, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range tx.t.appointments {
		if a.Settled() && a.ID > afterID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memTx) ClaimIdempotencyKey(_ context.Context, key string) (string, error) {
	if id, ok := tx.t.idempotency[key]; ok {
		return id, nil
	}
	tx.t.idempotency[key] = ""
	return "", nil
}

func (tx *memTx) FinalizeIdempotencyKey(_ context.Context, key, appointmentID string) error {
	tx.t.idempotency[key] = appointmentID
	return nil
}

func (tx *memTx) GetProcedure(_ context.Context, id string) (model.Procedure, error) {
	p, ok := tx.t.procedures[id]
	if !ok {
		return model.Procedure{}, model.ErrNotFound
	}
	return p, nil
}

func (tx *memTx) SupplyLines(_ context.Context, procedureID string) ([]model.SupplyLine, error) {
	var out []model.SupplyLine
	for _, ps := range tx.t.supplies[procedureID] {
		line := model.SupplyLine{ProcedureSupply: ps}
		if item, ok := tx.t.items[ps.InventoryItemID]; ok {
			line.ItemName = item.Name
			line.Unit = item.Unit
			line.CostPerUnit = item.CostPerUnit
			line.ItemFound = true
		}
		out = append(out, line)
	}
	return out, nil
}

func (tx *memTx) GetPatient(_ context.Context, id string) (model.Patient, error) {
	p, ok := tx.t.patients[id]
	if !ok {
		return model.Patient{}, model.ErrNotFound
	}
	return p, nil
}

func (tx *memTx) DecrementStock(_ context.Context, itemID string, qty decimal.Decimal) (model.InventoryItem, error) {
	item, ok := tx.t.items[itemID]
	if !ok {
		return model.InventoryItem{}, model.ErrNotFound
	}
	item.CurrentStock = item.CurrentStock.Sub(qty)
	tx.t.items[itemID] = item
	return item, nil
}

func (tx *memTx) InsertStockMovement(_ context.Context, m *model.StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CompanyID = tx.companyID
	tx.t.movements = append(tx.t.movements, *m)
	return nil
}

// InsertTransaction mirrors the partial unique indexes of the postgres schema.
func (tx *memTx) InsertTransaction(_ context.Context, t *model.Transaction) error {
	if t.AppointmentID != "" {
		for _, existing := range tx.t.transactions {
			if existing.AppointmentID != t.AppointmentID || existing.Type != t.Type {
				continue
			}
			if t.Type == model.TransactionIncome || (existing.Category == model.CategorySupplies && t.Category == model.CategorySupplies) {
				return storage.ErrDuplicate
			}
		}
	}
	tx.insertTransaction(t)
	return nil
}

func (tx *memTx) insertTransaction(t *model.Transaction) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CompanyID = tx.companyID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	tx.t.transactions = append(tx.t.transactions, *t)
}

func (tx *memTx) AppointmentTransactions(_ context.Context, appointmentID string, typ model.TransactionType, category string) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, t := range tx.t.transactions {
		if t.AppointmentID == appointmentID && t.Type == typ && (category == "" || t.Category == category) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (tx *memTx) DeleteTransactions(_ context.Context, ids []string) error {
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	tx.t.transactions = slices.DeleteFunc(tx.t.transactions, func(t model.Transaction) bool { return drop[t.ID] })
	return nil
}

func (tx *memTx) DeleteTransactionsByCategory(_ context.Context, typ model.TransactionType, category string) (int64, error) {
	before := len(tx.t.transactions)
	tx.t.transactions = slices.DeleteFunc(tx.t.transactions, func(t model.Transaction) bool {
		return t.Type == typ && t.Category == category
	})
	return int64(before - len(tx.t.transactions)), nil
}

func (tx *memTx) InsertActivity(_ context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CompanyID = tx.companyID
	tx.t.activities = append(tx.t.activities, *a)
	return nil
}
