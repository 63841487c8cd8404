package memory

import (
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

// Seeding and inspection helpers. Catalog and inventory management live
// outside this service, so the memory store is filled directly.

func (s *Store) AddPatient(p model.Patient) model.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.tenant(p.CompanyID).patients[p.ID] = p
	return p
}

func (s *Store) AddInventoryItem(item model.InventoryItem) model.InventoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	s.tenant(item.CompanyID).items[item.ID] = item
	return item
}

func (s *Store) AddProcedure(p model.Procedure, supplies ...model.ProcedureSupply) model.Procedure {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	t := s.tenant(p.CompanyID)
	t.procedures[p.ID] = p
	for i := range supplies {
		supplies[i].ProcedureID = p.ID
	}
	t.supplies[p.ID] = supplies
	return p
}

func (s *Store) SetCostPerUnit(companyID, itemID string, cost decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(companyID)
	if item, ok := t.items[itemID]; ok {
		item.CostPerUnit = cost
		t.items[itemID] = item
	}
}

func (s *Store) DeleteInventoryItem(companyID, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenant(companyID).items, itemID)
}

// PutAppointment stores a as is, bypassing the lifecycle.
func (s *Store) PutAppointment(a model.Appointment) model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.tenant(a.CompanyID).appointments[a.ID] = a
	return a
}

// PutTransaction appends t without the uniqueness checks, to model data
// written before those rules existed.
func (s *Store) PutTransaction(t model.Transaction) model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{companyID: t.CompanyID, t: s.tenant(t.CompanyID)}
	tx.insertTransaction(&t)
	return t
}

func (s *Store) Appointment(companyID, id string) (model.Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.tenant(companyID).appointments[id]
	return a, ok
}

func (s *Store) InventoryItem(companyID, id string) (model.InventoryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.tenant(companyID).items[id]
	return item, ok
}

func (s *Store) Transactions(companyID string) []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tenant(companyID).transactions)
}

func (s *Store) StockMovements(companyID string) []model.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tenant(companyID).movements)
}

func (s *Store) Activities(companyID string) []model.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tenant(companyID).activities)
}
