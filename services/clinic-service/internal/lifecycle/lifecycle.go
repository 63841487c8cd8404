// Package lifecycle owns the appointment status table. Nothing else decides
// which status changes are legal.
package lifecycle

import (
	"strings"

	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/model"
)

var transitions = map[model.Status][]model.Status{
	model.StatusPendingApproval: {model.StatusScheduled, model.StatusCanceled},
	model.StatusScheduled:       {model.StatusConfirmed, model.StatusCanceled},
	model.StatusConfirmed:       {model.StatusCompleted, model.StatusCanceled},
	model.StatusCompleted:       {},
	model.StatusCanceled:        {},
}

// Parse normalises a client supplied status and rejects unknown values.
func Parse(raw string) (model.Status, error) {
	s := model.Status(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := transitions[s]; !ok {
		return "", model.Invalid("status", "unknown status "+raw)
	}
	return s, nil
}

func Allowed(from model.Status) []model.Status {
	return append([]model.Status(nil), transitions[from]...)
}

func IsTerminal(s model.Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Active statuses block the professional's agenda.
func IsActive(s model.Status) bool {
	return s == model.StatusScheduled || s == model.StatusConfirmed
}

// Validate returns nil when from -> to is in the table. Completing an
// appointment twice is reported as ErrAlreadyCompleted so callers can tell a
// repeated click from a wrong one.
func Validate(from, to model.Status) error {
	if from == model.StatusCompleted && to == model.StatusCompleted {
		return model.ErrAlreadyCompleted
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &model.TransitionError{From: from, To: to}
}

// InitialStatus is the status a new booking may start in.
func InitialStatus(raw string) (model.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return model.StatusScheduled, nil
	}
	s, err := Parse(raw)
	if err != nil {
		return "", err
	}
	if s != model.StatusPendingApproval && s != model.StatusScheduled {
		return "", model.Invalid("status", "new appointments start as PENDING_APPROVAL or SCHEDULED")
	}
	return s, nil
}
