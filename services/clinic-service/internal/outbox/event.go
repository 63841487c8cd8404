package outbox

import (
	"context"
	"encoding/json"
)

// Event is the envelope written to the outbox table. The Kafka topic name
// equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	CompanyID     string
	EventType     string
	Payload       []byte
}

// Queue accepts events for asynchronous delivery. Enqueue is called after the
// business transaction has committed.
type Queue interface {
	Enqueue(ctx context.Context, evt Event) error
}

func NewEvent(aggregateType, aggregateID, companyID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		CompanyID:     companyID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
