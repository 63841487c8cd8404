package outbox

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageCarriesEventMeta(t *testing.T) {
	msg := Message(context.Background(), Record{
		EventID:     "evt-1",
		AggregateID: "appt-1",
		CompanyID:   "co-1",
		EventType:   "calendar.appointment.push.v1",
		Payload:     []byte(`{"appointment_id":"appt-1"}`),
	})

	assert.Equal(t, "calendar.appointment.push.v1", msg.Topic)
	assert.Equal(t, []byte("appt-1"), msg.Key)
	meta := kafkax.ExtractEventMeta(msg)
	assert.Equal(t, kafkax.EventMeta{EventID: "evt-1", EventType: "calendar.appointment.push.v1", CompanyID: "co-1"}, meta)
}

func TestNewEventAndMemoryQueue(t *testing.T) {
	evt, err := NewEvent("appointment", "appt-1", "co-1", "inventory.low_stock.v1", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, string(evt.Payload))

	q := &MemoryQueue{}
	require.NoError(t, q.Enqueue(context.Background(), evt))
	assert.Len(t, q.Events(), 1)
}
