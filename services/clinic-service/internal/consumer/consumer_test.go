package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"

	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/inbox"
)

// sliceReader replays msgs, then cancels the run.
type sliceReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
	closed bool
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

func message(id string) kafka.Message {
	meta := kafkax.EventMeta{EventID: id, EventType: "inventory.low_stock.v1"}
	return kafka.Message{Topic: meta.EventType, Headers: meta.Headers(), Value: []byte(`{}`)}
}

func run(t *testing.T, msgs []kafka.Message, in Inbox, h Handler) *sliceReader {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	reader := &sliceReader{msgs: msgs, cancel: cancel}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewWithReader(reader, logger, in, Config{Topic: "t", GroupID: "g", MaxTries: 1}, h).Run(ctx)
	return reader
}

func TestDuplicateEventsAreHandledOnce(t *testing.T) {
	var mu sync.Mutex
	var handled []string
	reader := run(t, []kafka.Message{message("e1"), message("e1"), message("e2")}, inbox.NewMemory(),
		func(_ context.Context, msg kafka.Message) error {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, kafkax.ExtractEventMeta(msg).EventID)
			return nil
		})

	assert.Equal(t, []string{"e1", "e2"}, handled)
	assert.True(t, reader.closed)
}

func TestFailedEventIsForgotten(t *testing.T) {
	calls := 0
	run(t, []kafka.Message{message("e1"), message("e1")}, inbox.NewMemory(),
		func(context.Context, kafka.Message) error {
			calls++
			if calls == 1 {
				return errors.New("calendar down")
			}
			return nil
		})

	assert.Equal(t, 2, calls)
}
