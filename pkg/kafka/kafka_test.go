package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

type memWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

type memReader struct {
	mu        sync.Mutex
	pending   chan kafka.Message
	committed []int64
}

func newMemReader(msgs ...kafka.Message) *memReader {
	r := &memReader{pending: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.pending <- m
	}
	return r
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.pending:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *memReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func (r *memReader) Close() error { return nil }

func TestProducerPublish(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "vendor-events", testLogger)

	err := p.Publish(context.Background(), "vnd-001", map[string]string{HeaderEventType: "vendor.merged"}, map[string]string{"vendor_id": "vnd-001"})
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "vendor-events", msg.Topic)
	assert.Equal(t, "vnd-001", string(msg.Key))
	assert.JSONEq(t, `{"vendor_id":"vnd-001"}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "vendor.merged", string(msg.Headers[0].Value))

	w.err = errors.New("broker unavailable")
	assert.Error(t, p.Publish(context.Background(), "vnd-001", nil, "x"))
}

func TestParseSourceRecord(t *testing.T) {
	msg := &Message{
		Value:   []byte(`{"source_system":"Zycus","record":{"vendor_natural_key":"z-1"}}`),
		Headers: map[string]string{},
	}
	rec, err := msg.ParseSourceRecord()
	require.NoError(t, err)
	assert.Equal(t, "Zycus", rec.SourceSystem)
	assert.Equal(t, "z-1", rec.Record["vendor_natural_key"])

	msg.Headers[HeaderSourceSystem] = "PeopleSoft"
	rec, err = msg.ParseSourceRecord()
	require.NoError(t, err)
	assert.Equal(t, "PeopleSoft", rec.SourceSystem)

	for _, body := range []string{`not json`, `{"record":{}}`, `{"source_system":"Zycus"}`} {
		_, err := (&Message{Value: []byte(body)}).ParseSourceRecord()
		assert.Error(t, err, body)
	}
}

func TestConsumerCommitPolicy(t *testing.T) {
	reader := newMemReader(
		kafka.Message{Offset: 1, Value: []byte("ok")},
		kafka.Message{Offset: 2, Value: []byte("transient")},
		kafka.Message{Offset: 3, Value: []byte("poison")},
	)

	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, msg *Message) error {
		mu.Lock()
		seen = append(seen, string(msg.Value))
		mu.Unlock()
		switch string(msg.Value) {
		case "transient":
			return errors.New("database unavailable")
		case "poison":
			return fmt.Errorf("%w: bad payload", ErrPermanent)
		}
		return nil
	}

	c := NewConsumerWithReader(reader, "vendor-source-records", testLogger, handler)
	require.NoError(t, c.Start(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Stop())

	assert.Equal(t, []int64{1, 3}, reader.Committed())
}
