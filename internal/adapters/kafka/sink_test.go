package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/warden/internal/config"
	"github.com/example/warden/internal/ports/secondary"
)

type mockWriter struct {
	messages []kafka.Message
	err      error
	closed   int
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed++
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestSink_Deliver(t *testing.T) {
	w := &mockWriter{}
	sink := newSink(w, zap.NewNop().Sugar())

	n := &secondary.NotificationRecord{
		ID:                "NOTIF-1",
		RecipientRole:     "CISO",
		Subject:           "[CRITICAL] Escalated to level 2: Alert AL-9",
		Message:           "level 1 escalation unresolved",
		Priority:          "critical",
		RelatedEntityType: "escalation",
		RelatedEntityID:   "ESC-2",
		Metadata:          map[string]any{"action": "escalated", "level": 2},
		CreatedAt:         time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sink.Deliver(context.Background(), n))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "ESC-2", string(msg.Key))
	assert.Equal(t, "NOTIF-1", header(msg, "notification-id"))
	assert.Equal(t, "escalated", header(msg, "action"))

	var event Event
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "ESC-2", event.EscalationID)
	assert.Equal(t, "CISO", event.RecipientRole)
	assert.Equal(t, float64(2), event.Metadata["level"])
	assert.True(t, event.CreatedAt.Equal(n.CreatedAt))
}

func TestSink_DeliverFailureAndClose(t *testing.T) {
	w := &mockWriter{err: errors.New("leader not available")}
	sink := newSink(w, zap.NewNop().Sugar())

	err := sink.Deliver(context.Background(), &secondary.NotificationRecord{ID: "NOTIF-1"})
	assert.ErrorContains(t, err, "leader not available")

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.Equal(t, 1, w.closed)

	w.err = nil
	assert.ErrorContains(t, sink.Deliver(context.Background(), &secondary.NotificationRecord{ID: "NOTIF-2"}), "closed")
}

func TestNewSink_Validation(t *testing.T) {
	log := zap.NewNop().Sugar()

	_, err := NewSink(config.KafkaConfig{Topic: "t"}, log)
	assert.ErrorContains(t, err, "broker")

	_, err = NewSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, log)
	assert.ErrorContains(t, err, "topic")

	_, err = NewSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", WriteTimeout: "later"}, log)
	assert.ErrorContains(t, err, "write timeout")

	sink, err := NewSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", CompressionCodec: "zstd"}, log)
	require.NoError(t, err)
	assert.Equal(t, "kafka", sink.Name())
	assert.NoError(t, sink.Close())
}
