// Package kafka publishes escalation notifications as JSON events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/warden/internal/config"
	"github.com/example/warden/internal/ports/secondary"
)

// messageWriter is the subset of *kafka.Writer used by the sink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the JSON payload written for each notification.
type Event struct {
	NotificationID string         `json:"notificationId"`
	EscalationID   string         `json:"escalationId"`
	RecipientRole  string         `json:"recipientRole"`
	RecipientUser  string         `json:"recipientUser,omitempty"`
	Subject        string         `json:"subject"`
	Message        string         `json:"message"`
	Priority       string         `json:"priority"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Sink writes notifications to a Kafka topic keyed by escalation ID, so every
// notification of one escalation lands on the same partition.
type Sink struct {
	writer messageWriter
	log    *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// NewSink creates a synchronous Kafka writer from config.
func NewSink(cfg config.KafkaConfig, log *zap.SugaredLogger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}

	writeTimeout := 10 * time.Second
	if cfg.WriteTimeout != "" {
		d, err := time.ParseDuration(cfg.WriteTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid kafka write timeout: %w", err)
		}
		writeTimeout = d
	}

	var compression kafka.Compression
	switch cfg.CompressionCodec {
	case "none":
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "snappy", "":
		compression = kafka.Snappy
	default:
		log.Warnw("unknown compression codec, defaulting to snappy", "codec", cfg.CompressionCodec)
		compression = kafka.Snappy
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireAll,
		Compression:            compression,
		AllowAutoTopicCreation: false,
	}

	log.Infow("kafka notification sink created", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return newSink(writer, log), nil
}

func newSink(w messageWriter, log *zap.SugaredLogger) *Sink {
	return &Sink{writer: w, log: log}
}

func (s *Sink) Name() string { return "kafka" }

// Deliver publishes one notification and waits for the broker acknowledgement.
func (s *Sink) Deliver(ctx context.Context, n *secondary.NotificationRecord) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("kafka sink is closed")
	}

	value, err := json.Marshal(Event{
		NotificationID: n.ID,
		EscalationID:   n.RelatedEntityID,
		RecipientRole:  n.RecipientRole,
		RecipientUser:  n.RecipientUser,
		Subject:        n.Subject,
		Message:        n.Message,
		Priority:       n.Priority,
		Metadata:       n.Metadata,
		CreatedAt:      n.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.RelatedEntityID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "notification-id", Value: []byte(n.ID)},
			{Key: "priority", Value: []byte(n.Priority)},
		},
	}
	if action, ok := n.Metadata["action"].(string); ok {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "action", Value: []byte(action)})
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to Kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the writer. Further deliveries fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}

var _ secondary.NotificationSink = (*Sink)(nil)
