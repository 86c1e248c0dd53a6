// Package messaging publishes engine events to Kafka.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Config contains the Kafka producer configuration.
type Config struct {
	Brokers      []string      `json:"brokers"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BatchTimeout time.Duration `json:"batch_timeout"`
	RequiredAcks int           `json:"required_acks"`
}

// DefaultConfig returns producer defaults suitable for the engine's low
// event volume.
func DefaultConfig() Config {
	return Config{
		Brokers:      []string{"localhost:9092"},
		WriteTimeout: 3 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: 1,
	}
}

// KafkaProducer publishes JSON-encoded events keyed by entity id.
type KafkaProducer struct {
	writer *kafka.Writer
	logger *zap.SugaredLogger
}

// NewKafkaProducer builds a producer over the configured brokers.
func NewKafkaProducer(cfg Config, logger *zap.SugaredLogger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
	}
	return &KafkaProducer{writer: writer, logger: logger}
}

// Publish emits one event. The topic is set per message so a single writer
// serves every engine topic.
func (p *KafkaProducer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event for topic %s: %w", topic, err)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to %s: %w", topic, err)
	}
	p.logger.Debugw("event published", "topic", topic, "key", key)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
