// Package mq provides the Kafka producer used to publish pipeline events.
// Notification delivery subscribes to these events instead of being called
// inline, so notifier failures never touch a financial decision.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calculus-guy/paymentscore/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig describes the producer connection.
type KafkaConfig struct {
	Brokers      []string
	MaxRetries   int
	RetryBackoff int
}

// KafkaProducer publishes JSON messages.
type KafkaProducer struct {
	writer *kafka.Writer
	config KafkaConfig
}

// NewProducer creates a Kafka producer with all-replica acks.
func NewProducer(cfg KafkaConfig) (*KafkaProducer, error) {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        time.Duration(cfg.RetryBackoff) * time.Millisecond,
		WriteBackoffMax:        time.Duration(cfg.RetryBackoff*10) * time.Millisecond,
	}

	logger.Info(context.Background(), "Kafka producer created", "brokers", cfg.Brokers)
	return &KafkaProducer{
		writer: writer,
		config: cfg,
	}, nil
}

// SendMessage publishes one message keyed by key onto topic.
func (kp *KafkaProducer) SendMessage(ctx context.Context, topic string, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	if err := kp.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, "failed to send Kafka message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return err
	}

	logger.Debug(ctx, "Kafka message sent",
		"topic", topic,
		"key", key,
	)
	return nil
}

// Close flushes and closes the writer.
func (kp *KafkaProducer) Close() error {
	return kp.writer.Close()
}
