// Package messaging implements the interaction ingest stream: a Kafka
// producer for upstream services to publish interaction events, and a
// consumer that feeds them into the Interaction Store and the real-time
// Analytics Engine.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/eventiq/recoengine/internal/config"
	"github.com/eventiq/recoengine/internal/models"
)

const (
	InteractionDLQSuffix = "-dlq"
	maxDeliveryRetries   = 3
)

// InteractionMessage is the wire envelope for one interaction event.
// MessageID identifies the delivery (not the interaction) for DLQ
// correlation; RetryCount is stamped by the consumer's retry loop, never
// by producers.
type InteractionMessage struct {
	MessageID   string             `json:"message_id"`
	Interaction models.Interaction `json:"interaction"`
	Timestamp   time.Time          `json:"timestamp"`
	RetryCount  int                `json:"retry_count"`
}

type KafkaProducer struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

type KafkaConsumer struct {
	reader *kafka.Reader
	logger *logrus.Logger
}

// MessageBus owns the interaction topic's producer and consumer plus
// its dead-letter writer.
type MessageBus struct {
	producer  *KafkaProducer
	consumer  *KafkaConsumer
	dlqWriter *kafka.Writer
	topic     string
	logger    *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	topic := cfg.Kafka.Topics.Interactions

	producer := &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // key by user id for per-user ordering
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger,
	}

	consumer := &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          topic,
			GroupID:        cfg.Kafka.GroupID,
			MinBytes:       10e3,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
		logger: logger,
	}

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic + InteractionDLQSuffix,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &MessageBus{
		producer:  producer,
		consumer:  consumer,
		dlqWriter: dlqWriter,
		topic:     topic,
		logger:    logger,
	}, nil
}

// PublishInteraction writes one interaction event to the ingest topic,
// keyed by user id so a single consumer always sees one user's events in
// order.
func (mb *MessageBus) PublishInteraction(ctx context.Context, in models.Interaction) error {
	msg := InteractionMessage{MessageID: uuid.New().String(), Interaction: in, Timestamp: time.Now()}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction message: %w", err)
	}

	kafkaMsg := kafka.Message{
		Key:   []byte(in.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(in.EventID)},
			{Key: "type", Value: []byte(string(in.Type))},
			{Key: "timestamp", Value: []byte(msg.Timestamp.Format(time.RFC3339))},
		},
	}

	if err := mb.producer.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		mb.logger.WithError(err).WithField("user_id", in.UserID).Error("failed to publish interaction to Kafka")
		return fmt.Errorf("failed to write interaction message: %w", err)
	}
	return nil
}

// ConsumeInteractions reads the ingest topic until ctx is cancelled,
// dispatching each decoded interaction to handler with exponential-backoff
// retry and a dead-letter fallback after maxDeliveryRetries attempts.
func (mb *MessageBus) ConsumeInteractions(ctx context.Context, handler func(models.Interaction) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		kafkaMsg, err := mb.consumer.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			mb.logger.WithError(err).Error("failed to read interaction message from Kafka")
			continue
		}

		var msg InteractionMessage
		if err := json.Unmarshal(kafkaMsg.Value, &msg); err != nil {
			mb.logger.WithError(err).Error("failed to unmarshal interaction message")
			continue
		}

		if err := mb.processWithRetry(ctx, msg, handler); err != nil {
			mb.logger.WithError(err).WithField("user_id", msg.Interaction.UserID).Error("failed to process interaction after retries")
			if sendErr := mb.sendToDLQ(ctx, msg, err); sendErr != nil {
				mb.logger.WithError(sendErr).Error("failed to send interaction to DLQ")
			}
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, msg InteractionMessage, handler func(models.Interaction) error) error {
	baseDelay := time.Second

	for attempt := 0; attempt <= maxDeliveryRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		msg.RetryCount = attempt
		if err := handler(msg.Interaction); err != nil {
			if attempt == maxDeliveryRetries {
				return fmt.Errorf("max retries exceeded: %w", err)
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, msg InteractionMessage, cause error) error {
	dlqPayload := map[string]interface{}{
		"original_message": msg,
		"error":            cause.Error(),
		"dlq_timestamp":    time.Now(),
	}

	raw, err := json.Marshal(dlqPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	kafkaMsg := kafka.Message{
		Key:   []byte(msg.Interaction.UserID),
		Value: raw,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(mb.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to write DLQ message: %w", err)
	}
	return nil
}

func (mb *MessageBus) Close() error {
	var errs []error
	if err := mb.producer.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	if err := mb.consumer.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := mb.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errs)
	}
	return nil
}

// Metrics returns Kafka consumer lag and throughput stats for monitoring.
func (mb *MessageBus) Metrics() map[string]interface{} {
	stats := mb.consumer.reader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}
