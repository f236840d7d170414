package kafka_infra

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"orderpay/internal/domain"
)

const (
	HeaderEventKind = "event_kind"
	HeaderMessageID = "message_id"
)

// Producer publishes outbox notifications to a single topic. Writes are synchronous: the outbox
// only marks a row as sent once the brokers have acknowledged it.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(brokerURLs []string, topic string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerURLs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		Logger:       kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
	}
	return &Producer{writer: writer, logger: logger}
}

// Publish keys the record by order id so notifications for one order stay in order on a partition.
func (p *Producer) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	record := kafka.Message{
		Key:   []byte(msg.AggregateID),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: HeaderEventKind, Value: []byte(msg.EventKind)},
			{Key: HeaderMessageID, Value: []byte(msg.ID)},
		},
	}

	produceCtx, cancel := context.WithTimeout(ctx, p.writer.WriteTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(produceCtx, record); err != nil {
		return fmt.Errorf("failed to produce %s message to Kafka topic %s: %w", msg.EventKind, p.writer.Topic, err)
	}
	p.logger.Debug("Message produced to Kafka",
		zap.String("topic", p.writer.Topic),
		zap.String("message_id", msg.ID),
		zap.String("event_kind", msg.EventKind),
	)
	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.logger.Info("Kafka producer closed.")
	return nil
}
