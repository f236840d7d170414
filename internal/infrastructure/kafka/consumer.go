package kafka_infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler processes one record. A non-nil error leaves the offset uncommitted so the record
// is redelivered.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	reader  *kafka.Reader
	logger  *zap.Logger
	topic   string
	groupID string
	backoff time.Duration
}

func NewConsumer(brokerURLs []string, groupID, topic string, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:                brokerURLs,
		GroupID:                groupID,
		Topic:                  topic,
		MinBytes:               1,
		MaxBytes:               10e6,
		ReadBatchTimeout:       1 * time.Second,
		Logger:                 kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:            kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
		HeartbeatInterval:      3 * time.Second,
		PartitionWatchInterval: 5 * time.Second,
		MaxAttempts:            3,
	})

	return &Consumer{
		reader:  reader,
		logger:  logger,
		topic:   topic,
		groupID: groupID,
		backoff: time.Second,
	}
}

// Start blocks until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Kafka consumer starting", zap.String("topic", c.topic), zap.String("group_id", c.groupID))
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Error("Failed to close Kafka reader", zap.Error(err))
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Kafka consumer stopping", zap.String("topic", c.topic))
				return nil
			}
			if errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			c.logger.Error("Failed to fetch message from Kafka", zap.Error(err))
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		fields := []zap.Field{
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		}
		c.logger.Debug("Received Kafka message", fields...)

		if err := handler(ctx, msg); err != nil {
			c.logger.Error("Error handling Kafka message, offset not committed", append(fields, zap.Error(err))...)
			// The group reader only redelivers after a rebalance; back off and retry the same record.
			if !c.retry(ctx, handler, msg, fields) {
				return nil
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit offset for Kafka message", append(fields, zap.Error(err))...)
		}
	}
}

func (c *Consumer) retry(ctx context.Context, handler MessageHandler, msg kafka.Message, fields []zap.Field) bool {
	for attempt := 2; ; attempt++ {
		if !sleep(ctx, c.backoff) {
			return false
		}
		err := handler(ctx, msg)
		if err == nil {
			return true
		}
		c.logger.Warn("Retry of Kafka message failed", append(fields, zap.Int("attempt", attempt), zap.Error(err))...)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
