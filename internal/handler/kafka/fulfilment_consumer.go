package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"orderpay/internal/domain"
	"orderpay/internal/domain/event"
	kafka_infra "orderpay/internal/infrastructure/kafka"
)

type FulfilmentService interface {
	HandleFulfilmentEvent(ctx context.Context, ev event.FulfilmentEvent, raw []byte) error
}

// FulfilmentMessageHandler completes orders from delivery events. Events that can never succeed
// (malformed, unknown order, order not in a completable state) are logged and committed; anything
// else is returned so the record is retried.
func FulfilmentMessageHandler(service FulfilmentService, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev event.FulfilmentEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Error("Failed to unmarshal fulfilment event, skipping",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}

		err := service.HandleFulfilmentEvent(ctx, ev, msg.Value)
		switch {
		case err == nil:
			logger.Info("Processed fulfilment event", zap.String("event_id", ev.EventID), zap.String("order_id", ev.OrderID))
			return nil
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidState):
			logger.Warn("Dropping fulfilment event",
				zap.String("event_id", ev.EventID),
				zap.String("order_id", ev.OrderID),
				zap.Error(err),
			)
			return nil
		default:
			return fmt.Errorf("failed to process fulfilment event %s for order %s: %w", ev.EventID, ev.OrderID, err)
		}
	}
}
