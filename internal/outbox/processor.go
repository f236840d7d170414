package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"orderpay/internal/domain"
)

// Publisher delivers one notification to the notification collaborator.
type Publisher interface {
	Publish(ctx context.Context, msg domain.OutboxMessage) error
}

type OutboxRepository interface {
	GetPendingMessagesTx(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	MarkSentTx(ctx context.Context, querier domain.Querier, id string) error
	RecordFailureTx(ctx context.Context, querier domain.Querier, id string, maxAttempts int) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(q domain.Querier) error) error
}

// Processor relays committed outbox rows to the Publisher. Delivery is at least once: a crash
// between publishing and committing the SENT mark republishes the row.
type Processor struct {
	tx           TxRunner
	outboxRepo   OutboxRepository
	publisher    Publisher
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	logger       *zap.Logger
}

func NewProcessor(
	tx TxRunner,
	outboxRepo OutboxRepository,
	publisher Publisher,
	pollInterval time.Duration,
	batchSize int,
	maxAttempts int,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		tx:           tx,
		outboxRepo:   outboxRepo,
		publisher:    publisher,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		logger:       logger,
	}
}

// Start polls until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped.")
			return
		case <-ticker.C:
			// Drain backlogs without waiting a full interval between batches.
			for {
				sent, err := p.ProcessBatch(ctx)
				if err != nil {
					if ctx.Err() == nil {
						p.logger.Error("Failed to process outbox batch", zap.Error(err))
					}
					break
				}
				if sent < p.batchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// ProcessBatch publishes up to batchSize pending rows and returns how many were sent. Rows are
// claimed with SKIP LOCKED, so several processors can run against one database.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	sent := 0
	err := p.tx.RunInTx(ctx, func(q domain.Querier) error {
		messages, err := p.outboxRepo.GetPendingMessagesTx(ctx, q, p.batchSize)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}
		p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

		for _, msg := range messages {
			if pubErr := p.publisher.Publish(ctx, msg); pubErr != nil {
				p.logger.Warn("Failed to publish outbox message",
					zap.String("message_id", msg.ID),
					zap.String("event_kind", msg.EventKind),
					zap.Int("attempt", msg.Attempts+1),
					zap.Error(pubErr),
				)
				if err := p.outboxRepo.RecordFailureTx(ctx, q, msg.ID, p.maxAttempts); err != nil {
					return err
				}
				if msg.Attempts+1 >= p.maxAttempts {
					p.logger.Error("Outbox message gave up after max attempts",
						zap.String("message_id", msg.ID),
						zap.String("order_id", msg.AggregateID),
						zap.String("event_kind", msg.EventKind),
					)
				}
				continue
			}
			if err := p.outboxRepo.MarkSentTx(ctx, q, msg.ID); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}
