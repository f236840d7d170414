package outbox_repo

import (
	"context"

	"orderpay/internal/domain"
)

type OutboxRepository interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error
	// GetPendingMessagesTx must run inside a transaction; the returned rows stay locked until it ends.
	GetPendingMessagesTx(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	MarkSentTx(ctx context.Context, querier domain.Querier, id string) error
	// RecordFailureTx bumps the attempt counter and marks the row FAILED once maxAttempts is reached.
	RecordFailureTx(ctx context.Context, querier domain.Querier, id string, maxAttempts int) error
}
