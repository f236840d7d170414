package inbox_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderpay/internal/domain"
)

type inboxRepository struct{}

func NewInboxRepository() *inboxRepository {
	return &inboxRepository{}
}

func (r *inboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, source, payload, status, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`
	var processedAt sql.NullTime
	if msg.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *msg.ProcessedAt, Valid: true}
	}

	var insertedID string
	err := querier.QueryRowContext(ctx, query,
		msg.ID,
		msg.Source,
		msg.Payload,
		msg.Status,
		msg.ReceivedAt,
		processedAt,
	).Scan(&insertedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("inbox message %s: %w", msg.ID, ErrMessageAlreadyProcessed)
		}
		return fmt.Errorf("failed to create inbox message: %w", err)
	}
	return nil
}
