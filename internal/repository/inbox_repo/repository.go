package inbox_repo

import (
	"context"
	"errors"

	"orderpay/internal/domain"
)

type InboxRepository interface {
	// CreateMessageTx records msg, or returns ErrMessageAlreadyProcessed when its id was seen before.
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error
}

var ErrMessageAlreadyProcessed = errors.New("inbox message already processed")
