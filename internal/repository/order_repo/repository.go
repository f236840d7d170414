package order_repo

import (
	"context"
	"errors"

	"orderpay/internal/domain"
)

// ErrDuplicateOrderNumber is returned by CreateTx when the generated order number is taken.
var ErrDuplicateOrderNumber = errors.New("order number already exists")

type OrderRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error)
	// GetByIDForUpdateTx row-locks the order until the surrounding transaction ends.
	GetByIDForUpdateTx(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error)
	ListTx(ctx context.Context, querier domain.Querier, customerUsername string) ([]domain.Order, error)
	UpdateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error
}
