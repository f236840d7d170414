package plan_repo

import (
	"context"

	"orderpay/internal/domain"
)

type PlanRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, plan *domain.PaymentPlan) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.PaymentPlan, error)
	ListActiveTx(ctx context.Context, querier domain.Querier) ([]domain.PaymentPlan, error)
	SetActiveTx(ctx context.Context, querier domain.Querier, id string, active bool) error
}
