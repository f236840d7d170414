package payment_repo

import (
	"context"

	"orderpay/internal/domain"
)

type PaymentRepository interface {
	// CreateTx inserts the payment together with its installments.
	CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error
	// ListByOrderTx returns the order's payments oldest first, each with installments in order.
	ListByOrderTx(ctx context.Context, querier domain.Querier, orderID string) ([]domain.Payment, error)
	GetOrderIDByPaymentTx(ctx context.Context, querier domain.Querier, paymentID string) (string, error)
	GetOrderIDByInstallmentTx(ctx context.Context, querier domain.Querier, installmentID string) (string, error)
	// UpdateTx persists derived payment fields and every installment's mutable columns.
	UpdateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error
}
