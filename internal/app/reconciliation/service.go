// Package reconciliation orchestrates orders, payment attempts and gateway callbacks. Every mutation
// runs in one transaction holding the order's row lock, recomputes the order payment status and
// writes its notification to the outbox before committing.
package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderpay/internal/domain"
	"orderpay/internal/domain/event"
	"orderpay/internal/payhere"
	"orderpay/internal/repository/inbox_repo"
	"orderpay/internal/repository/order_repo"
	"orderpay/internal/repository/outbox_repo"
	"orderpay/internal/repository/payment_repo"
	"orderpay/internal/repository/plan_repo"
	"orderpay/internal/util"
)

// TxRunner is implemented by database.Transactor.
type TxRunner interface {
	Querier() domain.Querier
	RunInTx(ctx context.Context, fn func(q domain.Querier) error) error
	RunInLockedTx(ctx context.Context, fn func(q domain.Querier) error) error
}

// DesignCatalog supplies base prices of catalog designs.
type DesignCatalog interface {
	BasePrice(ctx context.Context, designID string) (decimal.Decimal, error)
}

type Deps struct {
	Tx           TxRunner
	Orders       order_repo.OrderRepository
	Plans        plan_repo.PlanRepository
	Payments     payment_repo.PaymentRepository
	Outbox       outbox_repo.OutboxRepository
	Inbox        inbox_repo.InboxRepository
	Catalog      DesignCatalog
	PayHere      payhere.MerchantConfig
	OrderNumbers util.OrderNumberGenerator
	NewID        func() string
	Now          func() time.Time
	Logger       *zap.Logger
}

type Service struct {
	tx           TxRunner
	orders       order_repo.OrderRepository
	plans        plan_repo.PlanRepository
	payments     payment_repo.PaymentRepository
	outbox       outbox_repo.OutboxRepository
	inbox        inbox_repo.InboxRepository
	catalog      DesignCatalog
	merchant     payhere.MerchantConfig
	orderNumbers util.OrderNumberGenerator
	newID        func() string
	clock        func() time.Time
	logger       *zap.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		tx:           d.Tx,
		orders:       d.Orders,
		plans:        d.Plans,
		payments:     d.Payments,
		outbox:       d.Outbox,
		inbox:        d.Inbox,
		catalog:      d.Catalog,
		merchant:     d.PayHere,
		orderNumbers: d.OrderNumbers,
		newID:        d.NewID,
		clock:        d.Now,
		logger:       d.Logger,
	}
	if s.newID == nil {
		s.newID = util.GenerateUUID
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.orderNumbers == nil {
		s.orderNumbers = util.RandomOrderNumbers{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// runInOrderTx locks orderID for the lifetime of one transaction and hands the locked row to fn.
func (s *Service) runInOrderTx(ctx context.Context, orderID string, fn func(q domain.Querier, order *domain.Order) error) error {
	return s.tx.RunInLockedTx(ctx, func(q domain.Querier) error {
		order, err := s.orders.GetByIDForUpdateTx(ctx, q, orderID)
		if err != nil {
			return err
		}
		return fn(q, order)
	})
}

type eventDetail struct {
	payment     *domain.Payment
	installment *domain.Installment
	mismatch    bool
	reason      string
}

func (s *Service) emit(ctx context.Context, q domain.Querier, kind event.Kind, order *domain.Order, d eventDetail) error {
	n := event.Notification{
		EventKind:        kind,
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		CustomerUsername: order.CustomerUsername,
		OrderStatus:      string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		AmountMismatch:   d.mismatch,
		Reason:           d.reason,
		Timestamp:        s.now(),
	}
	if d.payment != nil {
		n.PaymentID = d.payment.ID
		n.Amount = d.payment.TotalAmount.StringFixed(2)
	}
	if d.installment != nil {
		n.InstallmentID = d.installment.ID
		n.InstallmentNumber = d.installment.InstallmentNumber
		n.Amount = d.installment.Amount.StringFixed(2)
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal %s notification: %w", kind, err)
	}
	msg := &domain.OutboxMessage{
		ID:          s.newID(),
		AggregateID: order.ID,
		EventKind:   string(kind),
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   n.Timestamp,
	}
	if err := s.outbox.CreateMessageTx(ctx, q, msg); err != nil {
		return fmt.Errorf("failed to queue %s notification for order %s: %w", kind, order.ID, err)
	}
	return nil
}

func (s *Service) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if isClientError(err) {
		s.logger.Warn(msg, fields...)
		return
	}
	s.logger.Error(msg, fields...)
}
