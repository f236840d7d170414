package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderpay/internal/domain"
	"orderpay/internal/domain/event"
	"orderpay/internal/ledger"
	"orderpay/internal/orderstate"
	"orderpay/internal/repository/order_repo"
)

const orderNumberAttempts = 3

type CreateOrderInput struct {
	OrderType          domain.OrderType
	DesignID           *string
	CustomizationNotes string
	EventDate          *time.Time
}

// OrderSummary is an order with its payment attempts and running totals. Remaining is zero until
// the order is priced.
type OrderSummary struct {
	Order     domain.Order
	Payments  []domain.Payment
	TotalPaid decimal.Decimal
	Remaining decimal.Decimal
}

func summarize(order *domain.Order, payments []domain.Payment) *OrderSummary {
	sum := &OrderSummary{
		Order:     *order,
		Payments:  payments,
		TotalPaid: ledger.TotalPaid(payments),
		Remaining: decimal.Zero,
	}
	if order.TotalPrice != nil {
		sum.Remaining = ledger.Remaining(*order.TotalPrice, payments)
	}
	return sum
}

func (s *Service) CreateOrder(ctx context.Context, actor domain.Principal, in CreateOrderInput) (*domain.Order, error) {
	if actor.Role != domain.RoleCustomer || actor.Username == "" {
		return nil, fmt.Errorf("%w: only customers can place orders", domain.ErrForbidden)
	}
	if !in.OrderType.Valid() {
		return nil, fmt.Errorf("%w: unknown order type %q", domain.ErrValidation, in.OrderType)
	}
	designID := ""
	if in.DesignID != nil {
		designID = strings.TrimSpace(*in.DesignID)
	}
	switch in.OrderType {
	case domain.OrderTypeAsIs, domain.OrderTypeCustomized:
		if designID == "" {
			return nil, fmt.Errorf("%w: %s orders must reference a design", domain.ErrValidation, in.OrderType)
		}
	case domain.OrderTypeFullyCustom:
		if strings.TrimSpace(in.CustomizationNotes) == "" {
			return nil, fmt.Errorf("%w: fully custom orders need customization notes", domain.ErrValidation)
		}
	}

	now := s.now()
	order := &domain.Order{
		ID:                 s.newID(),
		OrderType:          in.OrderType,
		CustomerUsername:   actor.Username,
		CustomizationNotes: in.CustomizationNotes,
		EventDate:          in.EventDate,
		Status:             domain.OrderStatusPending,
		PaymentStatus:      domain.OrderPaymentPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if designID != "" {
		order.DesignID = &designID
	}
	if in.OrderType == domain.OrderTypeAsIs {
		price, err := s.catalog.BasePrice(ctx, designID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: design %s does not exist", domain.ErrValidation, designID)
			}
			return nil, fmt.Errorf("failed to price design %s: %w", designID, err)
		}
		order.BasePrice = &price
	}

	var err error
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		order.OrderNumber, err = s.orderNumbers.Next(now)
		if err != nil {
			return nil, err
		}
		err = s.tx.RunInTx(ctx, func(q domain.Querier) error {
			if err := s.orders.CreateTx(ctx, q, order); err != nil {
				return err
			}
			return s.emit(ctx, q, event.KindOrderCreated, order, eventDetail{})
		})
		if !errors.Is(err, order_repo.ErrDuplicateOrderNumber) {
			break
		}
		s.logger.Warn("Order number collision, generating another", zap.String("order_number", order.OrderNumber), zap.Int("attempt", attempt))
	}
	if err != nil {
		s.logFailure("Failed to create order", err, zap.String("customer", actor.Username))
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("order_type", string(order.OrderType)),
		zap.String("customer", order.CustomerUsername),
	)
	return order, nil
}

func (s *Service) ConfirmOrder(ctx context.Context, actor domain.Principal, orderID string, in orderstate.ConfirmInput) (*domain.Order, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can confirm orders", domain.ErrForbidden)
	}
	var confirmed *domain.Order
	err := s.runInOrderTx(ctx, orderID, func(q domain.Querier, order *domain.Order) error {
		if in.PlanID != nil {
			plan, err := s.plans.GetByIDTx(ctx, q, *in.PlanID)
			if err != nil {
				return err
			}
			if !plan.IsActive {
				return fmt.Errorf("%w: payment plan %s is not active", domain.ErrValidation, plan.Name)
			}
		}
		now := s.now()
		if err := orderstate.Confirm(order, in, now); err != nil {
			return err
		}
		payments, err := s.payments.ListByOrderTx(ctx, q, order.ID)
		if err != nil {
			return err
		}
		orderstate.Apply(order, payments, now)
		if err := s.orders.UpdateTx(ctx, q, order); err != nil {
			return err
		}
		confirmed = order
		return s.emit(ctx, q, event.KindOrderConfirmed, order, eventDetail{})
	})
	if err != nil {
		s.logFailure("Failed to confirm order", err, zap.String("order_id", orderID))
		return nil, err
	}
	s.logger.Info("Order confirmed",
		zap.String("order_id", confirmed.ID),
		zap.String("total_price", confirmed.TotalPrice.StringFixed(2)),
		zap.String("admin", actor.Username),
	)
	return confirmed, nil
}

// CancelOrder is allowed for admins and the owning customer. Cancelling twice is a no-op that emits
// nothing.
func (s *Service) CancelOrder(ctx context.Context, actor domain.Principal, orderID, reason string) (*domain.Order, error) {
	var cancelled *domain.Order
	err := s.runInOrderTx(ctx, orderID, func(q domain.Querier, order *domain.Order) error {
		if !actor.CanAccess(order.CustomerUsername) {
			return fmt.Errorf("%w: order %s belongs to another customer", domain.ErrForbidden, order.OrderNumber)
		}
		changed, err := orderstate.Cancel(order, reason, s.now())
		if err != nil {
			return err
		}
		cancelled = order
		if !changed {
			return nil
		}
		if err := s.orders.UpdateTx(ctx, q, order); err != nil {
			return err
		}
		return s.emit(ctx, q, event.KindOrderCancelled, order, eventDetail{reason: order.CancellationReason})
	})
	if err != nil {
		s.logFailure("Failed to cancel order", err, zap.String("order_id", orderID))
		return nil, err
	}
	s.logger.Info("Order cancelled", zap.String("order_id", orderID), zap.String("by", actor.Username))
	return cancelled, nil
}

func (s *Service) CompleteOrder(ctx context.Context, actor domain.Principal, orderID string) (*domain.Order, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can complete orders", domain.ErrForbidden)
	}
	return s.completeOrder(ctx, orderID, nil)
}

// completeOrder records inboxMsg, when given, in the same transaction so a redelivered event is
// skipped.
func (s *Service) completeOrder(ctx context.Context, orderID string, inboxMsg *domain.InboxMessage) (*domain.Order, error) {
	var completed *domain.Order
	err := s.runInOrderTx(ctx, orderID, func(q domain.Querier, order *domain.Order) error {
		if inboxMsg != nil {
			if err := s.inbox.CreateMessageTx(ctx, q, inboxMsg); err != nil {
				return err
			}
		}
		changed, err := orderstate.Complete(order, s.now())
		if err != nil {
			return err
		}
		completed = order
		if !changed {
			return nil
		}
		if err := s.orders.UpdateTx(ctx, q, order); err != nil {
			return err
		}
		return s.emit(ctx, q, event.KindOrderCompleted, order, eventDetail{})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Order completed", zap.String("order_id", orderID))
	return completed, nil
}

func (s *Service) GetOrder(ctx context.Context, actor domain.Principal, orderID string) (*OrderSummary, error) {
	q := s.tx.Querier()
	order, err := s.orders.GetByIDTx(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(order.CustomerUsername) {
		// Hide the existence of other customers' orders.
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	payments, err := s.payments.ListByOrderTx(ctx, q, order.ID)
	if err != nil {
		return nil, err
	}
	return summarize(order, payments), nil
}

// ListOrders returns all orders to admins and a customer's own orders otherwise.
func (s *Service) ListOrders(ctx context.Context, actor domain.Principal) ([]domain.Order, error) {
	if actor.Username == "" {
		return nil, fmt.Errorf("%w: anonymous principal", domain.ErrForbidden)
	}
	owner := actor.Username
	if actor.IsAdmin() {
		owner = ""
	}
	return s.orders.ListTx(ctx, s.tx.Querier(), owner)
}

func isClientError(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrInvalidState,
		domain.ErrValidation,
		domain.ErrForbidden,
		domain.ErrConcurrencyConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
