package reconciliation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orderpay/internal/domain"
	"orderpay/internal/domain/event"
	"orderpay/internal/ledger"
	"orderpay/internal/orderstate"
	"orderpay/internal/payhere"
)

// InitiatePayHere returns a signed checkout for the order's current PayHere installment. An open
// PayHere attempt for the same plan is reused, otherwise a new one is opened for what is still owed.
// The installment id is the gateway order_id, so the notification resolves straight to it.
func (s *Service) InitiatePayHere(ctx context.Context, actor domain.Principal, orderID string, planID *string) (*payhere.Checkout, error) {
	var checkout payhere.Checkout
	err := s.runInOrderTx(ctx, orderID, func(q domain.Querier, order *domain.Order) error {
		if !actor.CanAccess(order.CustomerUsername) {
			return fmt.Errorf("%w: order %s belongs to another customer", domain.ErrForbidden, order.OrderNumber)
		}
		payment, opened, err := s.openOrReuseAttemptTx(ctx, q, order, planID, domain.PaymentMethodPayHere)
		if err != nil {
			return err
		}
		inst := ledger.CurrentPending(payment)
		if inst == nil {
			return fmt.Errorf("%w: payment %s has no pending installment", domain.ErrInvalidState, payment.ID)
		}
		checkout = payhere.NewCheckout(s.merchant, inst.ID, inst.Amount, fmt.Sprintf("Order %s installment %d/%d", order.OrderNumber, inst.InstallmentNumber, payment.TotalInstallments))
		checkout.PaymentID = payment.ID
		checkout.InstallmentNumber = inst.InstallmentNumber
		if !opened {
			return nil
		}
		return s.emit(ctx, q, event.KindPaymentInitiated, order, eventDetail{payment: payment})
	})
	if err != nil {
		s.logFailure("Failed to initiate PayHere payment", err, zap.String("order_id", orderID))
		return nil, err
	}
	s.logger.Info("PayHere checkout prepared",
		zap.String("order_id", orderID),
		zap.String("payment_id", checkout.PaymentID),
		zap.String("gateway_order_id", checkout.OrderID),
		zap.String("amount", checkout.Amount),
	)
	return &checkout, nil
}

// OpenBankTransfer opens a bank-transfer attempt. Slips are then uploaded against it one
// installment at a time.
func (s *Service) OpenBankTransfer(ctx context.Context, actor domain.Principal, orderID string, planID *string) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.runInOrderTx(ctx, orderID, func(q domain.Querier, order *domain.Order) error {
		if !actor.CanAccess(order.CustomerUsername) {
			return fmt.Errorf("%w: order %s belongs to another customer", domain.ErrForbidden, order.OrderNumber)
		}
		payments, err := s.payments.ListByOrderTx(ctx, q, order.ID)
		if err != nil {
			return err
		}
		payment, err = s.openAttemptTx(ctx, q, order, payments, planID, domain.PaymentMethodBankTransfer)
		if err != nil {
			return err
		}
		return s.emit(ctx, q, event.KindPaymentInitiated, order, eventDetail{payment: payment})
	})
	if err != nil {
		s.logFailure("Failed to open bank transfer", err, zap.String("order_id", orderID))
		return nil, err
	}
	s.logger.Info("Bank transfer opened",
		zap.String("order_id", orderID),
		zap.String("payment_id", payment.ID),
		zap.Int("installments", payment.TotalInstallments),
	)
	return payment, nil
}

// UploadSlip attaches a bank slip to the payment's current installment. The installment stays
// pending until an admin confirms or rejects it; a submitted amount that differs from the schedule
// is reported, never applied.
func (s *Service) UploadSlip(ctx context.Context, actor domain.Principal, paymentID string, in ledger.SlipInput) (*domain.Installment, bool, error) {
	orderID, err := s.payments.GetOrderIDByPaymentTx(ctx, s.tx.Querier(), paymentID)
	if err != nil {
		return nil, false, err
	}

	var (
		recorded domain.Installment
		mismatch bool
	)
	err = s.runInOrderTx(ctx, orderID, func(q domain.Querier, order *domain.Order) error {
		if !actor.CanAccess(order.CustomerUsername) {
			return fmt.Errorf("%w: payment %s belongs to another customer", domain.ErrForbidden, paymentID)
		}
		if err := acceptsSettlement(order); err != nil {
			return err
		}
		payments, err := s.payments.ListByOrderTx(ctx, q, order.ID)
		if err != nil {
			return err
		}
		payment := findPayment(payments, paymentID)
		if payment == nil {
			return fmt.Errorf("payment %s: %w", paymentID, domain.ErrNotFound)
		}
		if payment.PaymentMethod != domain.PaymentMethodBankTransfer {
			return fmt.Errorf("%w: slips can only be attached to bank transfers", domain.ErrInvalidState)
		}
		now := s.now()
		inst, mm, err := ledger.RecordManualSlip(payment, in, now)
		if err != nil {
			return err
		}
		recorded, mismatch = *inst, mm
		if err := s.settleTx(ctx, q, order, payments, payment, now); err != nil {
			return err
		}
		return s.emit(ctx, q, event.KindSlipUploaded, order, eventDetail{payment: payment, installment: &recorded, mismatch: mismatch})
	})
	if err != nil {
		s.logFailure("Failed to record payment slip", err, zap.String("payment_id", paymentID))
		return nil, false, err
	}
	if mismatch {
		s.logger.Warn("Slip amount differs from the scheduled installment",
			zap.String("payment_id", paymentID),
			zap.String("installment_id", recorded.ID),
			zap.String("scheduled", recorded.Amount.StringFixed(2)),
			zap.String("submitted", recorded.SubmittedAmount.StringFixed(2)),
		)
	}
	s.logger.Info("Payment slip recorded", zap.String("payment_id", paymentID), zap.String("installment_id", recorded.ID))
	return &recorded, mismatch, nil
}

// ConfirmInstallment is the admin approval of a pending installment.
func (s *Service) ConfirmInstallment(ctx context.Context, actor domain.Principal, installmentID string, reference *string) (*domain.Installment, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can confirm installments", domain.ErrForbidden)
	}
	inst, err := s.transitionInstallment(ctx, installmentID, event.KindInstallmentConfirmed, func(inst *domain.Installment, now time.Time) error {
		return ledger.ConfirmInstallment(inst, actor.Username, reference, now)
	})
	if err != nil {
		s.logFailure("Failed to confirm installment", err, zap.String("installment_id", installmentID))
		return nil, err
	}
	s.logger.Info("Installment confirmed",
		zap.String("installment_id", inst.ID),
		zap.String("amount", inst.Amount.StringFixed(2)),
		zap.String("admin", actor.Username),
	)
	return inst, nil
}

func (s *Service) RejectInstallment(ctx context.Context, actor domain.Principal, installmentID, reason string) (*domain.Installment, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can reject installments", domain.ErrForbidden)
	}
	inst, err := s.transitionInstallment(ctx, installmentID, event.KindInstallmentRejected, func(inst *domain.Installment, now time.Time) error {
		return ledger.RejectInstallment(inst, actor.Username, reason, now)
	})
	if err != nil {
		s.logFailure("Failed to reject installment", err, zap.String("installment_id", installmentID))
		return nil, err
	}
	s.logger.Info("Installment rejected",
		zap.String("installment_id", inst.ID),
		zap.String("reason", reason),
		zap.String("admin", actor.Username),
	)
	return inst, nil
}

func (s *Service) transitionInstallment(ctx context.Context, installmentID string, kind event.Kind, apply func(inst *domain.Installment, now time.Time) error) (*domain.Installment, error) {
	orderID, err := s.payments.GetOrderIDByInstallmentTx(ctx, s.tx.Querier(), installmentID)
	if err != nil {
		return nil, err
	}
	var result domain.Installment
	err = s.runInOrderTx(ctx, orderID, func(q domain.Querier, order *domain.Order) error {
		if err := acceptsSettlement(order); err != nil {
			return err
		}
		payments, err := s.payments.ListByOrderTx(ctx, q, order.ID)
		if err != nil {
			return err
		}
		payment, inst := ledger.FindInstallment(payments, installmentID)
		if inst == nil {
			return fmt.Errorf("installment %s: %w", installmentID, domain.ErrNotFound)
		}
		now := s.now()
		if err := apply(inst, now); err != nil {
			return err
		}
		result = *inst
		if err := s.settleTx(ctx, q, order, payments, payment, now); err != nil {
			return err
		}
		d := eventDetail{payment: payment, installment: &result}
		if inst.RejectionReason != nil {
			d.reason = *inst.RejectionReason
		}
		return s.emit(ctx, q, kind, order, d)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// openOrReuseAttemptTx returns the open attempt with the same schedule and method, or opens one.
func (s *Service) openOrReuseAttemptTx(ctx context.Context, q domain.Querier, order *domain.Order, planID *string, method domain.PaymentMethod) (*domain.Payment, bool, error) {
	if err := acceptsNewPayments(order); err != nil {
		return nil, false, err
	}
	payments, err := s.payments.ListByOrderTx(ctx, q, order.ID)
	if err != nil {
		return nil, false, err
	}
	if open := ledger.FindOpenAttempt(payments, s.resolvePlanID(order, planID)); open != nil && open.PaymentMethod == method {
		return open, false, nil
	}
	payment, err := s.openAttemptTx(ctx, q, order, payments, planID, method)
	if err != nil {
		return nil, false, err
	}
	return payment, true, nil
}

// openAttemptTx opens an attempt covering what the order still owes, using planID, or the plan the
// admin chose at confirmation, or a single full installment.
func (s *Service) openAttemptTx(ctx context.Context, q domain.Querier, order *domain.Order, payments []domain.Payment, planID *string, method domain.PaymentMethod) (*domain.Payment, error) {
	if err := acceptsNewPayments(order); err != nil {
		return nil, err
	}
	var plan *domain.PaymentPlan
	if id := s.resolvePlanID(order, planID); id != nil {
		p, err := s.plans.GetByIDTx(ctx, q, *id)
		if err != nil {
			return nil, err
		}
		if !p.IsActive {
			return nil, fmt.Errorf("%w: payment plan %s is not active", domain.ErrValidation, p.Name)
		}
		plan = p
	}
	remaining := ledger.Remaining(*order.TotalPrice, payments)
	if !remaining.IsPositive() {
		return nil, fmt.Errorf("%w: order %s is already paid in full", domain.ErrInvalidState, order.OrderNumber)
	}

	now := s.now()
	payment, err := ledger.OpenAttempt(ledger.AttemptInput{
		OrderID:     order.ID,
		Plan:        plan,
		TotalAmount: remaining,
		Method:      method,
		Now:         now,
		NewID:       s.newID,
	}, payments)
	if err != nil {
		return nil, err
	}
	// Both attempts are sized on the same remaining balance until one of them settles.
	for i := range payments {
		if other := &payments[i]; !ledger.DerivePaymentStatus(*other).Terminal() {
			s.logger.Warn("Opened a payment attempt while another one is still open",
				zap.String("order_id", order.ID),
				zap.String("payment_id", payment.ID),
				zap.String("open_payment_id", other.ID),
				zap.String("open_method", string(other.PaymentMethod)),
				zap.String("remaining", remaining.StringFixed(2)),
			)
		}
	}
	if err := s.payments.CreateTx(ctx, q, payment); err != nil {
		return nil, err
	}
	if plan != nil {
		id := plan.ID
		order.InstallmentPlanID = &id
	}
	payments = append(payments, *payment)
	orderstate.Apply(order, payments, now)
	if err := s.orders.UpdateTx(ctx, q, order); err != nil {
		return nil, err
	}
	return payment, nil
}

// acceptsNewPayments guards opening attempts and handing out gateway checkouts.
func acceptsNewPayments(order *domain.Order) error {
	if order.Status != domain.OrderStatusConfirmed || order.TotalPrice == nil {
		return fmt.Errorf("%w: order %s is %s, payments need a confirmed order", domain.ErrInvalidState, order.OrderNumber, order.Status)
	}
	return nil
}

// acceptsSettlement guards slips and installment decisions. A completed order may still settle an
// outstanding balance; a cancelled one takes no more money.
func acceptsSettlement(order *domain.Order) error {
	if order.Status == domain.OrderStatusCancelled {
		return fmt.Errorf("%w: order %s is cancelled", domain.ErrInvalidState, order.OrderNumber)
	}
	return nil
}

func (s *Service) resolvePlanID(order *domain.Order, planID *string) *string {
	if planID != nil && *planID != "" {
		return planID
	}
	return order.InstallmentPlanID
}

// settleTx persists a mutated payment and recomputes the order from the whole ledger. payment must
// point into payments.
func (s *Service) settleTx(ctx context.Context, q domain.Querier, order *domain.Order, payments []domain.Payment, payment *domain.Payment, now time.Time) error {
	ledger.Refresh(payment, now)
	if err := s.payments.UpdateTx(ctx, q, payment); err != nil {
		return err
	}
	orderstate.Apply(order, payments, now)
	return s.orders.UpdateTx(ctx, q, order)
}

func findPayment(payments []domain.Payment, id string) *domain.Payment {
	for i := range payments {
		if payments[i].ID == id {
			return &payments[i]
		}
	}
	return nil
}
