// Package orderstate is the order lifecycle: pending -> confirmed -> completed, with cancellation
// from any non-terminal state, and the payment-status axis derived from the installment ledger.
package orderstate

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderpay/internal/domain"
	"orderpay/internal/ledger"
)

// ConfirmInput carries the admin's pricing decision. BasePrice is only needed when the order did
// not inherit one from its design.
type ConfirmInput struct {
	BasePrice            *decimal.Decimal
	TransportationCost   decimal.Decimal
	AdditionalRentalCost decimal.Decimal
	PlanID               *string
}

// Confirm prices a pending order and moves it to confirmed.
func Confirm(o *domain.Order, in ConfirmInput, now time.Time) error {
	if o.Status != domain.OrderStatusPending {
		return fmt.Errorf("%w: order %s is %s, only pending orders can be confirmed", domain.ErrInvalidState, o.OrderNumber, o.Status)
	}
	base := o.BasePrice
	if in.BasePrice != nil {
		base = in.BasePrice
	}
	if base == nil {
		return fmt.Errorf("%w: order %s has no base price", domain.ErrValidation, o.OrderNumber)
	}
	if base.IsNegative() || in.TransportationCost.IsNegative() || in.AdditionalRentalCost.IsNegative() {
		return fmt.Errorf("%w: prices must not be negative", domain.ErrValidation)
	}
	total := base.Add(in.TransportationCost).Add(in.AdditionalRentalCost)
	if !total.IsPositive() {
		return fmt.Errorf("%w: total price must be positive", domain.ErrValidation)
	}

	b := *base
	o.BasePrice = &b
	o.TransportationCost = in.TransportationCost
	o.AdditionalRentalCost = in.AdditionalRentalCost
	o.TotalPrice = &total
	if in.PlanID != nil {
		id := *in.PlanID
		o.InstallmentPlanID = &id
	}
	o.Status = domain.OrderStatusConfirmed
	o.UpdatedAt = now
	return nil
}

// Cancel moves a non-terminal order to cancelled. Cancelling a cancelled order is a no-op; changed
// reports whether anything happened.
func Cancel(o *domain.Order, reason string, now time.Time) (changed bool, err error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false, fmt.Errorf("%w: cancellation reason is required", domain.ErrValidation)
	}
	switch o.Status {
	case domain.OrderStatusCancelled:
		return false, nil
	case domain.OrderStatusCompleted:
		return false, fmt.Errorf("%w: order %s is already completed", domain.ErrInvalidState, o.OrderNumber)
	}
	o.Status = domain.OrderStatusCancelled
	o.CancellationReason = reason
	o.UpdatedAt = now
	return true, nil
}

// Complete marks a confirmed order as delivered. Completing a completed order is a no-op.
func Complete(o *domain.Order, now time.Time) (changed bool, err error) {
	switch o.Status {
	case domain.OrderStatusCompleted:
		return false, nil
	case domain.OrderStatusConfirmed:
		o.Status = domain.OrderStatusCompleted
		o.UpdatedAt = now
		return true, nil
	}
	return false, fmt.Errorf("%w: order %s is %s, only confirmed orders can be completed", domain.ErrInvalidState, o.OrderNumber, o.Status)
}

// RecomputePaymentStatus derives the order payment status from its payments. It is the only place
// the thresholds live.
func RecomputePaymentStatus(totalPrice *decimal.Decimal, payments []domain.Payment) domain.OrderPaymentStatus {
	paid := ledger.TotalPaid(payments)
	if totalPrice != nil && totalPrice.IsPositive() {
		if paid.GreaterThanOrEqual(*totalPrice) {
			return domain.OrderPaymentCompleted
		}
		if paid.IsPositive() {
			return domain.OrderPaymentPartial
		}
	} else if paid.IsPositive() {
		return domain.OrderPaymentPartial
	}
	if lastActionWasRejection(payments) {
		return domain.OrderPaymentRejected
	}
	return domain.OrderPaymentPending
}

// Apply recomputes the order's payment status and current installment pointer.
func Apply(o *domain.Order, payments []domain.Payment, now time.Time) {
	o.PaymentStatus = RecomputePaymentStatus(o.TotalPrice, payments)
	o.CurrentInstallmentNumber = nil
	if active := activePayment(payments); active != nil {
		n := active.CurrentInstallment
		o.CurrentInstallmentNumber = &n
	}
	o.UpdatedAt = now
}

func lastActionWasRejection(payments []domain.Payment) bool {
	var last time.Time
	rejected := false
	for _, p := range payments {
		for _, inst := range p.Installments {
			switch {
			case inst.Status == domain.InstallmentConfirmed && inst.ConfirmationDate != nil:
				if !inst.ConfirmationDate.Before(last) {
					last, rejected = *inst.ConfirmationDate, false
				}
			case inst.Status == domain.InstallmentRejected && inst.RejectedAt != nil:
				if !inst.RejectedAt.Before(last) {
					last, rejected = *inst.RejectedAt, true
				}
			}
		}
	}
	return rejected
}

// activePayment is the most recently created non-rejected attempt, or the latest one.
func activePayment(payments []domain.Payment) *domain.Payment {
	var active *domain.Payment
	for i := range payments {
		p := &payments[i]
		if ledger.DerivePaymentStatus(*p) == domain.PaymentStatusRejected {
			continue
		}
		if active == nil || !p.CreatedAt.Before(active.CreatedAt) {
			active = p
		}
	}
	if active == nil && len(payments) > 0 {
		active = &payments[len(payments)-1]
	}
	return active
}
