// Package ledger holds the payment/installment rules: building an installment schedule,
// transitioning installments, deriving attempt status and summing what was paid. It performs no I/O;
// the reconciliation service persists the results under the order lock.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderpay/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// AttemptInput describes a new payment attempt.
type AttemptInput struct {
	OrderID     string
	Plan        *domain.PaymentPlan
	TotalAmount decimal.Decimal
	Method      domain.PaymentMethod
	Now         time.Time
	NewID       func() string
}

// OpenAttempt builds a Payment with one pending installment per plan percentage, or a single 100%
// installment when no plan is given. existing are the order's other attempts.
func OpenAttempt(in AttemptInput, existing []domain.Payment) (*domain.Payment, error) {
	if !in.TotalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive, got %s", domain.ErrValidation, in.TotalAmount)
	}
	if !in.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", domain.ErrValidation, in.Method)
	}
	var planID *string
	if in.Plan != nil {
		id := in.Plan.ID
		planID = &id
	}
	if open := FindOpenAttempt(existing, planID); open != nil {
		return nil, fmt.Errorf("%w: payment %s is still open for this schedule", domain.ErrInvalidState, open.ID)
	}

	percentages := []decimal.Decimal{hundred}
	paymentType := domain.PaymentTypeFull
	if in.Plan != nil {
		percentages = in.Plan.Percentages
		if len(percentages) > 1 {
			paymentType = domain.PaymentTypeInstallment
		}
	}

	amounts := SplitAmount(in.TotalAmount, percentages)
	payment := &domain.Payment{
		ID:                 in.NewID(),
		OrderID:            in.OrderID,
		PlanID:             planID,
		TotalAmount:        in.TotalAmount,
		PaymentMethod:      in.Method,
		PaymentType:        paymentType,
		Status:             domain.PaymentStatusPending,
		CurrentInstallment: 1,
		TotalInstallments:  len(percentages),
		CreatedAt:          in.Now,
		UpdatedAt:          in.Now,
	}
	for i, pct := range percentages {
		payment.Installments = append(payment.Installments, domain.Installment{
			ID:                in.NewID(),
			PaymentID:         payment.ID,
			InstallmentNumber: i + 1,
			Amount:            amounts[i],
			Percentage:        pct,
			Status:            domain.InstallmentPending,
			PaymentMethod:     in.Method,
			CreatedAt:         in.Now,
			UpdatedAt:         in.Now,
		})
	}
	return payment, nil
}

// SplitAmount applies percentages to total, rounding to cents. The last share takes the rounding
// remainder so the shares always add up to total.
func SplitAmount(total decimal.Decimal, percentages []decimal.Decimal) []decimal.Decimal {
	amounts := make([]decimal.Decimal, len(percentages))
	allocated := decimal.Zero
	for i, pct := range percentages {
		if i == len(percentages)-1 {
			amounts[i] = total.Sub(allocated)
			break
		}
		amounts[i] = total.Mul(pct).Div(hundred).Round(2)
		allocated = allocated.Add(amounts[i])
	}
	return amounts
}

// FindOpenAttempt returns the non-terminal attempt using the same schedule (nil plan means full).
func FindOpenAttempt(payments []domain.Payment, planID *string) *domain.Payment {
	for i := range payments {
		p := &payments[i]
		if DerivePaymentStatus(*p).Terminal() {
			continue
		}
		if samePlan(p.PlanID, planID) {
			return p
		}
	}
	return nil
}

func samePlan(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CurrentPending returns the lowest-numbered pending installment, or nil.
func CurrentPending(p *domain.Payment) *domain.Installment {
	var current *domain.Installment
	for i := range p.Installments {
		inst := &p.Installments[i]
		if inst.Status != domain.InstallmentPending {
			continue
		}
		if current == nil || inst.InstallmentNumber < current.InstallmentNumber {
			current = inst
		}
	}
	return current
}

// SlipInput is the evidence a customer attaches to a bank-transfer installment.
type SlipInput struct {
	SlipURL   string
	Amount    *decimal.Decimal
	IsPartial bool
	Notes     string
}

// RecordManualSlip attaches slip evidence to the current pending installment. The installment stays
// pending and its scheduled amount is untouched; mismatch reports a submitted amount that differs
// from the schedule.
func RecordManualSlip(p *domain.Payment, in SlipInput, now time.Time) (inst *domain.Installment, mismatch bool, err error) {
	if strings.TrimSpace(in.SlipURL) == "" {
		return nil, false, fmt.Errorf("%w: slip url is required", domain.ErrValidation)
	}
	if in.Amount != nil && !in.Amount.IsPositive() {
		return nil, false, fmt.Errorf("%w: slip amount must be positive", domain.ErrValidation)
	}
	inst = CurrentPending(p)
	if inst == nil {
		return nil, false, fmt.Errorf("%w: payment %s has no pending installment", domain.ErrInvalidState, p.ID)
	}
	url := in.SlipURL
	inst.PaymentSlipURL = &url
	inst.IsPartial = in.IsPartial
	inst.Notes = in.Notes
	inst.SubmittedAmount = nil
	if in.Amount != nil {
		amount := *in.Amount
		inst.SubmittedAmount = &amount
		mismatch = !amount.Equal(inst.Amount)
	}
	inst.UpdatedAt = now
	return inst, mismatch, nil
}

// ConfirmInstallment moves a pending installment to confirmed.
func ConfirmInstallment(inst *domain.Installment, verifier string, reference *string, now time.Time) error {
	if inst.Status != domain.InstallmentPending {
		return fmt.Errorf("%w: installment %s is already %s", domain.ErrInvalidState, inst.ID, inst.Status)
	}
	if strings.TrimSpace(verifier) == "" {
		return fmt.Errorf("%w: verifier is required", domain.ErrValidation)
	}
	v := verifier
	inst.Status = domain.InstallmentConfirmed
	inst.VerifiedBy = &v
	inst.ConfirmationDate = &now
	if reference != nil && *reference != "" {
		ref := *reference
		inst.TransactionID = &ref
	}
	inst.UpdatedAt = now
	return nil
}

// RejectInstallment moves a pending installment to rejected. A reason is mandatory.
func RejectInstallment(inst *domain.Installment, verifier, reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: rejection reason is required", domain.ErrValidation)
	}
	if inst.Status != domain.InstallmentPending {
		return fmt.Errorf("%w: installment %s is already %s", domain.ErrInvalidState, inst.ID, inst.Status)
	}
	v, r := verifier, reason
	inst.Status = domain.InstallmentRejected
	inst.VerifiedBy = &v
	inst.RejectionReason = &r
	inst.RejectedAt = &now
	inst.UpdatedAt = now
	return nil
}

// DerivePaymentStatus computes the aggregate attempt status from its installments.
func DerivePaymentStatus(p domain.Payment) domain.PaymentStatus {
	if len(p.Installments) == 0 {
		return domain.PaymentStatusPending
	}
	confirmed := 0
	for _, inst := range p.Installments {
		switch inst.Status {
		case domain.InstallmentRejected:
			return domain.PaymentStatusRejected
		case domain.InstallmentConfirmed:
			confirmed++
		}
	}
	switch {
	case confirmed == len(p.Installments):
		return domain.PaymentStatusCompleted
	case confirmed > 0:
		return domain.PaymentStatusPartial
	}
	return domain.PaymentStatusPending
}

// Refresh recomputes Status and CurrentInstallment of p in place.
func Refresh(p *domain.Payment, now time.Time) {
	p.Status = DerivePaymentStatus(*p)
	if cur := CurrentPending(p); cur != nil {
		p.CurrentInstallment = cur.InstallmentNumber
	} else {
		p.CurrentInstallment = p.TotalInstallments
	}
	p.UpdatedAt = now
}

// TotalPaid sums confirmed installments across every attempt.
func TotalPaid(payments []domain.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		for _, inst := range p.Installments {
			if inst.Status == domain.InstallmentConfirmed {
				total = total.Add(inst.Amount)
			}
		}
	}
	return total
}

// Remaining is max(0, totalPrice - TotalPaid).
func Remaining(totalPrice decimal.Decimal, payments []domain.Payment) decimal.Decimal {
	rem := totalPrice.Sub(TotalPaid(payments))
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// FindInstallment locates an installment by id across payments.
func FindInstallment(payments []domain.Payment, installmentID string) (*domain.Payment, *domain.Installment) {
	for i := range payments {
		for j := range payments[i].Installments {
			if payments[i].Installments[j].ID == installmentID {
				return &payments[i], &payments[i].Installments[j]
			}
		}
	}
	return nil, nil
}
