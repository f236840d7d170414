package orderstate

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderpay/internal/domain"
)

var t0 = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func pendingOrder(base *decimal.Decimal) *domain.Order {
	return &domain.Order{ID: "o1", OrderNumber: "ORD-1", Status: domain.OrderStatusPending, PaymentStatus: domain.OrderPaymentPending, BasePrice: base}
}

func TestConfirm(t *testing.T) {
	o := pendingOrder(decPtr("800"))
	plan := "plan-half"
	err := Confirm(o, ConfirmInput{TransportationCost: dec("150"), AdditionalRentalCost: dec("50"), PlanID: &plan}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected confirmed, got %s", o.Status)
	}
	if !o.TotalPrice.Equal(dec("1000")) {
		t.Errorf("expected total 1000, got %s", o.TotalPrice)
	}
	if o.InstallmentPlanID == nil || *o.InstallmentPlanID != plan {
		t.Errorf("plan not recorded")
	}
	if err := Confirm(o, ConfirmInput{}, t0); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState confirming twice, got %v", err)
	}
}

func TestConfirm_BasePrice(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		o := pendingOrder(nil)
		if err := Confirm(o, ConfirmInput{TransportationCost: dec("10")}, t0); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if o.Status != domain.OrderStatusPending || o.TotalPrice != nil {
			t.Error("failed confirm must not mutate the order")
		}
	})
	t.Run("supplied by admin", func(t *testing.T) {
		o := pendingOrder(nil)
		if err := Confirm(o, ConfirmInput{BasePrice: decPtr("400")}, t0); err != nil {
			t.Fatal(err)
		}
		if !o.TotalPrice.Equal(dec("400")) {
			t.Errorf("expected 400, got %s", o.TotalPrice)
		}
	})
	t.Run("negative cost", func(t *testing.T) {
		o := pendingOrder(decPtr("400"))
		if err := Confirm(o, ConfirmInput{TransportationCost: dec("-1")}, t0); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestCancel(t *testing.T) {
	o := pendingOrder(decPtr("100"))
	if _, err := Cancel(o, "", t0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty reason, got %v", err)
	}
	changed, err := Cancel(o, "customer request", t0)
	if err != nil || !changed {
		t.Fatalf("expected cancellation, got changed=%v err=%v", changed, err)
	}
	if o.CancellationReason != "customer request" {
		t.Errorf("reason not recorded")
	}
	changed, err = Cancel(o, "customer request", t0)
	if err != nil || changed {
		t.Errorf("second cancel must be a no-op, got changed=%v err=%v", changed, err)
	}

	done := &domain.Order{Status: domain.OrderStatusCompleted}
	if _, err := Cancel(done, "late", t0); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState cancelling a completed order, got %v", err)
	}
}

func TestComplete(t *testing.T) {
	o := pendingOrder(decPtr("100"))
	if _, err := Complete(o, t0); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("pending order must not complete, got %v", err)
	}
	o.Status = domain.OrderStatusConfirmed
	if changed, err := Complete(o, t0); err != nil || !changed {
		t.Fatalf("expected completion, got %v", err)
	}
	if changed, err := Complete(o, t0); err != nil || changed {
		t.Errorf("expected idempotent completion, got changed=%v err=%v", changed, err)
	}
}

func installment(status domain.InstallmentStatus, amount string, at time.Time) domain.Installment {
	inst := domain.Installment{Status: status, Amount: dec(amount)}
	switch status {
	case domain.InstallmentConfirmed:
		inst.ConfirmationDate = &at
	case domain.InstallmentRejected:
		inst.RejectedAt = &at
	}
	return inst
}

func TestRecomputePaymentStatus(t *testing.T) {
	total := decPtr("1000")
	tests := []struct {
		name     string
		payments []domain.Payment
		want     domain.OrderPaymentStatus
	}{
		{"no payments", nil, domain.OrderPaymentPending},
		{"all pending", []domain.Payment{{Installments: []domain.Installment{
			installment(domain.InstallmentPending, "500", t0), installment(domain.InstallmentPending, "500", t0),
		}}}, domain.OrderPaymentPending},
		{"half paid", []domain.Payment{{Installments: []domain.Installment{
			installment(domain.InstallmentConfirmed, "500", t0), installment(domain.InstallmentPending, "500", t0),
		}}}, domain.OrderPaymentPartial},
		{"fully paid", []domain.Payment{{Installments: []domain.Installment{
			installment(domain.InstallmentConfirmed, "500", t0), installment(domain.InstallmentConfirmed, "500", t0.Add(time.Hour)),
		}}}, domain.OrderPaymentCompleted},
		{"sole installment rejected", []domain.Payment{{Installments: []domain.Installment{
			installment(domain.InstallmentRejected, "1000", t0),
		}}}, domain.OrderPaymentRejected},
		{"rejected after partial coverage", []domain.Payment{{Installments: []domain.Installment{
			installment(domain.InstallmentConfirmed, "500", t0), installment(domain.InstallmentRejected, "500", t0.Add(time.Hour)),
		}}}, domain.OrderPaymentPartial},
		{"rejected attempt then new pending attempt", []domain.Payment{
			{Installments: []domain.Installment{installment(domain.InstallmentRejected, "1000", t0)}},
			{Installments: []domain.Installment{installment(domain.InstallmentPending, "1000", t0)}},
		}, domain.OrderPaymentRejected},
		{"rejected attempt then confirmed attempt", []domain.Payment{
			{Installments: []domain.Installment{installment(domain.InstallmentRejected, "1000", t0)}},
			{Installments: []domain.Installment{installment(domain.InstallmentConfirmed, "1000", t0.Add(time.Hour))}},
		}, domain.OrderPaymentCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecomputePaymentStatus(total, tt.payments); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestApply_SetsCurrentInstallment(t *testing.T) {
	o := &domain.Order{TotalPrice: decPtr("1000")}
	payments := []domain.Payment{
		{ID: "old", CreatedAt: t0, CurrentInstallment: 1, Installments: []domain.Installment{installment(domain.InstallmentRejected, "1000", t0)}},
		{ID: "new", CreatedAt: t0.Add(time.Hour), CurrentInstallment: 2, Installments: []domain.Installment{
			installment(domain.InstallmentConfirmed, "500", t0.Add(2*time.Hour)), installment(domain.InstallmentPending, "500", t0),
		}},
	}
	Apply(o, payments, t0)
	if o.PaymentStatus != domain.OrderPaymentPartial {
		t.Errorf("expected partial, got %s", o.PaymentStatus)
	}
	if o.CurrentInstallmentNumber == nil || *o.CurrentInstallmentNumber != 2 {
		t.Errorf("expected current installment 2, got %v", o.CurrentInstallmentNumber)
	}
}
