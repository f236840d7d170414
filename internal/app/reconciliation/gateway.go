package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderpay/internal/domain"
	"orderpay/internal/domain/event"
	"orderpay/internal/ledger"
	"orderpay/internal/payhere"
	"orderpay/internal/repository/inbox_repo"
)

const (
	inboxSourcePayHere    = "payhere"
	inboxSourceFulfilment = "fulfilment"

	gatewayVerifier = "payhere"
)

// HandlePayHereNotification applies a server-to-server gateway notification. Nothing is read or
// written unless the md5sig verifies; such notifications yield domain.ErrUnverifiedSignature, which
// the HTTP layer still acknowledges. Replays are detected through the inbox and are no-ops.
func (s *Service) HandlePayHereNotification(ctx context.Context, fields map[string]string) error {
	logger := s.logger.With(
		zap.String("gateway_order_id", fields[payhere.FieldOrderID]),
		zap.String("gateway_payment_id", fields[payhere.FieldPaymentID]),
		zap.String("status_code", fields[payhere.FieldStatusCode]),
	)
	if !payhere.VerifyNotification(fields, s.merchant.AppSecret) || fields[payhere.FieldMerchantID] != s.merchant.MerchantID {
		logger.Warn("Dropping PayHere notification with invalid signature")
		return domain.ErrUnverifiedSignature
	}

	statusCode := strings.TrimSpace(fields[payhere.FieldStatusCode])
	switch statusCode {
	case payhere.StatusSuccess, payhere.StatusCancelled, payhere.StatusFailed:
	case payhere.StatusChargeback:
		logger.Warn("PayHere reported a chargeback, manual review needed")
		return nil
	default:
		logger.Info("PayHere notification acknowledged without ledger change")
		return nil
	}

	installmentID := fields[payhere.FieldOrderID]
	orderID, err := s.payments.GetOrderIDByInstallmentTx(ctx, s.tx.Querier(), installmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("PayHere notification references an unknown installment")
			return nil
		}
		return err
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal PayHere notification: %w", err)
	}
	now := s.now()
	inboxMsg := &domain.InboxMessage{
		ID:          strings.Join([]string{inboxSourcePayHere, fields[payhere.FieldPaymentID], installmentID, statusCode}, "|"),
		Source:      inboxSourcePayHere,
		Payload:     payload,
		Status:      domain.InboxStatusProcessed,
		ReceivedAt:  now,
		ProcessedAt: &now,
	}

	var outcome string
	err = s.runInOrderTx(ctx, orderID, func(q domain.Querier, order *domain.Order) error {
		if err := s.inbox.CreateMessageTx(ctx, q, inboxMsg); err != nil {
			if errors.Is(err, inbox_repo.ErrMessageAlreadyProcessed) {
				outcome = "replay"
				return nil
			}
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
		if reason := s.amountMismatch(inst, fields); reason != "" {
			outcome = reason
			return nil
		}
		if order.Status == domain.OrderStatusCancelled {
			outcome = "order cancelled"
			if statusCode == payhere.StatusSuccess && inst.Status == domain.InstallmentPending {
				outcome = "order cancelled, refund required"
			}
			return nil
		}

		var (
			kind   event.Kind
			detail = eventDetail{payment: payment, installment: inst}
		)
		switch {
		case inst.Status == domain.InstallmentConfirmed:
			outcome = "already confirmed"
			return nil
		case inst.Status == domain.InstallmentRejected:
			outcome = "installment already rejected"
			return nil
		case statusCode == payhere.StatusSuccess:
			paymentRef := fields[payhere.FieldPaymentID]
			if err := ledger.ConfirmInstallment(inst, gatewayVerifier, &paymentRef, now); err != nil {
				return err
			}
			kind = event.KindPaymentReceived
			outcome = "confirmed"
		default:
			reason := "payhere: payment failed"
			if statusCode == payhere.StatusCancelled {
				reason = "payhere: payment cancelled"
			}
			if err := ledger.RejectInstallment(inst, gatewayVerifier, reason, now); err != nil {
				return err
			}
			kind = event.KindInstallmentRejected
			detail.reason = reason
			outcome = "rejected"
		}
		if err := s.settleTx(ctx, q, order, payments, payment, now); err != nil {
			return err
		}
		return s.emit(ctx, q, kind, order, detail)
	})
	if err != nil {
		logger.Error("Failed to apply PayHere notification", zap.Error(err))
		return err
	}
	if outcome == "order cancelled, refund required" {
		logger.Error("PayHere captured a payment for a cancelled order", zap.String("order_id", orderID))
	}
	logger.Info("PayHere notification processed", zap.String("order_id", orderID), zap.String("outcome", outcome))
	return nil
}

// amountMismatch returns a description when the notified amount or currency is not what the
// installment was signed for.
func (s *Service) amountMismatch(inst *domain.Installment, fields map[string]string) string {
	if !strings.EqualFold(fields[payhere.FieldCurrency], s.merchant.Currency) {
		return "currency mismatch"
	}
	amount, err := decimal.NewFromString(fields[payhere.FieldAmount])
	if err != nil || !amount.Equal(inst.Amount) {
		return "amount mismatch"
	}
	return ""
}

// HandleFulfilmentEvent completes the order once the ordered goods or service were delivered.
// Redelivered events are skipped.
func (s *Service) HandleFulfilmentEvent(ctx context.Context, ev event.FulfilmentEvent, raw []byte) error {
	if ev.EventID == "" || ev.OrderID == "" {
		return fmt.Errorf("%w: fulfilment event needs event_id and order_id", domain.ErrValidation)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%w: fulfilment event payload is not JSON", domain.ErrValidation)
	}
	now := s.now()
	msg := &domain.InboxMessage{
		ID:          inboxSourceFulfilment + "|" + ev.EventID,
		Source:      inboxSourceFulfilment,
		Payload:     raw,
		Status:      domain.InboxStatusProcessed,
		ReceivedAt:  now,
		ProcessedAt: &now,
	}
	_, err := s.completeOrder(ctx, ev.OrderID, msg)
	if errors.Is(err, inbox_repo.ErrMessageAlreadyProcessed) {
		s.logger.Info("Fulfilment event already processed", zap.String("event_id", ev.EventID))
		return nil
	}
	if err != nil {
		s.logFailure("Failed to complete order from fulfilment event", err,
			zap.String("event_id", ev.EventID),
			zap.String("order_id", ev.OrderID),
			zap.Time("delivered_at", ev.Timestamp),
		)
		return err
	}
	return nil
}
