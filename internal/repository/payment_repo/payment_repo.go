package payment_repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"orderpay/internal/domain"
	"orderpay/internal/infrastructure/database"
)

type paymentRepository struct{}

func NewPaymentRepository() *paymentRepository {
	return &paymentRepository{}
}

func (r *paymentRepository) CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, plan_id, total_amount, payment_method, payment_type, status,
			current_installment, total_installments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := querier.ExecContext(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.PlanID,
		payment.TotalAmount,
		payment.PaymentMethod,
		payment.PaymentType,
		payment.Status,
		payment.CurrentInstallment,
		payment.TotalInstallments,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	instQuery := `
		INSERT INTO installments (id, payment_id, installment_number, amount, percentage, status,
			payment_method, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, inst := range payment.Installments {
		_, err := querier.ExecContext(ctx, instQuery,
			inst.ID,
			payment.ID,
			inst.InstallmentNumber,
			inst.Amount,
			inst.Percentage,
			inst.Status,
			inst.PaymentMethod,
			inst.Notes,
			inst.CreatedAt,
			inst.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create installment %d of payment %s: %w", inst.InstallmentNumber, payment.ID, err)
		}
	}
	return nil
}

func (r *paymentRepository) ListByOrderTx(ctx context.Context, querier domain.Querier, orderID string) ([]domain.Payment, error) {
	query := `
		SELECT id, order_id, plan_id, total_amount, payment_method, payment_type, status,
			current_installment, total_installments, created_at, updated_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := querier.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments of order %s: %w", orderID, err)
	}
	defer rows.Close()

	var payments []domain.Payment
	index := make(map[string]int)
	for rows.Next() {
		var p domain.Payment
		var planID sql.NullString
		err := rows.Scan(
			&p.ID,
			&p.OrderID,
			&planID,
			&p.TotalAmount,
			&p.PaymentMethod,
			&p.PaymentType,
			&p.Status,
			&p.CurrentInstallment,
			&p.TotalInstallments,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if planID.Valid {
			p.PlanID = &planID.String
		}
		index[p.ID] = len(payments)
		payments = append(payments, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	if len(payments) == 0 {
		return nil, nil
	}

	ids := make([]string, len(payments))
	for i, p := range payments {
		ids[i] = p.ID
	}
	installments, err := r.listInstallments(ctx, querier, ids)
	if err != nil {
		return nil, err
	}
	for _, inst := range installments {
		i := index[inst.PaymentID]
		payments[i].Installments = append(payments[i].Installments, inst)
	}
	return payments, nil
}

func (r *paymentRepository) listInstallments(ctx context.Context, querier domain.Querier, paymentIDs []string) ([]domain.Installment, error) {
	query := `
		SELECT id, payment_id, installment_number, amount, percentage, status, payment_method,
			transaction_id, payment_slip_url, submitted_amount, is_partial, notes, verified_by,
			confirmation_date, rejection_reason, rejected_at, created_at, updated_at
		FROM installments
		WHERE payment_id = ANY($1::UUID[])
		ORDER BY payment_id, installment_number ASC
	`
	rows, err := querier.QueryContext(ctx, query, pq.Array(paymentIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list installments: %w", err)
	}
	defer rows.Close()

	var installments []domain.Installment
	for rows.Next() {
		var (
			inst                             domain.Installment
			transactionID, slipURL, verifier sql.NullString
			rejectionReason                  sql.NullString
			submitted                        decimal.NullDecimal
			confirmedAt, rejectedAt          sql.NullTime
		)
		err := rows.Scan(
			&inst.ID,
			&inst.PaymentID,
			&inst.InstallmentNumber,
			&inst.Amount,
			&inst.Percentage,
			&inst.Status,
			&inst.PaymentMethod,
			&transactionID,
			&slipURL,
			&submitted,
			&inst.IsPartial,
			&inst.Notes,
			&verifier,
			&confirmedAt,
			&rejectionReason,
			&rejectedAt,
			&inst.CreatedAt,
			&inst.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		inst.TransactionID = stringPtr(transactionID)
		inst.PaymentSlipURL = stringPtr(slipURL)
		inst.VerifiedBy = stringPtr(verifier)
		inst.RejectionReason = stringPtr(rejectionReason)
		if submitted.Valid {
			inst.SubmittedAmount = &submitted.Decimal
		}
		if confirmedAt.Valid {
			inst.ConfirmationDate = &confirmedAt.Time
		}
		if rejectedAt.Valid {
			inst.RejectedAt = &rejectedAt.Time
		}
		installments = append(installments, inst)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installments: %w", err)
	}
	return installments, nil
}

func (r *paymentRepository) GetOrderIDByPaymentTx(ctx context.Context, querier domain.Querier, paymentID string) (string, error) {
	var orderID string
	err := querier.QueryRowContext(ctx, `SELECT order_id FROM payments WHERE id = $1`, paymentID).Scan(&orderID)
	if err != nil {
		if database.IsNoRows(err) {
			return "", fmt.Errorf("payment %s: %w", paymentID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("failed to resolve order of payment %s: %w", paymentID, err)
	}
	return orderID, nil
}

func (r *paymentRepository) GetOrderIDByInstallmentTx(ctx context.Context, querier domain.Querier, installmentID string) (string, error) {
	query := `
		SELECT p.order_id
		FROM installments i
		JOIN payments p ON p.id = i.payment_id
		WHERE i.id = $1
	`
	var orderID string
	err := querier.QueryRowContext(ctx, query, installmentID).Scan(&orderID)
	if err != nil {
		if database.IsNoRows(err) {
			return "", fmt.Errorf("installment %s: %w", installmentID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("failed to resolve order of installment %s: %w", installmentID, err)
	}
	return orderID, nil
}

func (r *paymentRepository) UpdateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $2, current_installment = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := querier.ExecContext(ctx, query, payment.ID, payment.Status, payment.CurrentInstallment, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", payment.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", payment.ID, domain.ErrNotFound)
	}

	instQuery := `
		UPDATE installments SET
			status = $2, transaction_id = $3, payment_slip_url = $4, submitted_amount = $5,
			is_partial = $6, notes = $7, verified_by = $8, confirmation_date = $9,
			rejection_reason = $10, rejected_at = $11, updated_at = $12
		WHERE id = $1
	`
	for _, inst := range payment.Installments {
		var submitted decimal.NullDecimal
		if inst.SubmittedAmount != nil {
			submitted = decimal.NewNullDecimal(*inst.SubmittedAmount)
		}
		_, err := querier.ExecContext(ctx, instQuery,
			inst.ID,
			inst.Status,
			inst.TransactionID,
			inst.PaymentSlipURL,
			submitted,
			inst.IsPartial,
			inst.Notes,
			inst.VerifiedBy,
			inst.ConfirmationDate,
			inst.RejectionReason,
			inst.RejectedAt,
			inst.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update installment %s: %w", inst.ID, err)
		}
	}
	return nil
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
