package plan_repo

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"orderpay/internal/domain"
	"orderpay/internal/infrastructure/database"
)

const planColumns = `id, name, description, number_of_installments, percentages::TEXT[], is_active, created_at`

type planRepository struct{}

func NewPlanRepository() *planRepository {
	return &planRepository{}
}

func (r *planRepository) CreateTx(ctx context.Context, querier domain.Querier, plan *domain.PaymentPlan) error {
	query := `
		INSERT INTO payment_plans (id, name, description, number_of_installments, percentages, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC(5,2)[], $6, $7)
	`
	percentages := make([]string, len(plan.Percentages))
	for i, p := range plan.Percentages {
		percentages[i] = p.StringFixed(2)
	}
	_, err := querier.ExecContext(ctx, query,
		plan.ID,
		plan.Name,
		plan.Description,
		plan.NumberOfInstallments,
		pq.Array(percentages),
		plan.IsActive,
		plan.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "payment_plans_name_key") {
			return fmt.Errorf("%w: plan named %q already exists", domain.ErrValidation, plan.Name)
		}
		return fmt.Errorf("failed to create payment plan: %w", err)
	}
	return nil
}

func (r *planRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.PaymentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM payment_plans WHERE id = $1`
	plan, err := scanPlan(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("payment plan %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get payment plan %s: %w", id, err)
	}
	return plan, nil
}

func (r *planRepository) ListActiveTx(ctx context.Context, querier domain.Querier) ([]domain.PaymentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM payment_plans
		WHERE is_active
		ORDER BY number_of_installments ASC, name ASC`
	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.PaymentPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment plan: %w", err)
		}
		plans = append(plans, *plan)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment plans: %w", err)
	}
	return plans, nil
}

func (r *planRepository) SetActiveTx(ctx context.Context, querier domain.Querier, id string, active bool) error {
	res, err := querier.ExecContext(ctx, `UPDATE payment_plans SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		if database.IsNoRows(err) {
			return fmt.Errorf("payment plan %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to update payment plan %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for plan update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payment plan %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*domain.PaymentPlan, error) {
	plan := &domain.PaymentPlan{}
	var percentages []string
	err := row.Scan(
		&plan.ID,
		&plan.Name,
		&plan.Description,
		&plan.NumberOfInstallments,
		pq.Array(&percentages),
		&plan.IsActive,
		&plan.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	plan.Percentages = make([]decimal.Decimal, len(percentages))
	for i, s := range percentages {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("malformed percentage %q in plan %s: %w", s, plan.ID, err)
		}
		plan.Percentages[i] = d
	}
	return plan, nil
}
