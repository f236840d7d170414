// Package plans is the payment plan catalog. Plans are validated once, at creation; afterwards only
// their active flag may change.
package plans

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderpay/internal/domain"
	"orderpay/internal/repository/plan_repo"
)

var (
	hundred      = decimal.NewFromInt(100)
	sumTolerance = decimal.RequireFromString("0.01")
)

// ValidatePlan checks a schedule: a name, at least one strictly positive percentage, a count
// matching the percentages and a sum of 100 within 0.01.
func ValidatePlan(plan *domain.PaymentPlan) error {
	if strings.TrimSpace(plan.Name) == "" {
		return fmt.Errorf("%w: plan name is required", domain.ErrValidation)
	}
	if len(plan.Percentages) == 0 {
		return fmt.Errorf("%w: plan needs at least one installment", domain.ErrValidation)
	}
	if plan.NumberOfInstallments != len(plan.Percentages) {
		return fmt.Errorf("%w: plan declares %d installments but has %d percentages",
			domain.ErrValidation, plan.NumberOfInstallments, len(plan.Percentages))
	}
	sum := decimal.Zero
	for i, p := range plan.Percentages {
		if !p.IsPositive() || p.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage %d must be in (0, 100], got %s", domain.ErrValidation, i+1, p)
		}
		if !p.Equal(p.Round(2)) {
			return fmt.Errorf("%w: percentage %d has more than two decimals: %s", domain.ErrValidation, i+1, p)
		}
		sum = sum.Add(p)
	}
	if sum.Sub(hundred).Abs().GreaterThan(sumTolerance) {
		return fmt.Errorf("%w: percentages sum to %s, want 100", domain.ErrValidation, sum)
	}
	return nil
}

type CreatePlanInput struct {
	Name        string
	Description string
	Percentages []decimal.Decimal
}

type Service struct {
	db     domain.Querier
	repo   plan_repo.PlanRepository
	newID  func() string
	now    func() time.Time
	logger *zap.Logger
}

func NewService(db domain.Querier, repo plan_repo.PlanRepository, newID func() string, logger *zap.Logger) *Service {
	return &Service{db: db, repo: repo, newID: newID, now: time.Now, logger: logger}
}

func (s *Service) ListActivePlans(ctx context.Context) ([]domain.PaymentPlan, error) {
	return s.repo.ListActiveTx(ctx, s.db)
}

func (s *Service) GetPlan(ctx context.Context, id string) (*domain.PaymentPlan, error) {
	return s.repo.GetByIDTx(ctx, s.db, id)
}

func (s *Service) CreatePlan(ctx context.Context, actor domain.Principal, in CreatePlanInput) (*domain.PaymentPlan, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can create payment plans", domain.ErrForbidden)
	}
	plan := &domain.PaymentPlan{
		ID:                   s.newID(),
		Name:                 strings.TrimSpace(in.Name),
		Description:          in.Description,
		NumberOfInstallments: len(in.Percentages),
		Percentages:          in.Percentages,
		IsActive:             true,
		CreatedAt:            s.now().UTC(),
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	if err := s.repo.CreateTx(ctx, s.db, plan); err != nil {
		return nil, err
	}
	s.logger.Info("Payment plan created",
		zap.String("plan_id", plan.ID),
		zap.String("name", plan.Name),
		zap.Int("installments", plan.NumberOfInstallments),
		zap.String("admin", actor.Username),
	)
	return plan, nil
}

// SetPlanActive toggles whether new attempts may use the plan. Existing payments are unaffected.
func (s *Service) SetPlanActive(ctx context.Context, actor domain.Principal, id string, active bool) (*domain.PaymentPlan, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can change payment plans", domain.ErrForbidden)
	}
	if err := s.repo.SetActiveTx(ctx, s.db, id, active); err != nil {
		return nil, err
	}
	s.logger.Info("Payment plan availability changed", zap.String("plan_id", id), zap.Bool("active", active))
	return s.repo.GetByIDTx(ctx, s.db, id)
}
