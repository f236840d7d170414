package order_repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"orderpay/internal/domain"
	"orderpay/internal/infrastructure/database"
)

const orderColumns = `id, order_number, order_type, customer_username, design_id, customization_notes, event_date,
	status, payment_status, base_price, transportation_cost, additional_rental_cost, total_price,
	installment_plan_id, current_installment_number, cancellation_reason, created_at, updated_at`

type orderRepository struct{}

func NewOrderRepository() *orderRepository {
	return &orderRepository{}
}

func (r *orderRepository) CreateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error {
	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := querier.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.OrderType,
		order.CustomerUsername,
		order.DesignID,
		order.CustomizationNotes,
		order.EventDate,
		order.Status,
		order.PaymentStatus,
		nullDecimal(order.BasePrice),
		order.TransportationCost,
		order.AdditionalRentalCost,
		nullDecimal(order.TotalPrice),
		order.InstallmentPlanID,
		order.CurrentInstallmentNumber,
		order.CancellationReason,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "orders_order_number_key") {
			return fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, order.OrderNumber)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, querier, query, id)
}

func (r *orderRepository) GetByIDForUpdateTx(ctx context.Context, querier domain.Querier, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, querier, query, id)
}

func (r *orderRepository) getOne(ctx context.Context, querier domain.Querier, query, id string) (*domain.Order, error) {
	order, err := scanOrder(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order by id %s: %w", id, err)
	}
	return order, nil
}

// ListTx returns every order newest first, or only those of customerUsername when it is set.
func (r *orderRepository) ListTx(ctx context.Context, querier domain.Querier, customerUsername string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::TEXT = '' OR customer_username = $1)
		ORDER BY created_at DESC`
	rows, err := querier.QueryContext(ctx, query, customerUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, *order)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) UpdateTx(ctx context.Context, querier domain.Querier, order *domain.Order) error {
	query := `
		UPDATE orders SET
			status = $2, payment_status = $3, base_price = $4, transportation_cost = $5,
			additional_rental_cost = $6, total_price = $7, installment_plan_id = $8,
			current_installment_number = $9, cancellation_reason = $10, updated_at = $11
		WHERE id = $1
	`
	res, err := querier.ExecContext(ctx, query,
		order.ID,
		order.Status,
		order.PaymentStatus,
		nullDecimal(order.BasePrice),
		order.TransportationCost,
		order.AdditionalRentalCost,
		nullDecimal(order.TotalPrice),
		order.InstallmentPlanID,
		order.CurrentInstallmentNumber,
		order.CancellationReason,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for order update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("order %s: %w", order.ID, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	var (
		designID, planID      sql.NullString
		eventDate             sql.NullTime
		basePrice, totalPrice decimal.NullDecimal
		currentInstallment    sql.NullInt64
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.OrderType,
		&o.CustomerUsername,
		&designID,
		&o.CustomizationNotes,
		&eventDate,
		&o.Status,
		&o.PaymentStatus,
		&basePrice,
		&o.TransportationCost,
		&o.AdditionalRentalCost,
		&totalPrice,
		&planID,
		&currentInstallment,
		&o.CancellationReason,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if designID.Valid {
		o.DesignID = &designID.String
	}
	if planID.Valid {
		o.InstallmentPlanID = &planID.String
	}
	if eventDate.Valid {
		o.EventDate = &eventDate.Time
	}
	if basePrice.Valid {
		o.BasePrice = &basePrice.Decimal
	}
	if totalPrice.Valid {
		o.TotalPrice = &totalPrice.Decimal
	}
	if currentInstallment.Valid {
		n := int(currentInstallment.Int64)
		o.CurrentInstallmentNumber = &n
	}
	return o, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
