package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentPlan is an immutable installment schedule. Only IsActive may change after creation.
type PaymentPlan struct {
	ID                   string
	Name                 string
	Description          string
	NumberOfInstallments int
	Percentages          []decimal.Decimal
	IsActive             bool
	CreatedAt            time.Time
}
