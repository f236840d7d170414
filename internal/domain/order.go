package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderTypeAsIs        OrderType = "as_is"
	OrderTypeCustomized  OrderType = "customized"
	OrderTypeFullyCustom OrderType = "fully_custom"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeAsIs, OrderTypeCustomized, OrderTypeFullyCustom:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type OrderPaymentStatus string

const (
	OrderPaymentPending   OrderPaymentStatus = "pending"
	OrderPaymentPartial   OrderPaymentStatus = "partial"
	OrderPaymentCompleted OrderPaymentStatus = "completed"
	OrderPaymentRejected  OrderPaymentStatus = "rejected"
)

type Order struct {
	ID                       string
	OrderNumber              string
	OrderType                OrderType
	CustomerUsername         string
	DesignID                 *string
	CustomizationNotes       string
	EventDate                *time.Time
	Status                   OrderStatus
	PaymentStatus            OrderPaymentStatus
	BasePrice                *decimal.Decimal
	TransportationCost       decimal.Decimal
	AdditionalRentalCost     decimal.Decimal
	TotalPrice               *decimal.Decimal
	InstallmentPlanID        *string
	CurrentInstallmentNumber *int
	CancellationReason       string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}
