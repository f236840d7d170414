package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodPayHere      PaymentMethod = "payhere"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodPayHere || m == PaymentMethodBankTransfer
}

type PaymentType string

const (
	PaymentTypeFull        PaymentType = "full"
	PaymentTypeInstallment PaymentType = "installment"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPartial   PaymentStatus = "partial"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRejected  PaymentStatus = "rejected"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusRejected
}

// Payment is one payment attempt. Status and CurrentInstallment are derived from Installments.
type Payment struct {
	ID                 string
	OrderID            string
	PlanID             *string
	TotalAmount        decimal.Decimal
	PaymentMethod      PaymentMethod
	PaymentType        PaymentType
	Status             PaymentStatus
	CurrentInstallment int
	TotalInstallments  int
	Installments       []Installment
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pending"
	InstallmentConfirmed InstallmentStatus = "confirmed"
	InstallmentRejected  InstallmentStatus = "rejected"
)

func (s InstallmentStatus) Terminal() bool {
	return s == InstallmentConfirmed || s == InstallmentRejected
}

type Installment struct {
	ID                string
	PaymentID         string
	InstallmentNumber int
	Amount            decimal.Decimal
	Percentage        decimal.Decimal
	Status            InstallmentStatus
	PaymentMethod     PaymentMethod
	TransactionID     *string
	PaymentSlipURL    *string
	SubmittedAmount   *decimal.Decimal
	IsPartial         bool
	Notes             string
	VerifiedBy        *string
	ConfirmationDate  *time.Time
	RejectionReason   *string
	RejectedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
