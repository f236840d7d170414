package event

import "time"

type Kind string

const (
	KindOrderCreated         Kind = "order_created"
	KindOrderConfirmed       Kind = "order_confirmed"
	KindOrderCancelled       Kind = "order_cancelled"
	KindOrderCompleted       Kind = "order_completed"
	KindPaymentInitiated     Kind = "payment_initiated"
	KindSlipUploaded         Kind = "slip_uploaded"
	KindPaymentReceived      Kind = "payment_received"
	KindInstallmentConfirmed Kind = "installment_confirmed"
	KindInstallmentRejected  Kind = "installment_rejected"
)

// Notification is published to the notification collaborator after a committed transition.
type Notification struct {
	EventKind         Kind      `json:"event_kind"`
	OrderID           string    `json:"order_id"`
	OrderNumber       string    `json:"order_number"`
	CustomerUsername  string    `json:"customer_username"`
	OrderStatus       string    `json:"order_status"`
	PaymentStatus     string    `json:"payment_status"`
	PaymentID         string    `json:"payment_id,omitempty"`
	InstallmentID     string    `json:"installment_id,omitempty"`
	InstallmentNumber int       `json:"installment_number,omitempty"`
	Amount            string    `json:"amount,omitempty"`
	AmountMismatch    bool      `json:"amount_mismatch,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// FulfilmentEvent is consumed from the fulfilment topic when the ordered service was delivered.
type FulfilmentEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	DeliveredBy string    `json:"delivered_by"`
	Timestamp   time.Time `json:"timestamp"`
}
