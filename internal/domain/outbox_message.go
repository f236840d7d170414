package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
	OutboxStatusFailed  OutboxMessageStatus = "FAILED"
)

// OutboxMessage is a notification written in the same transaction as the change it describes.
type OutboxMessage struct {
	ID          string
	AggregateID string
	EventKind   string
	Payload     []byte
	Status      OutboxMessageStatus
	Attempts    int
	CreatedAt   time.Time
	SentAt      *time.Time
}
