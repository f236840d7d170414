package domain

import "time"

type InboxMessageStatus string

const (
	InboxStatusProcessed InboxMessageStatus = "PROCESSED"
	InboxStatusFailed    InboxMessageStatus = "FAILED"
)

// InboxMessage records an inbound message (gateway notification or fulfilment event) so that
// replays are detected.
type InboxMessage struct {
	ID          string
	Source      string
	Payload     []byte
	Status      InboxMessageStatus
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}
