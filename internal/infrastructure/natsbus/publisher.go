package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"orderpay/internal/domain"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Publisher sends outbox notifications to "<subjectPrefix>.<event_kind>".
type Publisher struct {
	conn          conn
	subjectPrefix string
	logger        *zap.Logger
}

func Connect(url, subjectPrefix string, logger *zap.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("orderpay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("Disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return newPublisher(conn, subjectPrefix, logger), nil
}

func newPublisher(c conn, subjectPrefix string, logger *zap.Logger) *Publisher {
	return &Publisher{conn: c, subjectPrefix: subjectPrefix, logger: logger}
}

func Subject(prefix, kind string) string {
	return prefix + "." + kind
}

// Publish flushes after each message so a successful return means the server has the message.
func (p *Publisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	m := nats.NewMsg(Subject(p.subjectPrefix, msg.EventKind))
	m.Data = msg.Payload
	m.Header.Set(nats.MsgIdHdr, msg.ID)
	m.Header.Set("Order-Id", msg.AggregateID)

	if err := p.conn.PublishMsg(m); err != nil {
		return fmt.Errorf("failed to publish %s to NATS: %w", m.Subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	p.logger.Debug("Message published to NATS", zap.String("subject", m.Subject), zap.String("message_id", msg.ID))
	return nil
}

func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	p.logger.Info("NATS publisher closed.")
	return nil
}
