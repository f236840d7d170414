package natsbus

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap/zaptest"

	"orderpay/internal/domain"
)

type fakeConn struct {
	published  []*nats.Msg
	flushes    int
	drained    bool
	publishErr error
	flushErr   error
}

func (c *fakeConn) PublishMsg(m *nats.Msg) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, m)
	return nil
}

func (c *fakeConn) FlushWithContext(context.Context) error {
	c.flushes++
	return c.flushErr
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func testMessage() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:          "msg-1",
		AggregateID: "order-1",
		EventKind:   "payment_received",
		Payload:     []byte(`{"order_id":"order-1"}`),
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("orderpay.notifications", "payment_received"); got != "orderpay.notifications.payment_received" {
		t.Fatalf("Subject = %q", got)
	}
}

func TestPublish(t *testing.T) {
	c := &fakeConn{}
	p := newPublisher(c, "orderpay.notifications", zaptest.NewLogger(t))

	if err := p.Publish(context.Background(), testMessage()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(c.published) != 1 || c.flushes != 1 {
		t.Fatalf("published %d messages with %d flushes", len(c.published), c.flushes)
	}
	m := c.published[0]
	if m.Subject != "orderpay.notifications.payment_received" {
		t.Errorf("subject = %q", m.Subject)
	}
	if string(m.Data) != `{"order_id":"order-1"}` {
		t.Errorf("data = %s", m.Data)
	}
	if got := m.Header.Get(nats.MsgIdHdr); got != "msg-1" {
		t.Errorf("%s = %q, want msg-1", nats.MsgIdHdr, got)
	}
	if got := m.Header.Get("Order-Id"); got != "order-1" {
		t.Errorf("Order-Id = %q, want order-1", got)
	}
}

func TestPublish_Errors(t *testing.T) {
	brokerDown := errors.New("nats: connection closed")
	tests := []struct {
		name      string
		conn      *fakeConn
		wantText  string
		wantFlush int
	}{
		{name: "publish fails", conn: &fakeConn{publishErr: brokerDown}, wantText: "failed to publish orderpay.notifications.payment_received", wantFlush: 0},
		{name: "flush fails", conn: &fakeConn{flushErr: brokerDown}, wantText: "failed to flush NATS connection", wantFlush: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPublisher(tt.conn, "orderpay.notifications", zaptest.NewLogger(t))
			err := p.Publish(context.Background(), testMessage())
			if !errors.Is(err, brokerDown) {
				t.Fatalf("expected wrapped broker error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error %q does not mention %q", err, tt.wantText)
			}
			if tt.conn.flushes != tt.wantFlush {
				t.Errorf("flushes = %d, want %d", tt.conn.flushes, tt.wantFlush)
			}
		})
	}
}

func TestClose_Drains(t *testing.T) {
	c := &fakeConn{}
	if err := newPublisher(c, "orderpay.notifications", zaptest.NewLogger(t)).Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.drained {
		t.Error("connection was not drained")
	}
}
