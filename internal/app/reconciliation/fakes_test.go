package reconciliation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderpay/internal/domain"
	"orderpay/internal/repository/inbox_repo"
	"orderpay/internal/repository/order_repo"
)

var errNoSQL = errors.New("fake querier does not run SQL")

// fakeQuerier marks whether a repository call happens inside a fake transaction.
type fakeQuerier struct {
	inTx bool
}

func (fakeQuerier) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNoSQL
}

func (fakeQuerier) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (fakeQuerier) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

// memStore is an in-memory database. A transaction holds mu for its whole lifetime, which stands in
// for the order row lock, and restores a snapshot when fn fails.
type memStore struct {
	mu          sync.Mutex
	lockTimeout time.Duration

	orders   map[string]domain.Order
	plans    map[string]domain.PaymentPlan
	payments map[string]domain.Payment
	created  []string
	outbox   []domain.OutboxMessage
	inbox    map[string]domain.InboxMessage

	failOutbox error
}

func newMemStore() *memStore {
	return &memStore{
		lockTimeout: time.Second,
		orders:      make(map[string]domain.Order),
		plans:       make(map[string]domain.PaymentPlan),
		payments:    make(map[string]domain.Payment),
		inbox:       make(map[string]domain.InboxMessage),
	}
}

type snapshot struct {
	orders   map[string]domain.Order
	payments map[string]domain.Payment
	created  []string
	outbox   []domain.OutboxMessage
	inbox    map[string]domain.InboxMessage
}

func (s *memStore) snapshot() snapshot {
	snap := snapshot{
		orders:   make(map[string]domain.Order, len(s.orders)),
		payments: make(map[string]domain.Payment, len(s.payments)),
		created:  append([]string(nil), s.created...),
		outbox:   append([]domain.OutboxMessage(nil), s.outbox...),
		inbox:    make(map[string]domain.InboxMessage, len(s.inbox)),
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = clonePayment(v)
	}
	for k, v := range s.inbox {
		snap.inbox[k] = v
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.orders = snap.orders
	s.payments = snap.payments
	s.created = snap.created
	s.outbox = snap.outbox
	s.inbox = snap.inbox
}

func clonePayment(p domain.Payment) domain.Payment {
	p.Installments = append([]domain.Installment(nil), p.Installments...)
	return p
}

// with runs fn under mu unless q belongs to a transaction that already holds it.
func (s *memStore) with(q domain.Querier, fn func() error) error {
	if fq, ok := q.(fakeQuerier); ok && fq.inTx {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *memStore) Querier() domain.Querier {
	return fakeQuerier{}
}

func (s *memStore) RunInTx(ctx context.Context, fn func(q domain.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runLocked(fn)
}

func (s *memStore) RunInLockedTx(ctx context.Context, fn func(q domain.Querier) error) error {
	deadline := time.Now().Add(s.lockTimeout)
	for !s.mu.TryLock() {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: lock wait exceeded %s", domain.ErrConcurrencyConflict, s.lockTimeout)
		}
		time.Sleep(time.Millisecond)
	}
	defer s.mu.Unlock()
	return s.runLocked(fn)
}

func (s *memStore) runLocked(fn func(q domain.Querier) error) error {
	snap := s.snapshot()
	if err := fn(fakeQuerier{inTx: true}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) outboxKinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, len(s.outbox))
	for i, m := range s.outbox {
		kinds[i] = m.EventKind
	}
	return kinds
}

func (s *memStore) lastOutbox() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbox[len(s.outbox)-1]
}

func (s *memStore) installment(id string) domain.Installment {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		for _, inst := range p.Installments {
			if inst.ID == id {
				return inst
			}
		}
	}
	panic("no installment " + id)
}

type fakeOrders struct{ s *memStore }

func (f fakeOrders) CreateTx(_ context.Context, q domain.Querier, order *domain.Order) error {
	return f.s.with(q, func() error {
		for _, o := range f.s.orders {
			if o.OrderNumber == order.OrderNumber {
				return fmt.Errorf("%w: %s", order_repo.ErrDuplicateOrderNumber, order.OrderNumber)
			}
		}
		f.s.orders[order.ID] = *order
		return nil
	})
}

func (f fakeOrders) get(q domain.Querier, id string) (*domain.Order, error) {
	var out *domain.Order
	err := f.s.with(q, func() error {
		o, ok := f.s.orders[id]
		if !ok {
			return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
		}
		out = &o
		return nil
	})
	return out, err
}

func (f fakeOrders) GetByIDTx(_ context.Context, q domain.Querier, id string) (*domain.Order, error) {
	return f.get(q, id)
}

func (f fakeOrders) GetByIDForUpdateTx(_ context.Context, q domain.Querier, id string) (*domain.Order, error) {
	return f.get(q, id)
}

func (f fakeOrders) ListTx(_ context.Context, q domain.Querier, customerUsername string) ([]domain.Order, error) {
	var out []domain.Order
	err := f.s.with(q, func() error {
		for _, o := range f.s.orders {
			if customerUsername == "" || o.CustomerUsername == customerUsername {
				out = append(out, o)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, err
}

func (f fakeOrders) UpdateTx(_ context.Context, q domain.Querier, order *domain.Order) error {
	return f.s.with(q, func() error {
		if _, ok := f.s.orders[order.ID]; !ok {
			return fmt.Errorf("order %s: %w", order.ID, domain.ErrNotFound)
		}
		f.s.orders[order.ID] = *order
		return nil
	})
}

type fakePlans struct{ s *memStore }

func (f fakePlans) CreateTx(_ context.Context, q domain.Querier, plan *domain.PaymentPlan) error {
	return f.s.with(q, func() error {
		f.s.plans[plan.ID] = *plan
		return nil
	})
}

func (f fakePlans) GetByIDTx(_ context.Context, q domain.Querier, id string) (*domain.PaymentPlan, error) {
	var out *domain.PaymentPlan
	err := f.s.with(q, func() error {
		p, ok := f.s.plans[id]
		if !ok {
			return fmt.Errorf("payment plan %s: %w", id, domain.ErrNotFound)
		}
		out = &p
		return nil
	})
	return out, err
}

func (f fakePlans) ListActiveTx(_ context.Context, q domain.Querier) ([]domain.PaymentPlan, error) {
	var out []domain.PaymentPlan
	err := f.s.with(q, func() error {
		for _, p := range f.s.plans {
			if p.IsActive {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (f fakePlans) SetActiveTx(_ context.Context, q domain.Querier, id string, active bool) error {
	return f.s.with(q, func() error {
		p, ok := f.s.plans[id]
		if !ok {
			return fmt.Errorf("payment plan %s: %w", id, domain.ErrNotFound)
		}
		p.IsActive = active
		f.s.plans[id] = p
		return nil
	})
}

type fakePayments struct{ s *memStore }

func (f fakePayments) CreateTx(_ context.Context, q domain.Querier, payment *domain.Payment) error {
	return f.s.with(q, func() error {
		f.s.payments[payment.ID] = clonePayment(*payment)
		f.s.created = append(f.s.created, payment.ID)
		return nil
	})
}

func (f fakePayments) ListByOrderTx(_ context.Context, q domain.Querier, orderID string) ([]domain.Payment, error) {
	var out []domain.Payment
	err := f.s.with(q, func() error {
		for _, id := range f.s.created {
			if p := f.s.payments[id]; p.OrderID == orderID {
				out = append(out, clonePayment(p))
			}
		}
		return nil
	})
	return out, err
}

func (f fakePayments) GetOrderIDByPaymentTx(_ context.Context, q domain.Querier, paymentID string) (string, error) {
	var orderID string
	err := f.s.with(q, func() error {
		p, ok := f.s.payments[paymentID]
		if !ok {
			return fmt.Errorf("payment %s: %w", paymentID, domain.ErrNotFound)
		}
		orderID = p.OrderID
		return nil
	})
	return orderID, err
}

func (f fakePayments) GetOrderIDByInstallmentTx(_ context.Context, q domain.Querier, installmentID string) (string, error) {
	var orderID string
	err := f.s.with(q, func() error {
		for _, p := range f.s.payments {
			for _, inst := range p.Installments {
				if inst.ID == installmentID {
					orderID = p.OrderID
					return nil
				}
			}
		}
		return fmt.Errorf("installment %s: %w", installmentID, domain.ErrNotFound)
	})
	return orderID, err
}

func (f fakePayments) UpdateTx(_ context.Context, q domain.Querier, payment *domain.Payment) error {
	return f.s.with(q, func() error {
		if _, ok := f.s.payments[payment.ID]; !ok {
			return fmt.Errorf("payment %s: %w", payment.ID, domain.ErrNotFound)
		}
		f.s.payments[payment.ID] = clonePayment(*payment)
		return nil
	})
}

type fakeOutbox struct{ s *memStore }

func (f fakeOutbox) CreateMessageTx(_ context.Context, q domain.Querier, msg *domain.OutboxMessage) error {
	return f.s.with(q, func() error {
		if f.s.failOutbox != nil {
			return f.s.failOutbox
		}
		f.s.outbox = append(f.s.outbox, *msg)
		return nil
	})
}

func (f fakeOutbox) GetPendingMessagesTx(_ context.Context, q domain.Querier, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	err := f.s.with(q, func() error {
		for _, m := range f.s.outbox {
			if m.Status == domain.OutboxStatusPending && len(out) < limit {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

func (f fakeOutbox) MarkSentTx(_ context.Context, q domain.Querier, id string) error {
	return f.s.with(q, func() error { return nil })
}

func (f fakeOutbox) RecordFailureTx(_ context.Context, q domain.Querier, id string, maxAttempts int) error {
	return f.s.with(q, func() error { return nil })
}

type fakeInbox struct{ s *memStore }

func (f fakeInbox) CreateMessageTx(_ context.Context, q domain.Querier, msg *domain.InboxMessage) error {
	return f.s.with(q, func() error {
		if _, ok := f.s.inbox[msg.ID]; ok {
			return fmt.Errorf("inbox message %s: %w", msg.ID, inbox_repo.ErrMessageAlreadyProcessed)
		}
		f.s.inbox[msg.ID] = *msg
		return nil
	})
}

type fakeCatalog map[string]decimal.Decimal

func (c fakeCatalog) BasePrice(_ context.Context, designID string) (decimal.Decimal, error) {
	price, ok := c[designID]
	if !ok {
		return decimal.Zero, fmt.Errorf("design %s: %w", designID, domain.ErrNotFound)
	}
	return price, nil
}

// stepClock advances one second per call so event ordering is deterministic.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixedNumbers struct {
	mu      sync.Mutex
	numbers []string
}

func (f *fixedNumbers) Next(time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.numbers) == 0 {
		return "", errors.New("out of order numbers")
	}
	n := f.numbers[0]
	f.numbers = f.numbers[1:]
	return n, nil
}
