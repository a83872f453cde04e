// Package brokertest provides an in-memory fake of the AMQP channel
// interfaces internal/broker.Session exposes, so the RPC engine and auth
// middleware can be exercised without a live broker connection.
package brokertest

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/openmatchmaking/pathfinder/internal/broker"
)

// FakeAcknowledger satisfies amqp091.Acknowledger so a fake Delivery's Ack
// call doesn't dereference a nil channel.
type FakeAcknowledger struct{}

func (FakeAcknowledger) Ack(tag uint64, multiple bool) error               { return nil }
func (FakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error { return nil }
func (FakeAcknowledger) Reject(tag uint64, requeue bool) error             { return nil }

// NewDelivery builds a Delivery whose Ack/Nack/Reject are safe to call,
// carrying body as its payload.
func NewDelivery(body []byte) amqp.Delivery {
	return amqp.Delivery{Body: body, Acknowledger: FakeAcknowledger{}}
}

// FakeChannel implements both broker.PublishChannel and broker.ConsumeChannel
// over in-memory state, recording how many times each method was called and
// returning configurable errors so tests can drive every branch of the RPC
// engine's declare/bind/publish/consume/ack/unbind/delete cycle.
type FakeChannel struct {
	DeclareErr error
	BindErr    error
	UnbindErr  error
	DeleteErr  error
	PublishErr error
	ConsumeErr error

	// Deliveries is the channel Consume hands back; tests push a delivery
	// onto it (or close it, or leave it empty to exercise the timeout path).
	Deliveries chan amqp.Delivery

	mu           sync.Mutex
	DeclareCalls int
	BindCalls    int
	UnbindCalls  int
	DeleteCalls  int
	PublishCalls int
	ConsumeCalls int
}

// NewFakeChannel returns a FakeChannel with a ready-to-use Deliveries
// channel, buffered deep enough to queue up replies for a sequence of
// sub-RPCs (e.g. the JWT middleware's verify-then-profile chain) pushed
// before the call under test runs.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{Deliveries: make(chan amqp.Delivery, 8)}
}

// NewSession wraps a single FakeChannel as both halves of a broker.Session,
// and also returns the fake so the test can configure it and assert on its
// call counts.
func NewSession() (*broker.Session, *FakeChannel) {
	fc := NewFakeChannel()
	return &broker.Session{Publish: fc, Consume: fc}, fc
}

func (f *FakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	f.DeclareCalls++
	f.mu.Unlock()
	if f.DeclareErr != nil {
		return amqp.Queue{}, f.DeclareErr
	}
	return amqp.Queue{Name: name}, nil
}

func (f *FakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	f.BindCalls++
	f.mu.Unlock()
	return f.BindErr
}

func (f *FakeChannel) QueueUnbind(name, key, exchange string, args amqp.Table) error {
	f.mu.Lock()
	f.UnbindCalls++
	f.mu.Unlock()
	return f.UnbindErr
}

func (f *FakeChannel) QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error) {
	f.mu.Lock()
	f.DeleteCalls++
	f.mu.Unlock()
	if f.DeleteErr != nil {
		return 0, f.DeleteErr
	}
	return 0, nil
}

func (f *FakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	f.ConsumeCalls++
	f.mu.Unlock()
	if f.ConsumeErr != nil {
		return nil, f.ConsumeErr
	}
	return f.Deliveries, nil
}

func (f *FakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	f.PublishCalls++
	f.mu.Unlock()
	return f.PublishErr
}

func (f *FakeChannel) Close() error { return nil }

// Calls returns a snapshot of every method's call count, in
// declare/bind/unbind/delete/publish/consume order, for assertions.
func (f *FakeChannel) Calls() (declare, bind, unbind, del, publish, consume int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DeclareCalls, f.BindCalls, f.UnbindCalls, f.DeleteCalls, f.PublishCalls, f.ConsumeCalls
}
