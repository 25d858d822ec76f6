package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"fechamento/internal/common"
	"fechamento/internal/service"
)

type delivery struct {
	payload  []byte
	attempts int
}

// MemoryBroker is a channel-backed at-least-once broker suitable for
// single-process deployments and tests. A handler error re-enqueues the
// message up to maxDeliveries attempts, after which the message is
// dropped with a log record. A production substrate (SQS, Pub/Sub,
// RabbitMQ) implements the same service.Broker contract.
type MemoryBroker struct {
	queues        map[string]chan delivery
	handlers      map[string]service.Handler
	closeCh       chan struct{}
	mu            sync.Mutex
	wg            sync.WaitGroup
	closeOnce     sync.Once
	bufferSize    int
	workers       int
	maxDeliveries int
	closed        bool
}

// NewMemoryBroker creates a broker. bufferSize bounds each queue before
// Publish blocks; workers is the consumer count per queue; maxDeliveries
// caps redelivery of a failing message.
func NewMemoryBroker(bufferSize, workers, maxDeliveries int) *MemoryBroker {
	if bufferSize < 1 {
		bufferSize = 64
	}
	if workers < 1 {
		workers = 1
	}
	if maxDeliveries < 1 {
		maxDeliveries = 3
	}
	return &MemoryBroker{
		queues:        make(map[string]chan delivery),
		handlers:      make(map[string]service.Handler),
		closeCh:       make(chan struct{}),
		bufferSize:    bufferSize,
		workers:       workers,
		maxDeliveries: maxDeliveries,
	}
}

func (b *MemoryBroker) queue(name string) chan delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan delivery, b.bufferSize)
		b.queues[name] = ch
	}
	return ch
}

// Publish enqueues one message.
func (b *MemoryBroker) Publish(ctx context.Context, queueName string, payload []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("broker is closed")
	}
	b.mu.Unlock()

	select {
	case b.queue(queueName) <- delivery{payload: payload, attempts: 0}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closeCh:
		return fmt.Errorf("broker is closed")
	}
}

// RegisterHandler attaches the consumer for a queue and starts its
// workers. A queue accepts exactly one handler.
func (b *MemoryBroker) RegisterHandler(queueName string, handler service.Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("broker is closed")
	}
	if _, exists := b.handlers[queueName]; exists {
		b.mu.Unlock()
		return fmt.Errorf("handler already registered for queue %s", queueName)
	}
	b.handlers[queueName] = handler
	b.mu.Unlock()

	ch := b.queue(queueName)
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(queueName, ch, handler)
	}
	return nil
}

func (b *MemoryBroker) worker(queueName string, ch chan delivery, handler service.Handler) {
	defer b.wg.Done()

	for {
		select {
		case <-b.closeCh:
			return
		case d := <-ch:
			b.process(queueName, ch, d, handler)
		}
	}
}

func (b *MemoryBroker) process(queueName string, ch chan delivery, d delivery, handler service.Handler) {
	d.attempts++
	err := handler(context.Background(), d.payload)
	if err == nil {
		return
	}

	// Malformed messages never succeed on redelivery.
	if common.IsValidation(err) {
		slog.Error("dropping invalid message",
			"queue", queueName,
			"error", err)
		return
	}

	if d.attempts >= b.maxDeliveries {
		slog.Error("message exhausted deliveries",
			"queue", queueName,
			"attempts", d.attempts,
			"error", err)
		return
	}

	slog.Warn("handler failed, redelivering",
		"queue", queueName,
		"attempt", d.attempts,
		"error", err)

	select {
	case ch <- d:
	case <-b.closeCh:
	}
}

// Close stops delivery and waits for in-flight handlers to drain.
func (b *MemoryBroker) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.closeCh)
	})
	b.wg.Wait()
}
