// Package stage implements the pipeline stages. Each stage consumes one
// message, performs its unit of work through a connector wrapped in the
// retry executor, and either advances the transaction and emits the next
// message, routes the case to the review gate, or reports a stage error
// without advancing status.
package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fechamento/internal/queue"
	"fechamento/internal/reconcile"
	"fechamento/internal/service"
)

// Config holds the stage thresholds and fan-out limits.
type Config struct {
	Retry                  service.RetryOptions
	CaptureLookback        time.Duration
	TransactionConcurrency int
	ConfidenceThreshold    float64
	AuthorizationThreshold decimal.Decimal
}

// DefaultConfig returns the stage defaults.
func DefaultConfig() Config {
	return Config{
		Retry:                  service.RetryOptions{MaxAttempts: 2, Delay: 500 * time.Millisecond},
		CaptureLookback:        24 * time.Hour,
		TransactionConcurrency: 8,
		ConfidenceThreshold:    0.85,
		AuthorizationThreshold: decimal.NewFromInt(10000),
	}
}

// Router wires the three stages to their connectors and to the broker.
// Connectors are constructed once and passed in; no hidden global state.
type Router struct {
	storage      service.Storage
	broker       service.Broker
	capture      service.CaptureConnector
	classifier   service.Classifier
	destinations map[string]service.Destination
	reconciler   *reconcile.Reconciler
	cfg          Config
}

// NewRouter creates a stage router.
func NewRouter(
	storage service.Storage,
	broker service.Broker,
	capture service.CaptureConnector,
	classifier service.Classifier,
	destinations map[string]service.Destination,
	reconciler *reconcile.Reconciler,
	cfg Config,
) *Router {
	if cfg.TransactionConcurrency < 1 {
		cfg.TransactionConcurrency = 1
	}
	return &Router{
		storage:      storage,
		broker:       broker,
		capture:      capture,
		classifier:   classifier,
		destinations: destinations,
		reconciler:   reconciler,
		cfg:          cfg,
	}
}

// Register attaches the stage consumers to the broker the router
// publishes through.
func (r *Router) Register() error {
	if err := r.broker.RegisterHandler(queue.QueueCapture, r.handleCapture); err != nil {
		return fmt.Errorf("register capture handler: %w", err)
	}
	if err := r.broker.RegisterHandler(queue.QueueClassify, r.handleClassify); err != nil {
		return fmt.Errorf("register classify handler: %w", err)
	}
	if err := r.broker.RegisterHandler(queue.QueueSync, r.handleSync); err != nil {
		return fmt.Errorf("register sync handler: %w", err)
	}
	return nil
}

func (r *Router) handleCapture(ctx context.Context, payload []byte) error {
	msg, err := queue.Decode[queue.CaptureMessage](payload)
	if err != nil {
		return err
	}
	_, txns, err := r.Capture(ctx, msg)
	if err != nil {
		return err
	}
	for _, txn := range txns {
		next := queue.ClassifyMessage{
			Envelope:      queue.NewEnvelope(msg.CycleID, msg.ClientID),
			TransactionID: txn.ID,
			Descricao:     txn.Description,
			Valor:         txn.Amount,
			Tipo:          string(txn.Type),
			Contraparte:   txn.Counterparty,
		}
		encoded, encErr := queue.Encode(next)
		if encErr != nil {
			return encErr
		}
		if pubErr := r.broker.Publish(ctx, queue.QueueClassify, encoded); pubErr != nil {
			return pubErr
		}
	}
	return nil
}

func (r *Router) handleClassify(ctx context.Context, payload []byte) error {
	msg, err := queue.Decode[queue.ClassifyMessage](payload)
	if err != nil {
		return err
	}
	outcome, err := r.Classify(ctx, msg)
	if err != nil {
		return err
	}
	switch {
	case outcome.Review != nil:
		encoded, encErr := queue.Encode(outcome.Review)
		if encErr != nil {
			return encErr
		}
		return r.broker.Publish(ctx, queue.QueueReview, encoded)
	case outcome.Next != nil:
		encoded, encErr := queue.Encode(outcome.Next)
		if encErr != nil {
			return encErr
		}
		return r.broker.Publish(ctx, queue.QueueSync, encoded)
	}
	return nil
}

func (r *Router) handleSync(ctx context.Context, payload []byte) error {
	msg, err := queue.Decode[queue.SyncMessage](payload)
	if err != nil {
		return err
	}
	_, _, err = r.Sync(ctx, msg)
	return err
}
