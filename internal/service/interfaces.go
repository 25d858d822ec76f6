// Package service defines the contracts between the orchestration engine
// and its collaborators: the durable record store, the stage connectors,
// the message broker, and the notification and feedback sinks.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fechamento/internal/model"
)

// TransactionFilter narrows transaction queries.
type TransactionFilter struct {
	ClientID string
	Status   model.Status
	Limit    int
}

// Storage is the durable record store. It exclusively owns persisted
// state; the engine holds only transient aggregation state per run.
type Storage interface {
	// Client operations
	SaveClient(ctx context.Context, client *model.Client) error
	GetClient(ctx context.Context, id string) (*model.Client, error)
	ListClients(ctx context.Context) ([]model.Client, error)
	GetActiveClients(ctx context.Context) ([]model.Client, error)
	SetClientActive(ctx context.Context, id string, active bool) error

	// Transaction operations
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
	SaveTransactions(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionByHash(ctx context.Context, hash string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, to model.Status) error

	// Cycle operations
	SaveCycle(ctx context.Context, cycle *model.Cycle) error
	GetCycle(ctx context.Context, id, instanceID string) (*model.Cycle, error)
	GetLatestCycle(ctx context.Context, id string) (*model.Cycle, error)
	ListCycleInstances(ctx context.Context, id string) ([]model.Cycle, error)

	// Run-state operations
	SaveRunState(ctx context.Context, state *model.CycleRunState) error
	GetRunState(ctx context.Context, cycleID, instanceID string) (*model.CycleRunState, error)

	// Review operations
	SaveAuthorization(ctx context.Context, auth *model.PendingAuthorization) error
	GetAuthorization(ctx context.Context, id string) (*model.PendingAuthorization, error)
	ListPendingAuthorizations(ctx context.Context, clientID string) ([]model.PendingAuthorization, error)
	SaveDoubt(ctx context.Context, doubt *model.EnrichmentDoubt) error
	GetDoubt(ctx context.Context, id string) (*model.EnrichmentDoubt, error)
	ListPendingDoubts(ctx context.Context, clientID string) ([]model.EnrichmentDoubt, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// CaptureWindow bounds a capture request.
type CaptureWindow struct {
	StartDate    time.Time
	EndDate      time.Time
	ForceRefresh bool
}

// CaptureConnector pulls raw transactions for one client from an external
// financial system. Concrete ERP/bank/acquirer adapters live outside this
// repository.
type CaptureConnector interface {
	Capture(ctx context.Context, client model.Client, window CaptureWindow) ([]model.Transaction, error)
}

// Classifier scores a transaction with a category and a confidence. The
// categorization model itself is an external collaborator.
type Classifier interface {
	Classify(ctx context.Context, txn model.Transaction) (model.CategoryAssignment, error)
}

// SyncRecord is the payload pushed to a destination system.
type SyncRecord struct {
	DueDate      time.Time
	Description  string
	CategoryID   string
	Counterparty string
	Amount       decimal.Decimal
}

// ExistingQuery describes the match criteria used to probe a destination
// for an already-created record before creating a new one.
type ExistingQuery struct {
	DateFrom    time.Time
	DateTo      time.Time
	Description string
	Amount      decimal.Decimal
}

// Destination is the write side of one external ERP/system.
type Destination interface {
	Kind() string
	Create(ctx context.Context, clientID string, rec SyncRecord) (string, error)
	Update(ctx context.Context, clientID, externalID string, rec SyncRecord) error
	FindExisting(ctx context.Context, clientID string, q ExistingQuery) (string, bool, error)
}

// Handler consumes one delivery of a queue message. Returning an error
// makes the broker redeliver; handlers must therefore be idempotent.
type Handler func(ctx context.Context, payload []byte) error

// Broker is the at-least-once message substrate. One queue per stage.
type Broker interface {
	Publish(ctx context.Context, queue string, payload []byte) error
	RegisterHandler(queue string, handler Handler) error
}

// Notifier tells stakeholders about cycle completion and review items.
// The concrete email/chat gateway is an external collaborator.
type Notifier interface {
	CycleFinished(ctx context.Context, cycle *model.Cycle) error
	ReviewRequested(ctx context.Context, client model.Client, txn model.Transaction, reason string) error
}

// CategoryFeedback is forwarded to the model-improvement collaborator
// when a human resolves a classification doubt.
type CategoryFeedback struct {
	TransactionID string
	Description   string
	CategoryID    string
	CategoryName  string
}

// FeedbackSink receives human category decisions.
type FeedbackSink interface {
	CategoryFeedback(ctx context.Context, fb CategoryFeedback) error
}

// RetryOptions configures the fixed-delay retry policy. Total calls made
// for a failing operation are MaxAttempts + 1.
type RetryOptions struct {
	MaxAttempts int
	Delay       time.Duration
}
