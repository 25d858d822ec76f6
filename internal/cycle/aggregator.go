package cycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fechamento/internal/model"
	"fechamento/internal/service"
	"fechamento/internal/stage"
)

// aggregator funnels concurrently completing client outcomes into the
// cycle record under a single mutex, so no increment is ever lost, and
// persists a snapshot after each client for live status queries.
type aggregator struct {
	storage service.Storage
	cycle   *model.Cycle
	mu      sync.Mutex
}

func newAggregator(storage service.Storage, cycle *model.Cycle) *aggregator {
	return &aggregator{storage: storage, cycle: cycle}
}

func (a *aggregator) recordClient(ctx context.Context, outcome stage.ClientOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if outcome.Failed {
		a.cycle.ClientsFailed++
	} else {
		a.cycle.ClientsProcessed++
	}
	a.cycle.TransactionsCaptured += outcome.Captured
	a.cycle.TransactionsClassified += outcome.Classified
	a.cycle.TransactionsSynced += outcome.Synced
	a.cycle.TransactionsInReview += outcome.InReview
	a.cycle.Errors = append(a.cycle.Errors, outcome.Errors...)

	a.persistLocked(ctx)
}

// recordSkipped marks a client the watchdog kept from starting.
func (a *aggregator) recordSkipped(ctx context.Context, clientID string, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cycle.ClientsFailed++
	a.cycle.Errors = append(a.cycle.Errors, model.CycleError{
		ClientID:  clientID,
		Stage:     model.StageCapture,
		Message:   "not started: " + cause.Error(),
		Timestamp: time.Now().UTC(),
	})

	a.persistLocked(ctx)
}

func (a *aggregator) persistLocked(ctx context.Context) {
	if err := a.storage.SaveCycle(ctx, a.cycle); err != nil {
		slog.Warn("failed to persist cycle snapshot",
			"cycle_id", a.cycle.ID,
			"error", err)
	}
}
