// Package reconcile decides the idempotent action for pushing one
// transaction to a destination system: update when an external id is
// already recorded, otherwise probe the destination for a matching
// record before creating a new one. The probe is what keeps redelivered
// sync messages from creating duplicate remote records.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fechamento/internal/common"
	"fechamento/internal/model"
	"fechamento/internal/service"
)

// Action is the decision taken for one push.
type Action string

// Reconciliation actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Reconciler pushes transactions to destinations through the retry
// executor and persists adopted external ids back onto the transaction.
type Reconciler struct {
	storage     service.Storage
	retry       service.RetryOptions
	matchWindow time.Duration
}

// New creates a reconciler. matchWindow is the half-width of the date
// window used when probing the destination for an existing record.
func New(storage service.Storage, retry service.RetryOptions, matchWindow time.Duration) *Reconciler {
	if matchWindow <= 0 {
		matchWindow = 3 * 24 * time.Hour
	}
	return &Reconciler{
		storage:     storage,
		retry:       retry,
		matchWindow: matchWindow,
	}
}

type probeResult struct {
	externalID string
	found      bool
}

// Push performs the correct idempotent action for txn against dest. On
// failure the transaction's status is left untouched so a later cycle or
// manual retry can resume. The returned action is what was attempted.
func (r *Reconciler) Push(ctx context.Context, dest service.Destination, txn *model.Transaction, rec service.SyncRecord) (Action, error) {
	if externalID, ok := txn.ExternalRef(dest.Kind()); ok {
		err := common.Retry(ctx, func() error {
			return dest.Update(ctx, txn.ClientID, externalID, rec)
		}, r.retry)
		if err != nil {
			return ActionUpdate, fmt.Errorf("update %s on %s: %w", txn.ID, dest.Kind(), err)
		}
		return ActionUpdate, nil
	}

	// A create-then-persist sequence can be interrupted after the remote
	// create succeeds but before the local write-back. The existence
	// probe adopts that orphaned record instead of duplicating it.
	probe := service.ExistingQuery{
		Description: rec.Description,
		Amount:      rec.Amount,
		DateFrom:    rec.DueDate.Add(-r.matchWindow),
		DateTo:      rec.DueDate.Add(r.matchWindow),
	}
	existing, err := common.RetryValue(ctx, func() (probeResult, error) {
		id, found, probeErr := dest.FindExisting(ctx, txn.ClientID, probe)
		return probeResult{externalID: id, found: found}, probeErr
	}, r.retry)
	if err != nil {
		return ActionCreate, fmt.Errorf("probe %s on %s: %w", txn.ID, dest.Kind(), err)
	}

	if existing.found {
		if err := r.adoptExternalID(ctx, dest.Kind(), txn, existing.externalID); err != nil {
			return ActionSkip, err
		}
		slog.Info("adopted existing remote record",
			"transaction_id", txn.ID,
			"destination", dest.Kind(),
			"external_id", existing.externalID)
		return ActionSkip, nil
	}

	externalID, err := common.RetryValue(ctx, func() (string, error) {
		return dest.Create(ctx, txn.ClientID, rec)
	}, r.retry)
	if err != nil {
		return ActionCreate, fmt.Errorf("create %s on %s: %w", txn.ID, dest.Kind(), err)
	}

	if err := r.adoptExternalID(ctx, dest.Kind(), txn, externalID); err != nil {
		return ActionCreate, err
	}
	return ActionCreate, nil
}

func (r *Reconciler) adoptExternalID(ctx context.Context, destination string, txn *model.Transaction, externalID string) error {
	if err := txn.SetExternalRef(destination, externalID); err != nil {
		return common.NewValidationError("conflicting external id", err)
	}
	if err := r.storage.SaveTransaction(ctx, txn); err != nil {
		return fmt.Errorf("persist external id for %s: %w", txn.ID, err)
	}
	return nil
}
