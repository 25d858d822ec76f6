package stage

import (
	"context"
	"errors"
	"fmt"

	"fechamento/internal/common"
	"fechamento/internal/model"
	"fechamento/internal/queue"
	"fechamento/internal/reconcile"
	"fechamento/internal/service"
)

// Sync pushes the message's transaction to its destination through the
// reconciler. A transaction that is already synced is a redelivery
// no-op. On failure the status is left at sync_pending so a later cycle
// or manual retry resumes cleanly. The boolean reports whether the
// transaction reached synced during this call.
func (r *Router) Sync(ctx context.Context, msg queue.SyncMessage) (reconcile.Action, bool, error) {
	txn, err := r.storage.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", false, common.NewValidationError("unknown transaction", err)
		}
		return "", false, fmt.Errorf("load transaction %s: %w", msg.TransactionID, err)
	}

	if txn.Status == model.StatusSynced {
		return reconcile.ActionSkip, false, nil
	}
	if txn.Status != model.StatusSyncPending {
		return "", false, common.NewValidationError(
			fmt.Sprintf("transaction %s is %s, not sync_pending", txn.ID, txn.Status), nil)
	}

	dest, ok := r.destinations[msg.Destination]
	if !ok {
		return "", false, common.NewValidationError(
			fmt.Sprintf("no destination configured for %q", msg.Destination), nil)
	}

	rec := service.SyncRecord{
		Description:  msg.Descricao,
		Amount:       msg.Valor,
		DueDate:      msg.DataVencimento,
		CategoryID:   msg.CategoriaID,
		Counterparty: msg.Contraparte,
	}

	action, err := r.reconciler.Push(ctx, dest, txn, rec)
	if err != nil {
		return action, false, err
	}

	txn.Status = model.StatusSynced
	if err := r.storage.SaveTransaction(ctx, txn); err != nil {
		return action, false, fmt.Errorf("mark %s synced: %w", txn.ID, err)
	}
	return action, true, nil
}
