package stage

import (
	"context"
	"time"

	"fechamento/internal/model"
	"fechamento/internal/parallel"
	"fechamento/internal/queue"
	"fechamento/internal/service"
)

// ClientOutcome aggregates what one client's stage sequence produced
// during a cycle run. A client is failed when its sequence could not run
// at all (capture failure or cancellation); individual transaction
// errors are recorded without failing the client.
type ClientOutcome struct {
	ClientID   string
	Errors     []model.CycleError
	Captured   int
	Classified int
	Synced     int
	InReview   int
	Failed     bool
}

func (o *ClientOutcome) recordError(stage model.Stage, err error) {
	o.Errors = append(o.Errors, model.CycleError{
		ClientID:  o.ClientID,
		Stage:     stage,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

type txnOutcome struct {
	errs       []model.CycleError
	classified bool
	inReview   bool
	synced     bool
}

// RunClient drives the full stage sequence for one client within a
// cycle: capture, then classify and sync (or review) per transaction.
// Stages for one transaction run strictly sequentially; independent
// transactions fan out in windowed batches.
func (r *Router) RunClient(ctx context.Context, cycleID string, client model.Client) ClientOutcome {
	out := ClientOutcome{ClientID: client.ID}

	captureMsg := queue.CaptureMessage{
		Envelope: queue.NewEnvelope(cycleID, client.ID),
		Source:   client.Source,
	}
	captured, txns, err := r.Capture(ctx, captureMsg)
	if err != nil {
		out.recordError(model.StageCapture, err)
		out.Failed = true
		return out
	}
	out.Captured = captured

	results := parallel.RunWindowed(ctx, txns, r.cfg.TransactionConcurrency,
		func(ctx context.Context, txn model.Transaction) (txnOutcome, error) {
			return r.runTransaction(ctx, cycleID, client, txn), nil
		})

	for _, res := range results {
		if res.Err != nil {
			// Only cancellation reaches here; the per-transaction
			// function captures its own failures.
			out.recordError(model.StageClassify, res.Err)
			out.Failed = true
			continue
		}
		t := res.Value
		if t.classified {
			out.Classified++
		}
		if t.inReview {
			out.InReview++
		}
		if t.synced {
			out.Synced++
		}
		out.Errors = append(out.Errors, t.errs...)
	}

	r.syncPending(ctx, cycleID, client, &out)

	if ctx.Err() != nil {
		out.Failed = true
	}
	return out
}

// syncPending picks up transactions parked at sync_pending by earlier
// runs or by review resolutions whose emitted sync message was lost. A
// lost message is therefore never permanent; the next cycle resumes it.
func (r *Router) syncPending(ctx context.Context, cycleID string, client model.Client, out *ClientOutcome) {
	if ctx.Err() != nil {
		return
	}

	pending, err := r.storage.GetTransactions(ctx, service.TransactionFilter{
		ClientID: client.ID,
		Status:   model.StatusSyncPending,
	})
	if err != nil {
		out.recordError(model.StageSync, err)
		return
	}

	for _, txn := range pending {
		if ctx.Err() != nil {
			return
		}
		_, synced, err := r.Sync(ctx, queue.NewSyncMessage(cycleID, txn, client.Destination))
		if err != nil {
			out.recordError(model.StageSync, err)
			continue
		}
		if synced {
			out.Synced++
		}
	}
}

func (r *Router) runTransaction(ctx context.Context, cycleID string, client model.Client, txn model.Transaction) txnOutcome {
	var out txnOutcome

	classifyMsg := queue.ClassifyMessage{
		Envelope:      queue.NewEnvelope(cycleID, client.ID),
		TransactionID: txn.ID,
		Descricao:     txn.Description,
		Valor:         txn.Amount,
		Tipo:          string(txn.Type),
		Contraparte:   txn.Counterparty,
	}
	decision, err := r.Classify(ctx, classifyMsg)
	if err != nil {
		out.errs = append(out.errs, model.CycleError{
			ClientID:  client.ID,
			Stage:     model.StageClassify,
			Message:   err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return out
	}
	out.classified = decision.Classified

	switch {
	case decision.Review != nil:
		encoded, encErr := queue.Encode(decision.Review)
		if encErr == nil {
			encErr = r.broker.Publish(ctx, queue.QueueReview, encoded)
		}
		if encErr != nil {
			out.errs = append(out.errs, model.CycleError{
				ClientID:  client.ID,
				Stage:     model.StageReview,
				Message:   encErr.Error(),
				Timestamp: time.Now().UTC(),
			})
			return out
		}
		out.inReview = true

	case decision.Next != nil:
		_, synced, syncErr := r.Sync(ctx, *decision.Next)
		if syncErr != nil {
			out.errs = append(out.errs, model.CycleError{
				ClientID:  client.ID,
				Stage:     model.StageSync,
				Message:   syncErr.Error(),
				Timestamp: time.Now().UTC(),
			})
			return out
		}
		out.synced = synced
	}

	return out
}
