package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fechamento/internal/common"
	"fechamento/internal/model"
	"fechamento/internal/queue"
	"fechamento/internal/service"
)

// ClassifyOutcome reports what the classify stage decided for one
// message. At most one of Next/Review is set; both nil means the
// delivery was a redelivery of already-processed work.
type ClassifyOutcome struct {
	Next       *queue.SyncMessage
	Review     *queue.ReviewMessage
	Classified bool
}

// Classify scores the message's transaction with the external
// classifier, stores the category, and routes the transaction: straight
// to sync when the result is unambiguous, or to the review gate when the
// value requires authorization, the confidence is below threshold, or a
// duplicate is suspected.
func (r *Router) Classify(ctx context.Context, msg queue.ClassifyMessage) (*ClassifyOutcome, error) {
	txn, err := r.storage.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewValidationError("unknown transaction", err)
		}
		return nil, fmt.Errorf("load transaction %s: %w", msg.TransactionID, err)
	}

	// Redelivered message for a transaction that already moved on.
	if txn.Status != model.StatusCaptured {
		return &ClassifyOutcome{}, nil
	}

	category, err := common.RetryValue(ctx, func() (model.CategoryAssignment, error) {
		return r.classifier.Classify(ctx, *txn)
	}, r.cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("classify transaction %s: %w", txn.ID, err)
	}

	duplicate, err := r.suspectedDuplicate(ctx, txn)
	if err != nil {
		return nil, err
	}

	txn.Category = &category
	txn.Status = model.StatusClassified
	if err := r.storage.SaveTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("save classification for %s: %w", txn.ID, err)
	}

	client, err := r.storage.GetClient(ctx, txn.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client %s: %w", txn.ClientID, err)
	}
	threshold := client.EffectiveAuthorizationThreshold(r.cfg.AuthorizationThreshold)

	var review *queue.ReviewMessage
	switch {
	case txn.Amount.Abs().GreaterThan(threshold):
		review = &queue.ReviewMessage{
			Envelope:      queue.NewEnvelope(msg.CycleID, txn.ClientID),
			TransactionID: txn.ID,
			Tipo:          queue.ReviewAuthorization,
			Motivo:        fmt.Sprintf("valor %s acima do limite %s", txn.Amount.Abs(), threshold),
		}
	case duplicate:
		review = r.classificationReview(msg.CycleID, txn, category, "possivel duplicidade")
	case category.Confidence < r.cfg.ConfidenceThreshold:
		review = r.classificationReview(msg.CycleID, txn, category,
			fmt.Sprintf("confianca %.2f abaixo do limite %.2f", category.Confidence, r.cfg.ConfidenceThreshold))
	}

	if review != nil {
		txn.Status = model.StatusInReview
		if err := r.storage.SaveTransaction(ctx, txn); err != nil {
			return nil, fmt.Errorf("hold %s for review: %w", txn.ID, err)
		}
		return &ClassifyOutcome{Review: review, Classified: true}, nil
	}

	txn.Status = model.StatusSyncPending
	if err := r.storage.SaveTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("queue %s for sync: %w", txn.ID, err)
	}
	next := queue.NewSyncMessage(msg.CycleID, *txn, client.Destination)
	return &ClassifyOutcome{Next: &next, Classified: true}, nil
}

func (r *Router) classificationReview(cycleID string, txn *model.Transaction, category model.CategoryAssignment, motivo string) *queue.ReviewMessage {
	return &queue.ReviewMessage{
		Envelope:            queue.NewEnvelope(cycleID, txn.ClientID),
		TransactionID:       txn.ID,
		Tipo:                queue.ReviewClassification,
		Motivo:              motivo,
		CategoriaSugerida:   category.Name,
		CategoriaSugeridaID: category.ID,
		Confianca:           category.Confidence,
	}
}

// duplicateWindow is how far apart two dates may lie for two movements
// to still count as the same suspected transaction.
const duplicateWindow = 3 * 24 * time.Hour

// suspectedDuplicate reports whether the client already holds another
// transaction with the same amount and counterparty on a nearby date.
// Exact re-captures are dropped by the hash index at insert time; this
// catches the same movement arriving again with a different description.
func (r *Router) suspectedDuplicate(ctx context.Context, txn *model.Transaction) (bool, error) {
	siblings, err := r.storage.GetTransactions(ctx, service.TransactionFilter{ClientID: txn.ClientID})
	if err != nil {
		return false, fmt.Errorf("duplicate probe for %s: %w", txn.ID, err)
	}
	for _, other := range siblings {
		if other.ID == txn.ID || other.Status == model.StatusRejected {
			continue
		}
		if !other.Amount.Equal(txn.Amount) || other.Counterparty != txn.Counterparty {
			continue
		}
		gap := txn.Date.Sub(other.Date)
		if gap < 0 {
			gap = -gap
		}
		if gap <= duplicateWindow {
			return true, nil
		}
	}
	return false, nil
}
