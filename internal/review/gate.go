// Package review manages the human-in-the-loop interrupts: pending
// authorizations for high-stakes transactions and enrichment doubts for
// ambiguous classifications. Resolving either resumes the paused
// transaction's progression through the pipeline.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fechamento/internal/common"
	"fechamento/internal/model"
	"fechamento/internal/queue"
	"fechamento/internal/service"
)

// Gate consumes review messages and exposes the resolution operations.
type Gate struct {
	storage  service.Storage
	broker   service.Broker
	feedback service.FeedbackSink
	notifier service.Notifier
}

// NewGate creates a review gate.
func NewGate(storage service.Storage, broker service.Broker, feedback service.FeedbackSink, notifier service.Notifier) *Gate {
	return &Gate{
		storage:  storage,
		broker:   broker,
		feedback: feedback,
		notifier: notifier,
	}
}

// Register attaches the review consumer to the broker the gate
// publishes through.
func (g *Gate) Register() error {
	return g.broker.RegisterHandler(queue.QueueReview, func(ctx context.Context, payload []byte) error {
		msg, err := queue.Decode[queue.ReviewMessage](payload)
		if err != nil {
			return err
		}
		return g.HandleReview(ctx, msg)
	})
}

// HandleReview creates the pending review record for one routed
// transaction. Redelivered messages find the existing pending record and
// create nothing.
func (g *Gate) HandleReview(ctx context.Context, msg queue.ReviewMessage) error {
	txn, err := g.storage.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewValidationError("unknown transaction", err)
		}
		return fmt.Errorf("load transaction %s: %w", msg.TransactionID, err)
	}

	switch msg.Tipo {
	case queue.ReviewAuthorization:
		if err := g.createAuthorization(ctx, msg, txn); err != nil {
			return err
		}
	case queue.ReviewClassification:
		if err := g.createDoubt(ctx, msg, txn); err != nil {
			return err
		}
	default:
		return common.NewValidationError(fmt.Sprintf("unknown review kind %q", msg.Tipo), nil)
	}

	client, err := g.storage.GetClient(ctx, txn.ClientID)
	if err != nil {
		return fmt.Errorf("load client %s: %w", txn.ClientID, err)
	}
	if err := g.notifier.ReviewRequested(ctx, *client, *txn, msg.Motivo); err != nil {
		slog.Warn("review notification failed",
			"transaction_id", txn.ID,
			"error", err)
	}
	return nil
}

func (g *Gate) createAuthorization(ctx context.Context, msg queue.ReviewMessage, txn *model.Transaction) error {
	pending, err := g.storage.ListPendingAuthorizations(ctx, txn.ClientID)
	if err != nil {
		return fmt.Errorf("list pending authorizations: %w", err)
	}
	for _, auth := range pending {
		if auth.TransactionID == txn.ID {
			return nil
		}
	}

	auth := &model.PendingAuthorization{
		ID:            uuid.New().String(),
		TransactionID: txn.ID,
		ClientID:      txn.ClientID,
		CycleID:       msg.CycleID,
		Reason:        msg.Motivo,
		Amount:        txn.Amount,
		Status:        model.AuthorizationPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := g.storage.SaveAuthorization(ctx, auth); err != nil {
		return fmt.Errorf("save authorization for %s: %w", txn.ID, err)
	}
	return nil
}

func (g *Gate) createDoubt(ctx context.Context, msg queue.ReviewMessage, txn *model.Transaction) error {
	pending, err := g.storage.ListPendingDoubts(ctx, txn.ClientID)
	if err != nil {
		return fmt.Errorf("list pending doubts: %w", err)
	}
	for _, doubt := range pending {
		if doubt.TransactionID == txn.ID {
			return nil
		}
	}

	doubt := &model.EnrichmentDoubt{
		ID:            uuid.New().String(),
		TransactionID: txn.ID,
		ClientID:      txn.ClientID,
		CycleID:       msg.CycleID,
		Reason:        msg.Motivo,
		Status:        model.DoubtPending,
		CreatedAt:     time.Now().UTC(),
	}
	if msg.CategoriaSugerida != "" {
		doubt.SuggestedCategory = &model.CategoryAssignment{
			ID:         msg.CategoriaSugeridaID,
			Name:       msg.CategoriaSugerida,
			Confidence: msg.Confianca,
		}
	}
	if err := g.storage.SaveDoubt(ctx, doubt); err != nil {
		return fmt.Errorf("save doubt for %s: %w", txn.ID, err)
	}
	return nil
}

// ApproveAuthorization resolves a pending authorization, advances the
// transaction to sync_pending, and emits exactly one sync message. The
// pending check is what keeps a repeated approval from emitting twice.
func (g *Gate) ApproveAuthorization(ctx context.Context, id, resolvedBy string) error {
	auth, err := g.loadPendingAuthorization(ctx, id)
	if err != nil {
		return err
	}
	txn, err := g.reviewedTransaction(ctx, auth.TransactionID)
	if err != nil {
		return err
	}

	// in_review -> approved -> sync_pending; the intermediate state is
	// momentary, only the sync_pending write is persisted.
	txn.Status = model.StatusSyncPending
	if err := g.storage.SaveTransaction(ctx, txn); err != nil {
		return fmt.Errorf("advance %s to sync_pending: %w", txn.ID, err)
	}

	if err := g.resolveAuthorization(ctx, auth, model.AuthorizationApproved, resolvedBy); err != nil {
		return err
	}
	return g.emitSync(ctx, auth.CycleID, txn)
}

// RejectAuthorization resolves a pending authorization by terminally
// rejecting the transaction. No sync message is emitted.
func (g *Gate) RejectAuthorization(ctx context.Context, id, resolvedBy string) error {
	auth, err := g.loadPendingAuthorization(ctx, id)
	if err != nil {
		return err
	}
	txn, err := g.reviewedTransaction(ctx, auth.TransactionID)
	if err != nil {
		return err
	}

	txn.Status = model.StatusRejected
	if err := g.storage.SaveTransaction(ctx, txn); err != nil {
		return fmt.Errorf("reject %s: %w", txn.ID, err)
	}
	return g.resolveAuthorization(ctx, auth, model.AuthorizationRejected, resolvedBy)
}

// ResolveDoubt applies the reviewer's category, advances the transaction
// past classification, emits one sync message, and forwards the decision
// to the learning collaborator.
func (g *Gate) ResolveDoubt(ctx context.Context, id string, category model.CategoryAssignment) error {
	doubt, err := g.loadPendingDoubt(ctx, id)
	if err != nil {
		return err
	}
	txn, err := g.reviewedTransaction(ctx, doubt.TransactionID)
	if err != nil {
		return err
	}

	// Human override carries maximum confidence.
	category.Confidence = 1.0
	txn.Category = &category
	txn.Status = model.StatusSyncPending
	if err := g.storage.SaveTransaction(ctx, txn); err != nil {
		return fmt.Errorf("advance %s to sync_pending: %w", txn.ID, err)
	}

	now := time.Now().UTC()
	doubt.Status = model.DoubtResolved
	doubt.ResolvedAt = &now
	if err := g.storage.SaveDoubt(ctx, doubt); err != nil {
		return fmt.Errorf("resolve doubt %s: %w", doubt.ID, err)
	}

	fb := service.CategoryFeedback{
		TransactionID: txn.ID,
		Description:   txn.Description,
		CategoryID:    category.ID,
		CategoryName:  category.Name,
	}
	if err := g.feedback.CategoryFeedback(ctx, fb); err != nil {
		slog.Warn("category feedback failed",
			"transaction_id", txn.ID,
			"error", err)
	}

	return g.emitSync(ctx, doubt.CycleID, txn)
}

// SkipDoubt leaves the doubt pending and the transaction unchanged.
func (g *Gate) SkipDoubt(ctx context.Context, id string) error {
	doubt, err := g.loadPendingDoubt(ctx, id)
	if err != nil {
		return err
	}
	slog.Info("doubt skipped, left pending",
		"doubt_id", doubt.ID,
		"transaction_id", doubt.TransactionID)
	return nil
}

func (g *Gate) loadPendingAuthorization(ctx context.Context, id string) (*model.PendingAuthorization, error) {
	auth, err := g.storage.GetAuthorization(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewValidationError("unknown authorization", err)
		}
		return nil, fmt.Errorf("load authorization %s: %w", id, err)
	}
	if auth.Status != model.AuthorizationPending {
		return nil, common.NewValidationError(
			fmt.Sprintf("authorization %s already %s", id, auth.Status), nil)
	}
	return auth, nil
}

func (g *Gate) loadPendingDoubt(ctx context.Context, id string) (*model.EnrichmentDoubt, error) {
	doubt, err := g.storage.GetDoubt(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewValidationError("unknown doubt", err)
		}
		return nil, fmt.Errorf("load doubt %s: %w", id, err)
	}
	if doubt.Status != model.DoubtPending {
		return nil, common.NewValidationError(
			fmt.Sprintf("doubt %s already %s", id, doubt.Status), nil)
	}
	return doubt, nil
}

func (g *Gate) reviewedTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	txn, err := g.storage.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.NewValidationError("unknown transaction", err)
		}
		return nil, fmt.Errorf("load transaction %s: %w", id, err)
	}
	if txn.Status != model.StatusInReview {
		return nil, common.NewValidationError(
			fmt.Sprintf("transaction %s is %s, not in_review", txn.ID, txn.Status), nil)
	}
	return txn, nil
}

func (g *Gate) resolveAuthorization(ctx context.Context, auth *model.PendingAuthorization, status model.AuthorizationStatus, resolvedBy string) error {
	now := time.Now().UTC()
	auth.Status = status
	auth.ResolvedBy = resolvedBy
	auth.ResolvedAt = &now
	if err := g.storage.SaveAuthorization(ctx, auth); err != nil {
		return fmt.Errorf("resolve authorization %s: %w", auth.ID, err)
	}
	return nil
}

// emitSync publishes the resumed sync work under the cycle that routed
// the transaction to review. Records created before the cycle id was
// stored fall back to the current date.
func (g *Gate) emitSync(ctx context.Context, cycleID string, txn *model.Transaction) error {
	client, err := g.storage.GetClient(ctx, txn.ClientID)
	if err != nil {
		return fmt.Errorf("load client %s: %w", txn.ClientID, err)
	}
	if cycleID == "" {
		cycleID = model.CycleID(time.Now().UTC())
	}
	msg := queue.NewSyncMessage(cycleID, *txn, client.Destination)
	encoded, err := queue.Encode(msg)
	if err != nil {
		return err
	}
	if err := g.broker.Publish(ctx, queue.QueueSync, encoded); err != nil {
		return fmt.Errorf("emit sync for %s: %w", txn.ID, err)
	}
	return nil
}
