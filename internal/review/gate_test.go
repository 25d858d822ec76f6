package review

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fechamento/internal/common"
	"fechamento/internal/model"
	"fechamento/internal/queue"
	"fechamento/internal/service"
	"fechamento/internal/testutil"
)

const testCycleID = "cycle-2026-03-15"

type recordBroker struct {
	published map[string][][]byte
	mu        sync.Mutex
}

func newRecordBroker() *recordBroker {
	return &recordBroker{published: make(map[string][][]byte)}
}

func (b *recordBroker) Publish(_ context.Context, queueName string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[queueName] = append(b.published[queueName], payload)
	return nil
}

func (b *recordBroker) RegisterHandler(_ string, _ service.Handler) error { return nil }

func (b *recordBroker) syncMessages(t *testing.T) []queue.SyncMessage {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var msgs []queue.SyncMessage
	for _, payload := range b.published[queue.QueueSync] {
		msg, err := queue.Decode[queue.SyncMessage](payload)
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	return msgs
}

type recordFeedback struct {
	got []service.CategoryFeedback
	mu  sync.Mutex
}

func (f *recordFeedback) CategoryFeedback(_ context.Context, fb service.CategoryFeedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, fb)
	return nil
}

type recordNotifier struct {
	reviewRequests int
	cyclesFinished int
	mu             sync.Mutex
}

func (n *recordNotifier) CycleFinished(_ context.Context, _ *model.Cycle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cyclesFinished++
	return nil
}

func (n *recordNotifier) ReviewRequested(_ context.Context, _ model.Client, _ model.Transaction, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviewRequests++
	return nil
}

type gateFixture struct {
	db       *testutil.TestDB
	broker   *recordBroker
	feedback *recordFeedback
	notifier *recordNotifier
	gate     *Gate
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	broker := newRecordBroker()
	feedback := &recordFeedback{}
	notifier := &recordNotifier{}
	return &gateFixture{
		db:       db,
		broker:   broker,
		feedback: feedback,
		notifier: notifier,
		gate:     NewGate(db.Storage, broker, feedback, notifier),
	}
}

func reviewMsg(txnID, tipo string) queue.ReviewMessage {
	return queue.ReviewMessage{
		Envelope:      queue.NewEnvelope(testCycleID, "client-a"),
		TransactionID: txnID,
		Tipo:          tipo,
		Motivo:        "valor acima do limite",
	}
}

func TestHandleReviewCreatesAuthorizationOnce(t *testing.T) {
	f := newGateFixture(t)
	f.db.SeedClient("client-a")
	txn := f.db.SeedTransaction("client-a", model.StatusInReview, "15000.00")

	msg := reviewMsg(txn.ID, queue.ReviewAuthorization)
	require.NoError(t, f.gate.HandleReview(context.Background(), msg))

	// Redelivered message finds the pending record and creates nothing.
	require.NoError(t, f.gate.HandleReview(context.Background(), msg))

	pending, err := f.db.Storage.ListPendingAuthorizations(context.Background(), "client-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, txn.ID, pending[0].TransactionID)
	assert.True(t, pending[0].Amount.Equal(txn.Amount))
	assert.Equal(t, 2, f.notifier.reviewRequests)
}

func TestHandleReviewCreatesDoubtWithSuggestion(t *testing.T) {
	f := newGateFixture(t)
	f.db.SeedClient("client-a")
	txn := f.db.SeedTransaction("client-a", model.StatusInReview, "75.00")

	msg := reviewMsg(txn.ID, queue.ReviewClassification)
	msg.CategoriaSugerida = "Diversos"
	msg.CategoriaSugeridaID = "cat-misc"
	msg.Confianca = 0.41
	require.NoError(t, f.gate.HandleReview(context.Background(), msg))

	pending, err := f.db.Storage.ListPendingDoubts(context.Background(), "client-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].SuggestedCategory)
	assert.Equal(t, "Diversos", pending[0].SuggestedCategory.Name)
	assert.InDelta(t, 0.41, pending[0].SuggestedCategory.Confidence, 1e-9)
}

func TestHandleReviewUnknownTransaction(t *testing.T) {
	f := newGateFixture(t)

	err := f.gate.HandleReview(context.Background(), reviewMsg("ghost", queue.ReviewAuthorization))
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestApproveAuthorizationEmitsExactlyOneSync(t *testing.T) {
	f := newGateFixture(t)
	f.db.SeedClient("client-a")
	txn := f.db.SeedTransaction("client-a", model.StatusInReview, "15000.00")
	require.NoError(t, f.gate.HandleReview(context.Background(), reviewMsg(txn.ID, queue.ReviewAuthorization)))

	pending, err := f.db.Storage.ListPendingAuthorizations(context.Background(), "client-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	authID := pending[0].ID

	require.NoError(t, f.gate.ApproveAuthorization(context.Background(), authID, "maria"))

	stored, err := f.db.Storage.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSyncPending, stored.Status)

	auth, err := f.db.Storage.GetAuthorization(context.Background(), authID)
	require.NoError(t, err)
	assert.Equal(t, model.AuthorizationApproved, auth.Status)
	assert.Equal(t, "maria", auth.ResolvedBy)
	require.NotNil(t, auth.ResolvedAt)

	msgs := f.broker.syncMessages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, txn.ID, msgs[0].TransactionID)
	assert.Equal(t, testCycleID, msgs[0].CycleID, "sync resumes under the originating cycle")

	// A repeated approval is rejected and emits nothing further.
	err = f.gate.ApproveAuthorization(context.Background(), authID, "maria")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
	assert.Len(t, f.broker.syncMessages(t), 1)
}

func TestRejectAuthorizationEmitsNothing(t *testing.T) {
	f := newGateFixture(t)
	f.db.SeedClient("client-a")
	txn := f.db.SeedTransaction("client-a", model.StatusInReview, "15000.00")
	require.NoError(t, f.gate.HandleReview(context.Background(), reviewMsg(txn.ID, queue.ReviewAuthorization)))

	pending, err := f.db.Storage.ListPendingAuthorizations(context.Background(), "client-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, f.gate.RejectAuthorization(context.Background(), pending[0].ID, "maria"))

	stored, err := f.db.Storage.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, stored.Status)
	assert.True(t, stored.Status.Terminal())
	assert.Empty(t, f.broker.syncMessages(t))
}

func TestResolveDoubtAppliesCategoryAndFeedback(t *testing.T) {
	f := newGateFixture(t)
	f.db.SeedClient("client-a")
	txn := f.db.SeedTransaction("client-a", model.StatusInReview, "75.00")

	msg := reviewMsg(txn.ID, queue.ReviewClassification)
	msg.CategoriaSugerida = "Diversos"
	msg.CategoriaSugeridaID = "cat-misc"
	require.NoError(t, f.gate.HandleReview(context.Background(), msg))

	pending, err := f.db.Storage.ListPendingDoubts(context.Background(), "client-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	chosen := model.CategoryAssignment{ID: "cat-food", Name: "Alimentacao", Confidence: 0.41}
	require.NoError(t, f.gate.ResolveDoubt(context.Background(), pending[0].ID, chosen))

	stored, err := f.db.Storage.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSyncPending, stored.Status)
	require.NotNil(t, stored.Category)
	assert.Equal(t, "cat-food", stored.Category.ID)
	assert.InDelta(t, 1.0, stored.Category.Confidence, 1e-9, "human override carries full confidence")

	doubt, err := f.db.Storage.GetDoubt(context.Background(), pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.DoubtResolved, doubt.Status)

	require.Len(t, f.feedback.got, 1)
	assert.Equal(t, txn.ID, f.feedback.got[0].TransactionID)
	assert.Equal(t, "cat-food", f.feedback.got[0].CategoryID)

	msgs := f.broker.syncMessages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, testCycleID, msgs[0].CycleID, "sync resumes under the originating cycle")

	// Resolving again is rejected.
	err = f.gate.ResolveDoubt(context.Background(), pending[0].ID, chosen)
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestSkipDoubtLeavesEverythingUnchanged(t *testing.T) {
	f := newGateFixture(t)
	f.db.SeedClient("client-a")
	txn := f.db.SeedTransaction("client-a", model.StatusInReview, "75.00")
	require.NoError(t, f.gate.HandleReview(context.Background(), reviewMsg(txn.ID, queue.ReviewClassification)))

	pending, err := f.db.Storage.ListPendingDoubts(context.Background(), "client-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, f.gate.SkipDoubt(context.Background(), pending[0].ID))

	stored, err := f.db.Storage.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInReview, stored.Status)

	stillPending, err := f.db.Storage.ListPendingDoubts(context.Background(), "client-a")
	require.NoError(t, err)
	assert.Len(t, stillPending, 1)
	assert.Empty(t, f.broker.syncMessages(t))
	assert.Empty(t, f.feedback.got)
}

func TestApproveRequiresInReviewTransaction(t *testing.T) {
	f := newGateFixture(t)
	f.db.SeedClient("client-a")
	txn := f.db.SeedTransaction("client-a", model.StatusInReview, "15000.00")
	require.NoError(t, f.gate.HandleReview(context.Background(), reviewMsg(txn.ID, queue.ReviewAuthorization)))

	pending, err := f.db.Storage.ListPendingAuthorizations(context.Background(), "client-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// The transaction moved on out-of-band.
	require.NoError(t, f.db.Storage.UpdateTransactionStatus(context.Background(), txn.ID, model.StatusSynced))

	err = f.gate.ApproveAuthorization(context.Background(), pending[0].ID, "maria")
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}
