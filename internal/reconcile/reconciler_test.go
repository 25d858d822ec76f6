package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fechamento/internal/model"
	"fechamento/internal/service"
	"fechamento/internal/testutil"
)

// mockDestination counts calls and scripts responses.
type mockDestination struct {
	createErr     error
	updateErr     error
	findErr       error
	kind          string
	existingID    string
	nextID        string
	createCalls   int
	updateCalls   int
	findCalls     int
	failuresLeft  int
	existingFound bool
}

func (m *mockDestination) Kind() string { return m.kind }

func (m *mockDestination) Create(_ context.Context, _ string, _ service.SyncRecord) (string, error) {
	m.createCalls++
	if m.failuresLeft > 0 {
		m.failuresLeft--
		return "", errors.New("destination unavailable")
	}
	if m.createErr != nil {
		return "", m.createErr
	}
	return m.nextID, nil
}

func (m *mockDestination) Update(_ context.Context, _, _ string, _ service.SyncRecord) error {
	m.updateCalls++
	return m.updateErr
}

func (m *mockDestination) FindExisting(_ context.Context, _ string, _ service.ExistingQuery) (string, bool, error) {
	m.findCalls++
	if m.findErr != nil {
		return "", false, m.findErr
	}
	return m.existingID, m.existingFound, nil
}

func retryOpts() service.RetryOptions {
	return service.RetryOptions{MaxAttempts: 2, Delay: time.Millisecond}
}

func syncRecordFor(txn model.Transaction) service.SyncRecord {
	return service.SyncRecord{
		Description:  txn.Description,
		Amount:       txn.Amount,
		DueDate:      txn.DueDate,
		Counterparty: txn.Counterparty,
	}
}

func TestPushCreatesAndPersistsExternalID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedClient("client-a")
	txn := db.SeedTransaction("client-a", model.StatusSyncPending, "100.00")

	dest := &mockDestination{kind: "erp-b", nextID: "ext-1"}
	rec := New(db.Storage, retryOpts(), 0)

	action, err := rec.Push(context.Background(), dest, &txn, syncRecordFor(txn))
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, action)
	assert.Equal(t, 1, dest.findCalls, "existence probe is mandatory before create")
	assert.Equal(t, 1, dest.createCalls)

	stored, err := db.Storage.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	id, ok := stored.ExternalRef("erp-b")
	require.True(t, ok)
	assert.Equal(t, "ext-1", id)
}

func TestPushUpdatesWhenExternalIDKnown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedClient("client-a")
	txn := db.SeedTransaction("client-a", model.StatusSyncPending, "100.00")
	require.NoError(t, txn.SetExternalRef("erp-b", "ext-1"))

	dest := &mockDestination{kind: "erp-b"}
	rec := New(db.Storage, retryOpts(), 0)

	action, err := rec.Push(context.Background(), dest, &txn, syncRecordFor(txn))
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, action)
	assert.Equal(t, 1, dest.updateCalls)
	assert.Zero(t, dest.findCalls, "known external id skips the probe")
	assert.Zero(t, dest.createCalls)
}

func TestPushAdoptsExistingRemoteRecord(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedClient("client-a")
	txn := db.SeedTransaction("client-a", model.StatusSyncPending, "100.00")

	dest := &mockDestination{kind: "erp-b", existingFound: true, existingID: "orphan-7"}
	rec := New(db.Storage, retryOpts(), 0)

	action, err := rec.Push(context.Background(), dest, &txn, syncRecordFor(txn))
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, action)
	assert.Zero(t, dest.createCalls, "adoption must not create a duplicate")

	stored, err := db.Storage.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	id, ok := stored.ExternalRef("erp-b")
	require.True(t, ok)
	assert.Equal(t, "orphan-7", id)
}

func TestPushTwiceCreatesAtMostOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedClient("client-a")
	txn := db.SeedTransaction("client-a", model.StatusSyncPending, "100.00")

	dest := &mockDestination{kind: "erp-b", nextID: "ext-1"}
	rec := New(db.Storage, retryOpts(), 0)

	_, err := rec.Push(context.Background(), dest, &txn, syncRecordFor(txn))
	require.NoError(t, err)

	// Redelivered sync for the same transaction: the recorded external
	// id turns the second push into an update.
	stored, err := db.Storage.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	action, err := rec.Push(context.Background(), dest, stored, syncRecordFor(*stored))
	require.NoError(t, err)

	assert.Equal(t, ActionUpdate, action)
	assert.Equal(t, 1, dest.createCalls)
}

func TestPushRetriesTransientCreateFailures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedClient("client-a")
	txn := db.SeedTransaction("client-a", model.StatusSyncPending, "100.00")

	dest := &mockDestination{kind: "erp-b", nextID: "ext-1", failuresLeft: 2}
	rec := New(db.Storage, retryOpts(), 0)

	action, err := rec.Push(context.Background(), dest, &txn, syncRecordFor(txn))
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, action)
	assert.Equal(t, 3, dest.createCalls, "two failures then success")
}

func TestPushExhaustedRetriesLeaveRefsUntouched(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedClient("client-a")
	txn := db.SeedTransaction("client-a", model.StatusSyncPending, "100.00")

	dest := &mockDestination{kind: "erp-b", createErr: errors.New("down for maintenance")}
	rec := New(db.Storage, retryOpts(), 0)

	action, err := rec.Push(context.Background(), dest, &txn, syncRecordFor(txn))
	require.Error(t, err)
	assert.Equal(t, ActionCreate, action)
	assert.Equal(t, 3, dest.createCalls)

	stored, getErr := db.Storage.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, getErr)
	_, ok := stored.ExternalRef("erp-b")
	assert.False(t, ok)
	assert.Equal(t, model.StatusSyncPending, stored.Status)
}

func TestProbeWindowUsesDueDate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedClient("client-a")
	txn := db.SeedTransaction("client-a", model.StatusSyncPending, "100.00")

	var captured service.ExistingQuery
	dest := &probeCapturingDestination{kind: "erp-b"}
	rec := New(db.Storage, retryOpts(), 48*time.Hour)

	_, err := rec.Push(context.Background(), dest, &txn, syncRecordFor(txn))
	require.NoError(t, err)
	captured = dest.lastQuery

	assert.Equal(t, txn.DueDate.Add(-48*time.Hour), captured.DateFrom)
	assert.Equal(t, txn.DueDate.Add(48*time.Hour), captured.DateTo)
	assert.True(t, captured.Amount.Equal(decimal.RequireFromString("100.00")))
}

type probeCapturingDestination struct {
	kind      string
	lastQuery service.ExistingQuery
}

func (d *probeCapturingDestination) Kind() string { return d.kind }

func (d *probeCapturingDestination) Create(_ context.Context, _ string, _ service.SyncRecord) (string, error) {
	return "ext-x", nil
}

func (d *probeCapturingDestination) Update(_ context.Context, _, _ string, _ service.SyncRecord) error {
	return nil
}

func (d *probeCapturingDestination) FindExisting(_ context.Context, _ string, q service.ExistingQuery) (string, bool, error) {
	d.lastQuery = q
	return "", false, nil
}
