// Package testutil provides shared test fixtures: an in-memory migrated
// database and builders for the domain records tests need repeatedly.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fechamento/internal/model"
	"fechamento/internal/service"
	"fechamento/internal/storage"
)

// TestDB wraps a migrated in-memory store with seeding helpers.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a new in-memory database, runs migrations, and
// registers cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// SeedClient stores an active client and returns it.
func (db *TestDB) SeedClient(id string) model.Client {
	db.t.Helper()

	client := model.Client{
		ID:           id,
		Name:         "Client " + id,
		Source:       "erp-a",
		Destination:  "erp-b",
		NotifyEmails: []string{id + "@example.com"},
		Active:       true,
	}
	if err := db.Storage.SaveClient(context.Background(), &client); err != nil {
		db.t.Fatalf("failed to seed client %s: %v", id, err)
	}
	return client
}

// SeedTransaction stores a transaction in the given status and returns it.
func (db *TestDB) SeedTransaction(clientID string, status model.Status, amount string) model.Transaction {
	db.t.Helper()

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		db.t.Fatalf("invalid amount %q: %v", amount, err)
	}

	now := time.Now().UTC()
	txn := model.Transaction{
		ID:       uuid.New().String(),
		ClientID: clientID,
		Date:     now,
		DueDate:  now.AddDate(0, 0, 7),
		// Unique description keeps seeded rows clear of the hash index.
		Description:  "seeded transaction " + uuid.New().String(),
		Counterparty: "Fornecedor X",
		Type:         model.TypePayment,
		Amount:       amt,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	txn.Hash = txn.GenerateHash()
	if err := db.Storage.SaveTransaction(context.Background(), &txn); err != nil {
		db.t.Fatalf("failed to seed transaction: %v", err)
	}
	return txn
}
