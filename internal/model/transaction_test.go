package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTransaction() Transaction {
	return Transaction{
		ID:           "txn-1",
		ClientID:     "client-a",
		Date:         time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
		Description:  "Aluguel escritorio",
		Counterparty: "Imobiliaria Silva",
		Type:         TypePayment,
		Amount:       decimal.NewFromFloat(2500.00),
	}
}

func TestGenerateHashIsStable(t *testing.T) {
	a := baseTransaction()
	b := baseTransaction()
	b.ID = "txn-2" // identity fields only, not the id

	assert.Equal(t, a.GenerateHash(), b.GenerateHash())

	c := baseTransaction()
	c.Amount = decimal.NewFromFloat(2500.01)
	assert.NotEqual(t, a.GenerateHash(), c.GenerateHash())

	d := baseTransaction()
	d.Date = d.Date.AddDate(0, 0, 1)
	assert.NotEqual(t, a.GenerateHash(), d.GenerateHash())
}

func TestExternalRefs(t *testing.T) {
	txn := baseTransaction()

	_, ok := txn.ExternalRef("erp-b")
	assert.False(t, ok)

	require.NoError(t, txn.SetExternalRef("erp-b", "ext-123"))
	id, ok := txn.ExternalRef("erp-b")
	require.True(t, ok)
	assert.Equal(t, "ext-123", id)

	// Re-recording the same id is idempotent.
	require.NoError(t, txn.SetExternalRef("erp-b", "ext-123"))

	// A different id for the same destination is a conflict.
	assert.Error(t, txn.SetExternalRef("erp-b", "ext-999"))

	// A second destination is independent.
	require.NoError(t, txn.SetExternalRef("erp-c", "other-1"))
}

func TestEffectiveAuthorizationThreshold(t *testing.T) {
	def := decimal.NewFromInt(10000)

	client := Client{ID: "c1"}
	assert.True(t, client.EffectiveAuthorizationThreshold(def).Equal(def))

	override := decimal.NewFromInt(500)
	client.AuthorizationThreshold = &override
	assert.True(t, client.EffectiveAuthorizationThreshold(def).Equal(override))
}
