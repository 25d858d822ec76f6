package connector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fechamento/internal/common"
	"fechamento/internal/model"
	"fechamento/internal/service"
)

func TestFileConnectorCapture(t *testing.T) {
	dir := t.TempDir()
	payload := `[
		{"data": "2026-03-15T10:00:00Z", "descricao": "Conta de luz", "tipo": "pagamento", "valor": "150.50", "contraparte": "Energia SA"},
		{"data": "2026-03-15T11:00:00Z", "descricao": "Venda balcao", "tipo": "recebimento", "valor": "420", "dataVencimento": "2026-03-20T00:00:00Z"},
		{"data": "2026-01-01T00:00:00Z", "descricao": "Fora da janela", "tipo": "pagamento", "valor": "10"}
	]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client-a.json"), []byte(payload), 0o600))

	conn := NewFileConnector(dir)
	window := service.CaptureWindow{
		StartDate: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
	}

	txns, err := conn.Capture(context.Background(), model.Client{ID: "client-a"}, window)
	require.NoError(t, err)
	require.Len(t, txns, 2, "entries outside the window are dropped")

	assert.Equal(t, "Conta de luz", txns[0].Description)
	assert.Equal(t, model.TypePayment, txns[0].Type)
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("150.50")))
	assert.Equal(t, "Energia SA", txns[0].Counterparty)

	assert.Equal(t, model.TypeReceipt, txns[1].Type)
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), txns[1].DueDate)
}

func TestFileConnectorMissingFileMeansEmpty(t *testing.T) {
	conn := NewFileConnector(t.TempDir())

	txns, err := conn.Capture(context.Background(), model.Client{ID: "ghost"}, service.CaptureWindow{})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestFileConnectorMalformedFileIsValidation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client-a.json"), []byte("{broken"), 0o600))

	conn := NewFileConnector(dir)
	_, err := conn.Capture(context.Background(), model.Client{ID: "client-a"}, service.CaptureWindow{})
	require.Error(t, err)
	assert.True(t, common.IsValidation(err), "malformed source data must not be retried")
}

func TestKeywordClassifier(t *testing.T) {
	classifier := NewKeywordClassifier([]KeywordRule{
		{Keyword: "aluguel", CategoryID: "cat-rent", Category: "Aluguel", Confidence: 0.95},
		{Keyword: "luz", CategoryID: "cat-utilities", Category: "Utilidades"},
	})

	tests := []struct {
		name           string
		description    string
		wantID         string
		wantConfidence float64
	}{
		{name: "first rule wins", description: "Aluguel escritorio", wantID: "cat-rent", wantConfidence: 0.95},
		{name: "match is case-insensitive", description: "CONTA DE LUZ", wantID: "cat-utilities", wantConfidence: 0.9},
		{name: "no match falls back low confidence", description: "Transferencia avulsa", wantID: "uncategorized", wantConfidence: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classifier.Classify(context.Background(), model.Transaction{Description: tt.description})
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
			assert.InDelta(t, tt.wantConfidence, got.Confidence, 1e-9)
		})
	}
}

func TestMemoryDestinationProbe(t *testing.T) {
	dest := NewMemoryDestination("erp-b")
	due := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	rec := service.SyncRecord{
		Description: "Aluguel",
		Amount:      decimal.NewFromInt(2500),
		DueDate:     due,
	}

	id, err := dest.Create(context.Background(), "client-a", rec)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	found, ok, err := dest.FindExisting(context.Background(), "client-a", service.ExistingQuery{
		Description: "Aluguel",
		Amount:      decimal.NewFromInt(2500),
		DateFrom:    due.AddDate(0, 0, -3),
		DateTo:      due.AddDate(0, 0, 3),
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, found)

	// Another client's records are invisible.
	_, ok, err = dest.FindExisting(context.Background(), "client-b", service.ExistingQuery{
		Description: "Aluguel",
		Amount:      decimal.NewFromInt(2500),
		DateFrom:    due.AddDate(0, 0, -3),
		DateTo:      due.AddDate(0, 0, 3),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	// Updates replace the stored record.
	rec.Amount = decimal.NewFromInt(2600)
	require.NoError(t, dest.Update(context.Background(), "client-a", id, rec))
	recs := dest.Records("client-a")
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Amount.Equal(decimal.NewFromInt(2600)))

	assert.Error(t, dest.Update(context.Background(), "client-a", "missing", rec))
}
