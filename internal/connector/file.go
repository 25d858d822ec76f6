// Package connector holds the development stand-ins for the external
// collaborators: a file-backed capture source, a keyword classifier,
// and an in-memory destination. Production ERP/bank adapters implement
// the same service interfaces and live outside this repository.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fechamento/internal/common"
	"fechamento/internal/model"
	"fechamento/internal/service"
)

// fileTransaction is the on-disk entry shape, matching the wire field
// names of the stage messages.
type fileTransaction struct {
	Data           time.Time       `json:"data"`
	DataVencimento *time.Time      `json:"dataVencimento,omitempty"`
	Descricao      string          `json:"descricao"`
	Tipo           string          `json:"tipo"`
	Contraparte    string          `json:"contraparte,omitempty"`
	Valor          decimal.Decimal `json:"valor"`
}

// FileConnector captures transactions from per-client JSON files in a
// directory: <dir>/<clientID>.json holds an array of entries.
type FileConnector struct {
	dir string
}

// NewFileConnector creates a file-backed capture connector.
func NewFileConnector(dir string) *FileConnector {
	return &FileConnector{dir: dir}
}

// Capture reads the client's file and returns the entries that fall
// inside the window. A missing file means no transactions, not an error.
func (c *FileConnector) Capture(_ context.Context, client model.Client, window service.CaptureWindow) ([]model.Transaction, error) {
	path := filepath.Join(c.dir, client.ID+".json")
	raw, err := os.ReadFile(path) // #nosec G304 -- path is built from the configured directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read capture file %s: %w", path, err)
	}

	var entries []fileTransaction
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, common.NewValidationError(fmt.Sprintf("malformed capture file %s", path), err)
	}

	var txns []model.Transaction
	for _, e := range entries {
		if e.Data.Before(window.StartDate) || e.Data.After(window.EndDate) {
			continue
		}
		txn := model.Transaction{
			ClientID:     client.ID,
			Date:         e.Data,
			Description:  e.Descricao,
			Counterparty: e.Contraparte,
			Type:         model.TransactionType(e.Tipo),
			Amount:       e.Valor,
		}
		if e.DataVencimento != nil {
			txn.DueDate = *e.DataVencimento
		}
		txns = append(txns, txn)
	}
	return txns, nil
}
