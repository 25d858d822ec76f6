package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fechamento/internal/common"
	"fechamento/internal/model"
	"fechamento/internal/service"
)

const transactionColumns = `id, client_id, hash, date, due_date, description, counterparty,
	type, amount, category_id, category_name, category_confidence, external_refs, status,
	created_at, updated_at`

// SaveTransaction inserts or updates one transaction.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	refs, categoryID, categoryName, confidence, err := marshalTransactionFields(txn)
	if err != nil {
		return err
	}

	txn.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, client_id, hash, date, due_date, description, counterparty,
			type, amount, category_id, category_name, category_confidence, external_refs, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category_id = excluded.category_id,
			category_name = excluded.category_name,
			category_confidence = excluded.category_confidence,
			external_refs = excluded.external_refs,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, txn.ID, txn.ClientID, txn.Hash, txn.Date, txn.DueDate, txn.Description, txn.Counterparty,
		string(txn.Type), txn.Amount.String(), categoryID, categoryName, confidence, refs,
		string(txn.Status), txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
	}
	return nil
}

// SaveTransactions stores a batch, ignoring rows whose duplicate-detection
// hash is already present. Returns only the newly inserted rows; a row the
// hash index rejected carries an id that exists nowhere, so callers must
// not act on it.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (id, client_id, hash, date, due_date, description,
			counterparty, type, amount, category_id, category_name, category_confidence,
			external_refs, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var inserted []model.Transaction
	for i := range txns {
		txn := &txns[i]
		if err := validateTransaction(txn); err != nil {
			return nil, err
		}
		if txn.Hash == "" {
			txn.Hash = txn.GenerateHash()
		}

		refs, categoryID, categoryName, confidence, err := marshalTransactionFields(txn)
		if err != nil {
			return nil, err
		}

		result, err := stmt.ExecContext(ctx, txn.ID, txn.ClientID, txn.Hash, txn.Date, txn.DueDate,
			txn.Description, txn.Counterparty, string(txn.Type), txn.Amount.String(),
			categoryID, categoryName, confidence, refs, string(txn.Status))
		if err != nil {
			return nil, fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to count insert of %s: %w", txn.ID, err)
		}
		if affected > 0 {
			inserted = append(inserted, *txn)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

// GetTransaction loads one transaction by id.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "transaction id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load transaction %s: %w", id, err)
	}
	return txn, nil
}

// GetTransactionByHash loads the transaction carrying a duplicate-detection hash.
func (s *SQLiteStorage) GetTransactionByHash(ctx context.Context, hash string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(hash, "transaction hash"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE hash = ?`, hash)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction hash %s: %w", hash, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load transaction by hash: %w", err)
	}
	return txn, nil
}

// GetTransactions returns transactions matching the filter, oldest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any
	if filter.ClientID != "" {
		conditions = append(conditions, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// UpdateTransactionStatus moves one transaction to a new status.
func (s *SQLiteStorage) UpdateTransactionStatus(ctx context.Context, id string, to model.Status) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "transaction id"); err != nil {
		return err
	}
	if !to.Valid() {
		return fmt.Errorf("invalid status %q", to)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`,
		string(to), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of transaction %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func marshalTransactionFields(txn *model.Transaction) (refs string, categoryID, categoryName sql.NullString, confidence sql.NullFloat64, err error) {
	if len(txn.ExternalRefs) > 0 {
		raw, marshalErr := json.Marshal(txn.ExternalRefs)
		if marshalErr != nil {
			err = fmt.Errorf("failed to marshal external refs: %w", marshalErr)
			return
		}
		refs = string(raw)
	}
	if txn.Category != nil {
		categoryID = sql.NullString{String: txn.Category.ID, Valid: true}
		categoryName = sql.NullString{String: txn.Category.Name, Valid: true}
		confidence = sql.NullFloat64{Float64: txn.Category.Confidence, Valid: true}
	}
	return
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var counterparty, categoryID, categoryName, refs sql.NullString
	var confidence sql.NullFloat64
	var txnType, status, amount string

	err := row.Scan(&txn.ID, &txn.ClientID, &txn.Hash, &txn.Date, &txn.DueDate, &txn.Description,
		&counterparty, &txnType, &amount, &categoryID, &categoryName, &confidence, &refs,
		&status, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, err
	}

	txn.Counterparty = counterparty.String
	txn.Type = model.TransactionType(txnType)
	txn.Status = model.Status(status)
	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}

	if categoryID.Valid || categoryName.Valid {
		txn.Category = &model.CategoryAssignment{
			ID:         categoryID.String,
			Name:       categoryName.String,
			Confidence: confidence.Float64,
		}
	}
	if refs.Valid && refs.String != "" {
		if err := json.Unmarshal([]byte(refs.String), &txn.ExternalRefs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal external refs: %w", err)
		}
	}
	return &txn, nil
}
