package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fechamento/internal/common"
	"fechamento/internal/model"
)

// SaveAuthorization inserts or updates a pending authorization.
func (s *SQLiteStorage) SaveAuthorization(ctx context.Context, auth *model.PendingAuthorization) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if auth == nil {
		return fmt.Errorf("authorization cannot be nil")
	}
	if err := validateString(auth.ID, "authorization id"); err != nil {
		return err
	}

	var resolvedAt sql.NullTime
	if auth.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *auth.ResolvedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO authorizations (id, transaction_id, client_id, cycle_id, reason, amount, status, resolved_at, resolved_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			resolved_at = excluded.resolved_at,
			resolved_by = excluded.resolved_by
	`, auth.ID, auth.TransactionID, auth.ClientID, auth.CycleID, auth.Reason, auth.Amount.String(),
		string(auth.Status), resolvedAt, auth.ResolvedBy)
	if err != nil {
		return fmt.Errorf("failed to save authorization %s: %w", auth.ID, err)
	}
	return nil
}

// GetAuthorization loads one authorization by id.
func (s *SQLiteStorage) GetAuthorization(ctx context.Context, id string) (*model.PendingAuthorization, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "authorization id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, client_id, cycle_id, reason, amount, status, created_at, resolved_at, resolved_by
		FROM authorizations WHERE id = ?
	`, id)
	auth, err := scanAuthorization(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("authorization %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load authorization %s: %w", id, err)
	}
	return auth, nil
}

// ListPendingAuthorizations returns pending authorizations, optionally
// narrowed to one client.
func (s *SQLiteStorage) ListPendingAuthorizations(ctx context.Context, clientID string) ([]model.PendingAuthorization, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, transaction_id, client_id, cycle_id, reason, amount, status, created_at, resolved_at, resolved_by
		FROM authorizations WHERE status = ?`
	args := []any{string(model.AuthorizationPending)}
	if clientID != "" {
		query += " AND client_id = ?"
		args = append(args, clientID)
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query authorizations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var auths []model.PendingAuthorization
	for rows.Next() {
		auth, err := scanAuthorization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan authorization: %w", err)
		}
		auths = append(auths, *auth)
	}
	return auths, rows.Err()
}

// SaveDoubt inserts or updates an enrichment doubt.
func (s *SQLiteStorage) SaveDoubt(ctx context.Context, doubt *model.EnrichmentDoubt) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if doubt == nil {
		return fmt.Errorf("doubt cannot be nil")
	}
	if err := validateString(doubt.ID, "doubt id"); err != nil {
		return err
	}

	var resolvedAt sql.NullTime
	if doubt.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *doubt.ResolvedAt, Valid: true}
	}
	var suggestedID, suggestedName sql.NullString
	var suggestedConfidence sql.NullFloat64
	if doubt.SuggestedCategory != nil {
		suggestedID = sql.NullString{String: doubt.SuggestedCategory.ID, Valid: true}
		suggestedName = sql.NullString{String: doubt.SuggestedCategory.Name, Valid: true}
		suggestedConfidence = sql.NullFloat64{Float64: doubt.SuggestedCategory.Confidence, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO doubts (id, transaction_id, client_id, cycle_id, reason, suggested_category_id,
			suggested_category_name, suggested_confidence, status, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			resolved_at = excluded.resolved_at
	`, doubt.ID, doubt.TransactionID, doubt.ClientID, doubt.CycleID, doubt.Reason, suggestedID,
		suggestedName, suggestedConfidence, string(doubt.Status), resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to save doubt %s: %w", doubt.ID, err)
	}
	return nil
}

// GetDoubt loads one doubt by id.
func (s *SQLiteStorage) GetDoubt(ctx context.Context, id string) (*model.EnrichmentDoubt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "doubt id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, client_id, cycle_id, reason, suggested_category_id,
			suggested_category_name, suggested_confidence, status, created_at, resolved_at
		FROM doubts WHERE id = ?
	`, id)
	doubt, err := scanDoubt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("doubt %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load doubt %s: %w", id, err)
	}
	return doubt, nil
}

// ListPendingDoubts returns pending doubts, optionally narrowed to one client.
func (s *SQLiteStorage) ListPendingDoubts(ctx context.Context, clientID string) ([]model.EnrichmentDoubt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, transaction_id, client_id, cycle_id, reason, suggested_category_id,
			suggested_category_name, suggested_confidence, status, created_at, resolved_at
		FROM doubts WHERE status = ?`
	args := []any{string(model.DoubtPending)}
	if clientID != "" {
		query += " AND client_id = ?"
		args = append(args, clientID)
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query doubts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var doubts []model.EnrichmentDoubt
	for rows.Next() {
		doubt, err := scanDoubt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan doubt: %w", err)
		}
		doubts = append(doubts, *doubt)
	}
	return doubts, rows.Err()
}

func scanAuthorization(row rowScanner) (*model.PendingAuthorization, error) {
	var auth model.PendingAuthorization
	var amount, status string
	var resolvedAt sql.NullTime
	var cycleID, resolvedBy sql.NullString

	err := row.Scan(&auth.ID, &auth.TransactionID, &auth.ClientID, &cycleID, &auth.Reason, &amount,
		&status, &auth.CreatedAt, &resolvedAt, &resolvedBy)
	if err != nil {
		return nil, err
	}

	auth.Status = model.AuthorizationStatus(status)
	auth.CycleID = cycleID.String
	auth.ResolvedBy = resolvedBy.String
	auth.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authorization amount: %w", err)
	}
	if resolvedAt.Valid {
		auth.ResolvedAt = &resolvedAt.Time
	}
	return &auth, nil
}

func scanDoubt(row rowScanner) (*model.EnrichmentDoubt, error) {
	var doubt model.EnrichmentDoubt
	var status string
	var resolvedAt sql.NullTime
	var cycleID, suggestedID, suggestedName sql.NullString
	var suggestedConfidence sql.NullFloat64

	err := row.Scan(&doubt.ID, &doubt.TransactionID, &doubt.ClientID, &cycleID, &doubt.Reason,
		&suggestedID, &suggestedName, &suggestedConfidence, &status, &doubt.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	doubt.Status = model.DoubtStatus(status)
	doubt.CycleID = cycleID.String
	if suggestedID.Valid || suggestedName.Valid {
		doubt.SuggestedCategory = &model.CategoryAssignment{
			ID:         suggestedID.String,
			Name:       suggestedName.String,
			Confidence: suggestedConfidence.Float64,
		}
	}
	if resolvedAt.Valid {
		doubt.ResolvedAt = &resolvedAt.Time
	}
	return &doubt, nil
}
