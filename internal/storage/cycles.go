package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fechamento/internal/common"
	"fechamento/internal/model"
)

const cycleColumns = `id, instance_id, status, clients_total, clients_processed, clients_failed,
	transactions_captured, transactions_classified, transactions_synced, transactions_in_review,
	errors, started_at, finished_at`

// SaveCycle inserts or updates one cycle instance.
func (s *SQLiteStorage) SaveCycle(ctx context.Context, cycle *model.Cycle) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCycle(cycle); err != nil {
		return err
	}

	errsJSON, err := json.Marshal(cycle.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle errors: %w", err)
	}

	var finishedAt sql.NullTime
	if cycle.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *cycle.FinishedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, instance_id, status, clients_total, clients_processed, clients_failed,
			transactions_captured, transactions_classified, transactions_synced, transactions_in_review,
			errors, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, instance_id) DO UPDATE SET
			status = excluded.status,
			clients_total = excluded.clients_total,
			clients_processed = excluded.clients_processed,
			clients_failed = excluded.clients_failed,
			transactions_captured = excluded.transactions_captured,
			transactions_classified = excluded.transactions_classified,
			transactions_synced = excluded.transactions_synced,
			transactions_in_review = excluded.transactions_in_review,
			errors = excluded.errors,
			finished_at = excluded.finished_at
	`, cycle.ID, cycle.InstanceID, string(cycle.Status), cycle.ClientsTotal, cycle.ClientsProcessed,
		cycle.ClientsFailed, cycle.TransactionsCaptured, cycle.TransactionsClassified,
		cycle.TransactionsSynced, cycle.TransactionsInReview, string(errsJSON),
		cycle.StartedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to save cycle %s/%s: %w", cycle.ID, cycle.InstanceID, err)
	}
	return nil
}

// GetCycle loads one cycle instance.
func (s *SQLiteStorage) GetCycle(ctx context.Context, id, instanceID string) (*model.Cycle, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "cycle id"); err != nil {
		return nil, err
	}
	if err := validateString(instanceID, "cycle instance id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE id = ? AND instance_id = ?`, id, instanceID)
	cycle, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cycle %s/%s: %w", id, instanceID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load cycle %s/%s: %w", id, instanceID, err)
	}
	return cycle, nil
}

// GetLatestCycle loads the most recently started instance for a cycle id.
func (s *SQLiteStorage) GetLatestCycle(ctx context.Context, id string) (*model.Cycle, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "cycle id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE id = ? ORDER BY started_at DESC, instance_id LIMIT 1`, id)
	cycle, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cycle %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load latest cycle %s: %w", id, err)
	}
	return cycle, nil
}

// ListCycleInstances returns every recorded instance for a cycle id,
// newest first.
func (s *SQLiteStorage) ListCycleInstances(ctx context.Context, id string) ([]model.Cycle, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "cycle id"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE id = ? ORDER BY started_at DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cycles []model.Cycle
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, *cycle)
	}
	return cycles, rows.Err()
}

// SaveRunState persists the orchestrator's state-machine record.
func (s *SQLiteStorage) SaveRunState(ctx context.Context, state *model.CycleRunState) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("run state cannot be nil")
	}

	pending, err := json.Marshal(state.PendingClients)
	if err != nil {
		return fmt.Errorf("failed to marshal pending clients: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_states (cycle_id, instance_id, state, pending_clients, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id, instance_id) DO UPDATE SET
			state = excluded.state,
			pending_clients = excluded.pending_clients,
			updated_at = excluded.updated_at
	`, state.CycleID, state.InstanceID, string(state.State), string(pending), state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run state %s/%s: %w", state.CycleID, state.InstanceID, err)
	}
	return nil
}

// GetRunState loads the persisted state-machine record for a cycle instance.
func (s *SQLiteStorage) GetRunState(ctx context.Context, cycleID, instanceID string) (*model.CycleRunState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var state model.CycleRunState
	var stateStr string
	var pending sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT cycle_id, instance_id, state, pending_clients, updated_at
		FROM run_states WHERE cycle_id = ? AND instance_id = ?
	`, cycleID, instanceID).Scan(&state.CycleID, &state.InstanceID, &stateStr, &pending, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run state %s/%s: %w", cycleID, instanceID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load run state %s/%s: %w", cycleID, instanceID, err)
	}

	state.State = model.CycleStatus(stateStr)
	if pending.Valid && pending.String != "" {
		if err := json.Unmarshal([]byte(pending.String), &state.PendingClients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending clients: %w", err)
		}
	}
	return &state, nil
}

func scanCycle(row rowScanner) (*model.Cycle, error) {
	var cycle model.Cycle
	var status string
	var errsJSON sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&cycle.ID, &cycle.InstanceID, &status, &cycle.ClientsTotal,
		&cycle.ClientsProcessed, &cycle.ClientsFailed, &cycle.TransactionsCaptured,
		&cycle.TransactionsClassified, &cycle.TransactionsSynced, &cycle.TransactionsInReview,
		&errsJSON, &cycle.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	cycle.Status = model.CycleStatus(status)
	if errsJSON.Valid && errsJSON.String != "" {
		if err := json.Unmarshal([]byte(errsJSON.String), &cycle.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cycle errors: %w", err)
		}
	}
	if finishedAt.Valid {
		cycle.FinishedAt = &finishedAt.Time
	}
	return &cycle, nil
}
