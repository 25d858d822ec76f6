package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application
// expects. Failing to reach it is fatal.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Clients, transactions and cycles",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS clients (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					source TEXT NOT NULL,
					destination TEXT NOT NULL,
					active INTEGER NOT NULL DEFAULT 1,
					notify_emails TEXT,
					authorization_threshold TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					client_id TEXT NOT NULL REFERENCES clients(id),
					hash TEXT UNIQUE NOT NULL,
					date DATETIME NOT NULL,
					due_date DATETIME NOT NULL,
					description TEXT NOT NULL,
					counterparty TEXT,
					type TEXT NOT NULL,
					amount TEXT NOT NULL,
					category_id TEXT,
					category_name TEXT,
					category_confidence REAL,
					external_refs TEXT,
					status TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_client ON transactions(client_id)`,
				`CREATE INDEX idx_transactions_status ON transactions(status)`,
				`CREATE INDEX idx_transactions_hash ON transactions(hash)`,

				`CREATE TABLE IF NOT EXISTS cycles (
					id TEXT NOT NULL,
					instance_id TEXT NOT NULL,
					status TEXT NOT NULL,
					clients_total INTEGER NOT NULL DEFAULT 0,
					clients_processed INTEGER NOT NULL DEFAULT 0,
					clients_failed INTEGER NOT NULL DEFAULT 0,
					transactions_captured INTEGER NOT NULL DEFAULT 0,
					transactions_classified INTEGER NOT NULL DEFAULT 0,
					transactions_synced INTEGER NOT NULL DEFAULT 0,
					transactions_in_review INTEGER NOT NULL DEFAULT 0,
					errors TEXT,
					started_at DATETIME NOT NULL,
					finished_at DATETIME,
					PRIMARY KEY (id, instance_id)
				)`,
				`CREATE INDEX idx_cycles_started ON cycles(id, started_at)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Review gate: authorizations and doubts",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS authorizations (
					id TEXT PRIMARY KEY,
					transaction_id TEXT NOT NULL REFERENCES transactions(id),
					client_id TEXT NOT NULL,
					reason TEXT NOT NULL,
					amount TEXT NOT NULL,
					status TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					resolved_at DATETIME,
					resolved_by TEXT
				)`,
				`CREATE INDEX idx_authorizations_pending ON authorizations(client_id, status)`,

				`CREATE TABLE IF NOT EXISTS doubts (
					id TEXT PRIMARY KEY,
					transaction_id TEXT NOT NULL REFERENCES transactions(id),
					client_id TEXT NOT NULL,
					reason TEXT NOT NULL,
					suggested_category_id TEXT,
					suggested_category_name TEXT,
					suggested_confidence REAL,
					status TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					resolved_at DATETIME
				)`,
				`CREATE INDEX idx_doubts_pending ON doubts(client_id, status)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Persisted cycle run state",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS run_states (
					cycle_id TEXT NOT NULL,
					instance_id TEXT NOT NULL,
					state TEXT NOT NULL,
					pending_clients TEXT,
					updated_at DATETIME NOT NULL,
					PRIMARY KEY (cycle_id, instance_id)
				)
			`)
			return err
		},
	},
	{
		Version:     4,
		Description: "Originating cycle on review records",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE authorizations ADD COLUMN cycle_id TEXT`,
				`ALTER TABLE doubts ADD COLUMN cycle_id TEXT`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Description, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("applied migration",
			"version", migration.Version,
			"description", migration.Description)
		current = migration.Version
	}

	if current != ExpectedSchemaVersion {
		return fmt.Errorf("schema version %d does not match expected %d", current, ExpectedSchemaVersion)
	}
	return nil
}
