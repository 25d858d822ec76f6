package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fechamento/internal/common"
	"fechamento/internal/model"
)

// SaveClient inserts or updates a client record.
func (s *SQLiteStorage) SaveClient(ctx context.Context, client *model.Client) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("client cannot be nil")
	}
	if err := validateString(client.ID, "client id"); err != nil {
		return err
	}

	emails, err := json.Marshal(client.NotifyEmails)
	if err != nil {
		return fmt.Errorf("failed to marshal notify emails: %w", err)
	}

	var threshold sql.NullString
	if client.AuthorizationThreshold != nil {
		threshold = sql.NullString{String: client.AuthorizationThreshold.String(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, source, destination, active, notify_emails, authorization_threshold, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source,
			destination = excluded.destination,
			active = excluded.active,
			notify_emails = excluded.notify_emails,
			authorization_threshold = excluded.authorization_threshold,
			updated_at = excluded.updated_at
	`, client.ID, client.Name, client.Source, client.Destination, client.Active,
		string(emails), threshold, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save client %s: %w", client.ID, err)
	}
	return nil
}

// GetClient loads one client by id.
func (s *SQLiteStorage) GetClient(ctx context.Context, id string) (*model.Client, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "client id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, source, destination, active, notify_emails, authorization_threshold, created_at, updated_at
		FROM clients WHERE id = ?
	`, id)

	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load client %s: %w", id, err)
	}
	return client, nil
}

// ListClients returns all clients ordered by name.
func (s *SQLiteStorage) ListClients(ctx context.Context) ([]model.Client, error) {
	return s.queryClients(ctx, `
		SELECT id, name, source, destination, active, notify_emails, authorization_threshold, created_at, updated_at
		FROM clients ORDER BY name
	`)
}

// GetActiveClients returns the clients eligible for a cycle.
func (s *SQLiteStorage) GetActiveClients(ctx context.Context) ([]model.Client, error) {
	return s.queryClients(ctx, `
		SELECT id, name, source, destination, active, notify_emails, authorization_threshold, created_at, updated_at
		FROM clients WHERE active = 1 ORDER BY name
	`)
}

// SetClientActive flips a client's activation status.
func (s *SQLiteStorage) SetClientActive(ctx context.Context, id string, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "client id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE clients SET active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update client %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of client %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("client %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) queryClients(ctx context.Context, query string) ([]model.Client, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clients []model.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, *client)
	}
	return clients, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*model.Client, error) {
	var client model.Client
	var emails sql.NullString
	var threshold sql.NullString

	err := row.Scan(&client.ID, &client.Name, &client.Source, &client.Destination,
		&client.Active, &emails, &threshold, &client.CreatedAt, &client.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if emails.Valid && emails.String != "" {
		if err := json.Unmarshal([]byte(emails.String), &client.NotifyEmails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notify emails: %w", err)
		}
	}
	if threshold.Valid {
		value, err := decimal.NewFromString(threshold.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse authorization threshold: %w", err)
		}
		client.AuthorizationThreshold = &value
	}
	return &client, nil
}
