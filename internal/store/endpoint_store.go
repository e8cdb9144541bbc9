package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (s *PostgresStore) CreateEndpoint(ctx context.Context, ep *domain.Endpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO endpoints (id, name, host, port, secure, username, password, max_messages_per_conn, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ep.ID, ep.Name, ep.Host, ep.Port, ep.Secure, ep.Username, ep.Password, ep.MaxMessagesPerConn, ep.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting endpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error) {
	if !validID(id) {
		return nil, nil
	}

	var ep domain.Endpoint
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, host, port, secure, username, password, max_messages_per_conn, created_at
		FROM endpoints WHERE id = $1
	`, id).Scan(
		&ep.ID, &ep.Name, &ep.Host, &ep.Port, &ep.Secure,
		&ep.Username, &ep.Password, &ep.MaxMessagesPerConn, &ep.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying endpoint: %w", err)
	}
	return &ep, nil
}

// ListEndpoints returns endpoints oldest first; rotation order depends on it.
func (s *PostgresStore) ListEndpoints(ctx context.Context) ([]domain.Endpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, host, port, secure, username, password, max_messages_per_conn, created_at
		FROM endpoints
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []domain.Endpoint
	for rows.Next() {
		var ep domain.Endpoint
		if err := rows.Scan(
			&ep.ID, &ep.Name, &ep.Host, &ep.Port, &ep.Secure,
			&ep.Username, &ep.Password, &ep.MaxMessagesPerConn, &ep.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning endpoint: %w", err)
		}
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating endpoints: %w", err)
	}

	if endpoints == nil {
		endpoints = []domain.Endpoint{}
	}
	return endpoints, nil
}

func (s *PostgresStore) DeleteEndpoint(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting endpoint: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
