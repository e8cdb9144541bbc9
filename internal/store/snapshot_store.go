package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/jackc/pgx/v5"
)

// SaveSnapshot upserts the whole job document in a single statement. The
// progress columns duplicate fields of the document so recovery and the
// dashboard can filter without decoding it.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO job_snapshots (id, document, total, current_index, sent, failed, paused, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			document = EXCLUDED.document,
			total = EXCLUDED.total,
			current_index = EXCLUDED.current_index,
			sent = EXCLUDED.sent,
			failed = EXCLUDED.failed,
			paused = EXCLUDED.paused,
			active = EXCLUDED.active,
			updated_at = NOW()
	`, snap.ID, doc, len(snap.Recipients), snap.Stats.CurrentIndex, snap.Stats.Sent,
		snap.Stats.Failed, snap.Paused, snap.Active, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	if !validID(id) {
		return nil, nil
	}

	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM job_snapshots WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// ListIncompleteSnapshots returns jobs that still have recipients left,
// oldest first.
func (s *PostgresStore) ListIncompleteSnapshots(ctx context.Context) ([]domain.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document FROM job_snapshots
		WHERE current_index < total
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying incomplete snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []domain.Snapshot{}
	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}

		var snap domain.Snapshot
		if err := json.Unmarshal(doc, &snap); err != nil {
			return nil, fmt.Errorf("decoding snapshot %s: %w", id, err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snaps, nil
}
