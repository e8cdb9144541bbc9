package store

import (
	"context"
	"fmt"
)

// DispatchSummary holds totals across every persisted job.
type DispatchSummary struct {
	TotalJobs       int     `json:"total_jobs"`
	CompletedJobs   int     `json:"completed_jobs"`
	PausedJobs      int     `json:"paused_jobs"`
	ActiveJobs      int     `json:"active_jobs"`
	TotalRecipients int     `json:"total_recipients"`
	SentCount       int     `json:"sent_count"`
	FailedCount     int     `json:"failed_count"`
	SuccessRate     float64 `json:"success_rate"`
	EndpointCount   int     `json:"endpoint_count"`
}

// GetDispatchSummary aggregates progress from the snapshot table.
func (s *PostgresStore) GetDispatchSummary(ctx context.Context) (*DispatchSummary, error) {
	var m DispatchSummary

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS jobs,
			COUNT(*) FILTER (WHERE current_index >= total) AS completed,
			COUNT(*) FILTER (WHERE paused AND current_index < total) AS paused,
			COUNT(*) FILTER (WHERE active) AS active,
			COALESCE(SUM(total), 0) AS recipients,
			COALESCE(SUM(sent), 0) AS sent,
			COALESCE(SUM(failed), 0) AS failed
		FROM job_snapshots
	`).Scan(&m.TotalJobs, &m.CompletedJobs, &m.PausedJobs, &m.ActiveJobs,
		&m.TotalRecipients, &m.SentCount, &m.FailedCount)
	if err != nil {
		return nil, fmt.Errorf("querying job totals: %w", err)
	}

	if attempts := m.SentCount + m.FailedCount; attempts > 0 {
		m.SuccessRate = float64(m.SentCount) / float64(attempts) * 100
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM endpoints`).Scan(&m.EndpointCount)
	if err != nil {
		return nil, fmt.Errorf("querying endpoint count: %w", err)
	}

	return &m, nil
}
