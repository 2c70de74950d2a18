// Package repository handles data persistence.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/guardrail/guardrail/internal/database"
	"github.com/guardrail/guardrail/internal/metrics"
	"github.com/guardrail/guardrail/internal/models"
)

// HistoryRepository defines the interface for redaction audit persistence.
// Records carry metadata only; input text and detected values are never
// stored.
type HistoryRepository interface {
	// Record stores an audit entry for a completed detection run.
	Record(ctx context.Context, rec *models.RedactionRecord) error

	// List returns the most recent audit entries, newest first.
	List(ctx context.Context, limit int) ([]models.RedactionRecord, error)

	// HealthCheck verifies the repository is healthy.
	HealthCheck(ctx context.Context) error
}

// PostgresHistoryRepository implements HistoryRepository using PostgreSQL.
type PostgresHistoryRepository struct {
	pool *database.Pool
}

// NewPostgresHistoryRepository creates a new PostgreSQL-backed history repository.
func NewPostgresHistoryRepository(pool *database.Pool) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{pool: pool}
}

// Record stores an audit entry.
func (r *PostgresHistoryRepository) Record(ctx context.Context, rec *models.RedactionRecord) error {
	query := `
		INSERT INTO redactions (request_id, categories, detected_count, outcome, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	start := time.Now()
	err := r.pool.QueryRow(ctx, query,
		rec.RequestID,
		rec.Categories,
		rec.DetectedCount,
		rec.Outcome,
		rec.DurationMS,
	).Scan(&rec.ID, &rec.CreatedAt)
	metrics.RecordDBQuery("record", time.Since(start))

	if err != nil {
		return fmt.Errorf("failed to record redaction: %w", err)
	}

	return nil
}

// List returns the most recent audit entries, newest first.
func (r *PostgresHistoryRepository) List(ctx context.Context, limit int) ([]models.RedactionRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT id, request_id, categories, detected_count, outcome, duration_ms, created_at
		FROM redactions
		ORDER BY created_at DESC
		LIMIT $1
	`

	start := time.Now()
	rows, err := r.pool.Query(ctx, query, limit)
	metrics.RecordDBQuery("list", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to list redactions: %w", err)
	}
	defer rows.Close()

	var records []models.RedactionRecord
	for rows.Next() {
		var rec models.RedactionRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&rec.Categories,
			&rec.DetectedCount,
			&rec.Outcome,
			&rec.DurationMS,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan redaction: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read redactions: %w", err)
	}

	return records, nil
}

// HealthCheck verifies the repository is healthy.
func (r *PostgresHistoryRepository) HealthCheck(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
