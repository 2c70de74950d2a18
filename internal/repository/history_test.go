package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardrail/guardrail/internal/config"
	"github.com/guardrail/guardrail/internal/database"
	"github.com/guardrail/guardrail/internal/models"
)

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("TEST_POSTGRES") != "true" {
		t.Skip("Skipping: TEST_POSTGRES not set. Run with docker-compose up -d")
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func setupTestRepo(t *testing.T) *PostgresHistoryRepository {
	t.Helper()
	skipIfNoPostgres(t)

	ctx := context.Background()
	cfg := &config.DatabaseConfig{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            5432,
		User:            getEnvOrDefault("DB_USER", "guardrail"),
		Password:        getEnvOrDefault("DB_PASSWORD", "guardrail_dev_password"),
		DBName:          getEnvOrDefault("DB_NAME", "guardrail"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		ConnMaxLifetime: config.Duration(time.Minute),
	}

	pool, err := database.NewPool(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = database.NewMigrator(pool, database.DefaultMigrations()).Up(ctx)
	require.NoError(t, err)

	return NewPostgresHistoryRepository(pool)
}

func TestPostgresHistoryRepository_Record(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rec := &models.RedactionRecord{
		RequestID:     "req-record-test",
		Categories:    []string{"Email Addresses", "Phone Numbers"},
		DetectedCount: 2,
		Outcome:       models.OutcomeSuccess,
		DurationMS:    1500,
	}

	require.NoError(t, repo.Record(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestPostgresHistoryRepository_List(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Record(ctx, &models.RedactionRecord{
			RequestID:  "req-list-test",
			Categories: []string{"Email Addresses"},
			Outcome:    models.OutcomeSuccess,
		}))
	}

	records, err := repo.List(ctx, 50)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(records), 3)

	// Newest first
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].CreatedAt.After(records[i-1].CreatedAt))
	}

	// Only metadata comes back
	first := records[0]
	assert.NotEmpty(t, first.RequestID)
	assert.NotEmpty(t, first.Outcome)
}

func TestPostgresHistoryRepository_List_LimitClamped(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.List(context.Background(), -5)
	assert.NoError(t, err)

	_, err = repo.List(context.Background(), 100000)
	assert.NoError(t, err)
}

func TestPostgresHistoryRepository_HealthCheck(t *testing.T) {
	repo := setupTestRepo(t)
	assert.NoError(t, repo.HealthCheck(context.Background()))
}
