// Package main is the entry point for the Guardrail redaction server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/guardrail/guardrail/internal/cache"
	"github.com/guardrail/guardrail/internal/config"
	"github.com/guardrail/guardrail/internal/credentials"
	"github.com/guardrail/guardrail/internal/database"
	"github.com/guardrail/guardrail/internal/handlers"
	"github.com/guardrail/guardrail/internal/llm"
	"github.com/guardrail/guardrail/internal/ratelimit"
	"github.com/guardrail/guardrail/internal/redactor"
	"github.com/guardrail/guardrail/internal/repository"
	"github.com/guardrail/guardrail/internal/retry"
	"github.com/guardrail/guardrail/internal/server"
	"github.com/guardrail/guardrail/pkg/logger"
)

const envFile = ".env"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env before config so env overrides see its values. A missing
	// file is fine; the store creates it on the first key update.
	_ = godotenv.Load(envFile)

	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg)
	log.Info("starting guardrail", "env", cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Detection cache is optional; the pipeline runs without it.
	var detectionCache cache.DetectionCacher
	if cfg.RedisEnabled() {
		redisCache := retry.WithFallback(ctx,
			func(ctx context.Context) (*cache.RedisCache, error) {
				return cache.NewRedisCache(ctx, &cfg.Redis)
			},
			nil,
			func(err error) {
				log.Warn("redis unavailable, detection cache disabled", "error", err.Error())
			})
		if redisCache != nil {
			defer redisCache.Close()
			detectionCache = cache.NewDetectionCache(redisCache, "", cfg.Redis.CacheTTL.Std())
			log.Info("detection cache enabled", "host", cfg.Redis.Host)
		}
	}

	// History persistence is optional as well.
	var history repository.HistoryRepository
	if cfg.DatabaseEnabled() {
		pool, err := database.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Warn("database unavailable, history disabled", "error", err.Error())
		} else {
			defer pool.Close()

			migrator := database.NewMigrator(pool, database.DefaultMigrations())
			applied, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			if applied > 0 {
				log.Info("database migrations applied", "count", applied)
			}

			history = repository.NewPostgresHistoryRepository(pool)
			log.Info("history persistence enabled", "host", cfg.Database.Host)
		}
	}

	store := credentials.NewStore(envFile)
	apiKey := store.OpenAIKey()
	if apiKey == "" {
		log.Warn("no OpenAI key configured, processing disabled until one is set")
	}

	ollama := llm.NewOllamaClient(cfg.Models.Ollama)
	openAI := llm.NewOpenAIClient(cfg.Models.OpenAI, apiKey)

	limiter := ratelimit.NewWindowLimiter(ratelimit.WindowConfig{
		MaxRequestsPerMinute: cfg.Rate.MaxRequestsPerMinute,
		MaxTokensPerMinute:   cfg.Rate.MaxTokensPerMinute,
	})

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		MinWait:     cfg.Retry.MinWait.Std(),
		MaxWait:     cfg.Retry.MaxWait.Std(),
		Multiplier:  cfg.Retry.Multiplier,
	}

	service := redactor.New(redactor.Options{
		Logger:                log,
		Limiter:               limiter,
		Policy:                policy,
		Generator:             ollama,
		Completer:             openAI,
		Cache:                 detectionCache,
		History:               history,
		Credentials:           store,
		CategoryMap:           cfg.CategoryMap(),
		InstructionPrefix:     cfg.Process.InstructionPrefix,
		SanitizeErrorMessages: cfg.Security.SanitizeErrorMessages,
		LogSensitiveData:      cfg.Security.LogSensitiveData,
	})

	redactHandler := handlers.NewRedactHandler(service, cfg.Categories, history, log)

	uiHandler, err := handlers.NewUIHandler(cfg.UI)
	if err != nil {
		return fmt.Errorf("failed to load interface templates: %w", err)
	}

	srv := server.New(cfg, log, redactHandler, uiHandler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

// newLogger builds the application logger from the logging config.
func newLogger(cfg *config.Config) *logger.Logger {
	if cfg.Logging.FileLogging {
		return logger.NewRotating(logger.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Console:    cfg.Logging.Console,
		}, cfg.Logging.Level)
	}
	return logger.New(os.Stdout, cfg.Logging.Level)
}
