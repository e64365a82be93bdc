package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "enricher exited with error", "error", err)
		os.Exit(1) //nolint:forbidigo // non-zero exit on fatal errors
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting domain enricher",
		"db", fmt.Sprintf("%s:%d/%s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Name),
		"enabled_services", bootstrap.GetEnabledServices(&cfg),
		"shared_cache", cfg.NeedsRedis())

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	inf, err := openInfra(&cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := inf.Close(); cerr != nil {
			logger.ErrorContext(ctx, "closing infrastructure", "error", cerr)
		}
	}()

	if !cfg.Postgres.RunMigrationsOnStart {
		logger.InfoContext(ctx, "migrations on start disabled")
	} else if err = bootstrap.RunMigrations(ctx, inf.db, logger); err != nil {
		return err
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          inf.db,
		RedisClient: inf.redis,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          inf.db,
		RedisClient: inf.redis,
		Logger:      logger,
	})
}

// infra holds the process-wide connections. redis is nil unless the
// primary stage shares its ASN cache.
type infra struct {
	db    *sql.DB
	redis redis.UniversalClient
}

func openInfra(cfg *config.AppConfig, logger *slog.Logger) (*infra, error) {
	dc := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	db, err := bootstrap.ConnectDB(dc)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	inf := &infra{db: db}
	if !cfg.NeedsRedis() {
		return inf, nil
	}

	inf.redis, err = bootstrap.ConnectRedis(dc)
	if err != nil {
		err = fmt.Errorf("connect redis: %w", err)
		return nil, errors.Join(err, inf.Close())
	}
	return inf, nil
}

func (i *infra) Close() error {
	var errs []error
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}
