package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/target/domain-enricher/config"
	"github.com/target/domain-enricher/internal/bootstrap"
)

var errRedisNotConfigured = errors.New("redis not configured; set REDIS_ENABLED=true")

// openDB connects Postgres for one command. The returned func closes it and
// logs a close failure.
func openDB(cmdCtx *commandContext) (*sql.DB, func(), error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	return db, func() {
		if err := db.Close(); err != nil {
			cmdCtx.Logger.Warn("close db", "error", err)
		}
	}, nil
}

// openRedis connects the shared cache Redis for one command.
//
//nolint:ireturn // sentinel and cluster clients share redis.UniversalClient
func openRedis(cmdCtx *commandContext) (redis.UniversalClient, func(), error) {
	if !hasRedisConfig(&cmdCtx.Config.Redis) {
		return nil, nil, errRedisNotConfigured
	}
	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cmdCtx.Config.Redis, Logger: cmdCtx.Logger})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, func() {
		if err := client.Close(); err != nil {
			cmdCtx.Logger.Warn("close redis", "error", err)
		}
	}, nil
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	switch {
	case cfg == nil || !cfg.Enabled:
		return false
	case cfg.UseCluster:
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	case cfg.UseSentinel:
		return len(cfg.SentinelNodes) > 0
	default:
		return cfg.URI != ""
	}
}
