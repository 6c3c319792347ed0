package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/config"
	"github.com/shestoi/yookassa-checkout/internal/repository"
	"github.com/shestoi/yookassa-checkout/internal/repository/memory"
	"github.com/shestoi/yookassa-checkout/internal/repository/postgres"
	redisrepo "github.com/shestoi/yookassa-checkout/internal/repository/redis"
	"github.com/shestoi/yookassa-checkout/internal/repository/sqlite"
)

// openStore открывает хранилище заказов по STORAGE_DRIVER
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repository.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		logger.Warn("Using in-memory order store, data is lost on restart")
		return memory.NewRepository(), nil

	case config.StorageSQLite:
		logger.Info("Opening SQLite order store", zap.String("path", cfg.SQLitePath))
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil

	case config.StoragePostgres:
		logger.Info("Applying PostgreSQL migrations")
		if err := postgres.Migrate(ctx, cfg.PostgresDSN); err != nil {
			return nil, err
		}

		logger.Info("Connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("PostgreSQL connection established")
		return postgres.NewRepository(pool), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}
}

// openProcessedEvents redis при заданном REDIS_ADDR, иначе память процесса.
// Возвращает клиент redis (или nil) для readiness и shutdown.
func openProcessedEvents(ctx context.Context, cfg config.Config, logger *zap.Logger) (repository.ProcessedEventsStore, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR is empty, webhook dedup is kept in memory")
		return memory.NewProcessedEventsStore(), nil, nil
	}

	logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return redisrepo.NewProcessedEventsStore(client, logger), client, nil
}
