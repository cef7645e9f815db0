package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/techstore/storefront/internal/domain"
	healthcheck "github.com/techstore/storefront/internal/health"
	"github.com/techstore/storefront/internal/storage/memory"
	"github.com/techstore/storefront/internal/storage/postgres"
	redisstore "github.com/techstore/storefront/internal/storage/redis"
)

const redisDialTimeout = 3 * time.Second

// runtimeDependencies — хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	txManager       domain.TxManager
	products        domain.ProductRepository
	orders          domain.OrderRepository
	users           domain.UserRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository

	// idempotencySelfExpiring — записи удаляет само хранилище (TTL Redis).
	idempotencySelfExpiring bool

	checkers map[string]healthcheck.Checker
	closers  []func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		deps.txManager = store
		deps.products = store.Products()
		deps.orders = store.Orders()
		deps.users = memory.NewUserRepository()
		deps.outboxRepo = store.Outbox()
		deps.idempotencyRepo = memory.NewIdempotencyRepository(nil)
		deps.checkers["storage"] = healthcheck.NewPingChecker("storage", func(context.Context) error { return nil })
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage driver requires STOREFRONT_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.txManager = store
		deps.products = store.Products()
		deps.orders = store.Orders()
		deps.users = store.Users()
		deps.outboxRepo = store.Outbox()
		deps.idempotencyRepo = store.Idempotency()
		deps.checkers["storage"] = healthcheck.NewPingChecker("storage", store.Ping)
		deps.closers = append(deps.closers, store.Close)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		repo, closeRedis, err := openRedisIdempotency(ctx, cfg.RedisAddr)
		if err != nil {
			deps.close(logger)
			return nil, err
		}
		deps.idempotencyRepo = repo
		deps.idempotencySelfExpiring = true
		deps.checkers["redis"] = healthcheck.NewPingChecker("redis", repo.Ping)
		deps.closers = append(deps.closers, closeRedis)
		logger.WithField("addr", cfg.RedisAddr).Info("idempotency keys stored in redis")
	}

	return deps, nil
}

func openRedisIdempotency(ctx context.Context, addr string) (*redisstore.IdempotencyRepository, func() error, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: redisDialTimeout,
	})
	repo := redisstore.NewIdempotencyRepository(rdb, nil)

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := repo.Ping(pingCtx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return repo, rdb.Close, nil
}

// close освобождает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}
