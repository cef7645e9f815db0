package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/techstore/storefront/internal/health"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	require.NoError(t, err)
	t.Cleanup(func() { deps.close(log.WithField("test", "memory-storage")) })

	require.NotNil(t, deps.txManager)
	require.NotNil(t, deps.products)
	require.NotNil(t, deps.orders)
	require.NotNil(t, deps.users)
	require.NotNil(t, deps.outboxRepo)
	require.NotNil(t, deps.idempotencyRepo)
	require.False(t, deps.idempotencySelfExpiring)
	require.Empty(t, deps.closers)

	checker, ok := deps.checkers["storage"]
	require.True(t, ok)
	result := checker.Check(context.Background())
	require.Equal(t, healthcheck.StatusHealthy, result.Status)
	require.True(t, result.Critical)
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	require.ErrorContains(t, err, "STOREFRONT_POSTGRES_DSN")
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitRuntimeDependencies_UnreachableRedis(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		RedisAddr:     "127.0.0.1:1",
	}, log.WithField("test", "redis-unreachable"))
	require.ErrorContains(t, err, "ping redis")
}

func TestRuntimeDependencies_CloseInReverseOrder(t *testing.T) {
	t.Parallel()

	var order []int
	deps := &runtimeDependencies{}
	for i := 1; i <= 3; i++ {
		i := i
		deps.closers = append(deps.closers, func() error {
			order = append(order, i)
			return nil
		})
	}

	deps.close(log.WithField("test", "close"))
	require.Equal(t, []int{3, 2, 1}, order)
	require.Nil(t, deps.closers)
}
