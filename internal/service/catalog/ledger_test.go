package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/service/catalog"
	"github.com/techstore/storefront/internal/storage/memory"
)

func seedProduct(t *testing.T, store *memory.Store, id string, stock int, active bool) domain.Product {
	t.Helper()
	now := time.Now().UTC()
	product := domain.Product{
		ID:        id,
		Name:      "Audífonos " + id,
		Slug:      "audifonos-" + id,
		SKU:       "SKU-" + id,
		Brand:     "Sony",
		Category:  domain.CategoryAudio,
		Price:     decimal.RequireFromString("499.50"),
		Stock:     stock,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Products().Create(context.Background(), product))
	return product
}

func TestLedger_CheckAvailability(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p-1", 3, true)
	seedProduct(t, store, "p-off", 10, false)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		ledger := catalog.NewLedger(tx.Products())

		ok, err := ledger.CheckAvailability(ctx, "p-1", 3)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = ledger.CheckAvailability(ctx, "p-1", 4)
		require.NoError(t, err)
		require.False(t, ok)

		_, err = ledger.CheckAvailability(ctx, "missing", 1)
		require.ErrorIs(t, err, domain.ErrNotFound)

		_, err = ledger.CheckAvailability(ctx, "p-off", 1)
		require.ErrorIs(t, err, domain.ErrProductNotFound)

		_, err = ledger.CheckAvailability(ctx, "p-1", 0)
		require.ErrorIs(t, err, domain.ErrItemQtyInvalid)
		return nil
	})
	require.NoError(t, err)
}

func TestLedger_ResolveDistinguishesInactive(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p-off", 10, false)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := catalog.NewLedger(tx.Products()).Resolve(ctx, "p-off")
		require.ErrorIs(t, err, domain.ErrProductInactive)

		var productErr *domain.ProductError
		require.True(t, errors.As(err, &productErr))
		require.Equal(t, "p-off", productErr.ProductID)
		return nil
	})
	require.NoError(t, err)
}

func TestLedger_ReserveStockCommits(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p-1", 5, true)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		ledger := catalog.NewLedger(tx.Products())
		require.NoError(t, ledger.Lock(ctx, []string{"p-1", "p-1"}))
		return ledger.ReserveStock(ctx, "p-1", 2)
	})
	require.NoError(t, err)

	product, err := store.Products().Get(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, 3, product.Stock)
	require.Equal(t, 2, product.Sold)
}

func TestLedger_ReserveStockInsufficientLeavesStock(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p-1", 1, true)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return catalog.NewLedger(tx.Products()).ReserveStock(ctx, "p-1", 2)
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	product, err := store.Products().Get(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, 1, product.Stock)
	require.Zero(t, product.Sold)
}

func TestLedger_ReserveStockRejectsZeroQuantity(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store, "p-1", 1, true)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return catalog.NewLedger(tx.Products()).ReserveStock(ctx, "p-1", 0)
	})
	require.ErrorIs(t, err, domain.ErrValidation)
}
