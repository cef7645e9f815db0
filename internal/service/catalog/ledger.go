package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/techstore/storefront/internal/domain"
)

// Ledger — учёт остатков внутри транзакции оформления заказа.
// Проверка наличия и списание выполняются в одной транзакции, поэтому
// конкурирующие покупки одного товара видят списания друг друга.
type Ledger struct {
	tx domain.ProductTx
}

// NewLedger привязывает учёт к транзакции.
func NewLedger(tx domain.ProductTx) Ledger {
	return Ledger{tx: tx}
}

// Lock блокирует строки товаров до конца транзакции. Идентификаторы
// дедуплицируются и сортируются, чтобы параллельные заказы брали
// блокировки в одном порядке.
func (l Ledger) Lock(ctx context.Context, productIDs []string) error {
	seen := make(map[string]struct{}, len(productIDs))
	ids := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if err := l.tx.LockForUpdate(ctx, ids); err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	return nil
}

// Resolve возвращает активный товар. Отсутствующий товар — ErrProductNotFound,
// снятый с продажи — ErrProductInactive; обе ошибки обёрнуты в ProductError.
func (l Ledger) Resolve(ctx context.Context, productID string) (domain.Product, error) {
	product, err := l.tx.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.Product{}, &domain.ProductError{ProductID: productID, Err: domain.ErrProductNotFound}
		}
		return domain.Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	if !product.Active {
		return domain.Product{}, &domain.ProductError{ProductID: productID, Name: product.Name, Err: domain.ErrProductInactive}
	}
	return product, nil
}

// CheckAvailability сообщает, покрывает ли текущий остаток qty. Оформление
// передаёт сюда суммарный спрос по товару во всей корзине.
// Товар, который не найден или снят с продажи, даёт ErrProductNotFound.
func (l Ledger) CheckAvailability(ctx context.Context, productID string, qty int) (bool, error) {
	if qty < 1 {
		return false, &domain.ProductError{ProductID: productID, Err: domain.ErrItemQtyInvalid}
	}
	product, err := l.tx.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return false, &domain.ProductError{ProductID: productID, Err: domain.ErrProductNotFound}
		}
		return false, fmt.Errorf("get product %s: %w", productID, err)
	}
	if !product.Active {
		return false, &domain.ProductError{ProductID: productID, Name: product.Name, Err: domain.ErrProductNotFound}
	}
	return product.HasStock(qty), nil
}

// ReserveStock списывает qty с остатка и добавляет к продажам.
// Если остаток успел уменьшиться, возвращает ErrInsufficientStock без изменений.
func (l Ledger) ReserveStock(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return &domain.ProductError{ProductID: productID, Err: domain.ErrItemQtyInvalid}
	}
	if err := l.tx.DecrementStock(ctx, productID, qty); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrProductNotFound) {
			return &domain.ProductError{ProductID: productID, Err: err}
		}
		return fmt.Errorf("reserve stock for %s: %w", productID, err)
	}
	return nil
}
