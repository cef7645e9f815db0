package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/techstore/storefront/internal/domain"
)

// pgTx реализует domain.Tx поверх *sql.Tx.
type pgTx struct {
	tx  *sql.Tx
	now domain.Clock
}

func (t *pgTx) Products() domain.ProductTx { return (*productTx)(t) }
func (t *pgTx) Orders() domain.OrderTx     { return (*orderTx)(t) }
func (t *pgTx) Outbox() domain.OutboxTx    { return (*outboxTx)(t) }

type productTx pgTx

// LockForUpdate берёт блокировки строк в порядке id, чтобы параллельные
// покупки пересекающихся корзин не попадали в deadlock.
func (t *productTx) LockForUpdate(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, sorted)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan locked product: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	return nil
}

func (t *productTx) Get(ctx context.Context, id string) (domain.Product, error) {
	return getProduct(ctx, t.tx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

// DecrementStock — compare-and-decrement: строка меняется, только если
// остатка хватает.
func (t *productTx) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty < 1 {
		return domain.ErrItemQtyInvalid
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2,
		    sold = sold + $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $1
		  AND stock >= $2
	`, id, qty, t.now.Now())
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := rowExists(ctx, t.tx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrInsufficientStock
	}
	return nil
}

type orderTx pgTx

func (t *orderTx) NumberExists(ctx context.Context, number string) (bool, error) {
	return rowExists(ctx, t.tx, `SELECT EXISTS (SELECT 1 FROM orders WHERE number = $1)`, number)
}

func (t *orderTx) Create(ctx context.Context, order domain.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}
	return insertOrder(ctx, t.tx, order)
}

type outboxTx pgTx

func (t *outboxTx) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return enqueueOutbox(ctx, t.tx, msg, t.now.Now())
}

var _ domain.Tx = (*pgTx)(nil)
