package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/techstore/storefront/internal/domain"
)

const (
	defaultOrderLimit = 20

	orderColumns = `id, number, user_id, shipping_address, payment_method, coupon,
		subtotal, discount, shipping_cost, tax, total, status, payment_status, transaction_id,
		tracking, paid_at, shipped_at, delivered_at, version, created_at, updated_at`
)

type orderRepository struct {
	db  *sql.DB
	now domain.Clock
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	if err := r.loadChildren(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) (domain.Page[domain.Order], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	req := filter.Page.Normalize(defaultOrderLimit)

	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, req.Limit, req.Offset())...)
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0, req.Limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return domain.Page[domain.Order]{}, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return domain.Page[domain.Order]{}, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	for i := range orders {
		if err := r.loadChildren(ctx, &orders[i]); err != nil {
			return domain.Page[domain.Order]{}, err
		}
	}

	return domain.Page[domain.Order]{Items: orders, Total: total, PageRequest: req}, nil
}

// Save обновляет заказ с проверкой версии, дописывает новые записи истории
// и ставит события в outbox в одной транзакции.
func (r *orderRepository) Save(ctx context.Context, order domain.Order, events ...domain.OutboxMessage) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tracking, err := encodeTracking(order.Tracking)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    transaction_id = $3,
		    tracking = $4,
		    paid_at = $5,
		    shipped_at = $6,
		    delivered_at = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $9
		  AND version = $10
	`,
		string(order.Status), string(order.PaymentStatus), order.TransactionID, tracking,
		order.PaidAt, order.ShippedAt, order.DeliveredAt, order.UpdatedAt,
		order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, existsErr := rowExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID)
		if existsErr != nil {
			err = existsErr
			return err
		}
		if !exists {
			err = domain.ErrOrderNotFound
			return err
		}
		err = domain.ErrOrderVersionConflict
		return err
	}

	var stored int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_status_history WHERE order_id = $1`, order.ID).Scan(&stored); err != nil {
		return fmt.Errorf("count order history: %w", err)
	}
	if len(order.History) < stored {
		err = domain.ErrHistoryMismatch
		return err
	}
	if err = insertHistory(ctx, tx, order.ID, stored, order.History[stored:]); err != nil {
		return err
	}

	now := r.now.Now()
	for _, msg := range events {
		if _, err = enqueueOutbox(ctx, tx, msg, now); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}
	return nil
}

func (r *orderRepository) loadChildren(ctx context.Context, order *domain.Order) error {
	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return err
	}
	history, err := r.loadHistory(ctx, order.ID)
	if err != nil {
		return err
	}
	order.Items = items
	order.History = history
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, name, image, unit_price, quantity, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Image, &item.UnitPrice, &item.Quantity, &item.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *orderRepository) loadHistory(ctx context.Context, orderID string) ([]domain.StatusEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, note, occurred_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.StatusEntry, 0)
	for rows.Next() {
		var (
			entry  domain.StatusEntry
			status string
		)
		if err := rows.Scan(&status, &entry.Note, &entry.At); err != nil {
			return nil, fmt.Errorf("scan order history: %w", err)
		}
		entry.Status = domain.OrderStatus(status)
		entry.At = entry.At.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order history: %w", err)
	}
	return history, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}
	payment, err := json.Marshal(order.PaymentMethod)
	if err != nil {
		return fmt.Errorf("encode payment method: %w", err)
	}
	tracking, err := encodeTracking(order.Tracking)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`,
		order.ID, order.Number, order.UserID, address, payment, order.Coupon,
		order.Subtotal, order.Discount, order.ShippingCost, order.Tax, order.Total,
		string(order.Status), string(order.PaymentStatus), order.TransactionID,
		tracking, order.PaidAt, order.ShippedAt, order.DeliveredAt, order.Version,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == "orders_number_key" {
				return domain.ErrOrderNumberTaken
			}
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, name, image, unit_price, quantity, subtotal
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			order.ID, i, item.ProductID, item.Name, item.Image, item.UnitPrice, item.Quantity, item.Subtotal,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return insertHistory(ctx, tx, order.ID, 0, order.History)
}

func insertHistory(ctx context.Context, tx *sql.Tx, orderID string, offset int, entries []domain.StatusEntry) error {
	for i, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, position, status, note, occurred_at)
			VALUES ($1,$2,$3,$4,$5)
		`, orderID, offset+i, string(entry.Status), entry.Note, entry.At); err != nil {
			return fmt.Errorf("insert order history: %w", err)
		}
	}
	return nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		address       []byte
		payment       []byte
		tracking      []byte
		status        string
		paymentStatus string
		paidAt        sql.NullTime
		shippedAt     sql.NullTime
		deliveredAt   sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.Number, &order.UserID, &address, &payment, &order.Coupon,
		&order.Subtotal, &order.Discount, &order.ShippingCost, &order.Tax, &order.Total,
		&status, &paymentStatus, &order.TransactionID, &tracking,
		&paidAt, &shippedAt, &deliveredAt, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}

	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.PaidAt = nullTime(paidAt)
	order.ShippedAt = nullTime(shippedAt)
	order.DeliveredAt = nullTime(deliveredAt)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return domain.Order{}, fmt.Errorf("decode shipping address: %w", err)
	}
	if err := json.Unmarshal(payment, &order.PaymentMethod); err != nil {
		return domain.Order{}, fmt.Errorf("decode payment method: %w", err)
	}
	if len(tracking) > 0 {
		order.Tracking = &domain.Tracking{}
		if err := json.Unmarshal(tracking, order.Tracking); err != nil {
			return domain.Order{}, fmt.Errorf("decode tracking: %w", err)
		}
	}
	return order, nil
}

func encodeTracking(tracking *domain.Tracking) ([]byte, error) {
	if tracking == nil {
		return nil, nil
	}
	raw, err := json.Marshal(tracking)
	if err != nil {
		return nil, fmt.Errorf("encode tracking: %w", err)
	}
	return raw, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

var _ domain.OrderRepository = (*orderRepository)(nil)
