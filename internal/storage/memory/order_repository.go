package memory

import (
	"context"
	"sort"

	"github.com/techstore/storefront/internal/domain"
)

const defaultOrderLimit = 20

type orderRepository struct {
	store *Store
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// List возвращает заказы по фильтру, новые первыми.
func (r *orderRepository) List(_ context.Context, filter domain.OrderFilter) (domain.Page[domain.Order], error) {
	req := filter.Page.Normalize(defaultOrderLimit)

	s := r.store
	s.mu.RLock()
	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return domain.Page[domain.Order]{
		Items:       domain.Window(result, req),
		Total:       len(result),
		PageRequest: req,
	}, nil
}

// Save перезаписывает заказ, проверяя версию, и ставит события в outbox атомарно.
func (r *orderRepository) Save(_ context.Context, order domain.Order, events ...domain.OutboxMessage) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	if len(order.History) < len(current.History) {
		return domain.ErrHistoryMismatch
	}

	order.Version++
	s.orders[order.ID] = cloneOrder(order)
	for _, msg := range events {
		s.enqueueLocked(msg)
	}
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
