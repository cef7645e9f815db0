package memory

import (
	"github.com/techstore/storefront/internal/domain"
)

// OutboxRepository — outbox поверх общего Store; используется воркером публикации.
type OutboxRepository struct {
	store *Store
}

// Enqueue сохраняет событие со статусом `pending` вне транзакции заказа.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enqueueLocked(msg), nil
}

// PullPending возвращает до limit сообщений со статусом `pending`, старые первыми.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := s.pendingLocked()
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := s.pendingLocked()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	for _, rec := range pending {
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует окончательную ошибку публикации.
func (r *OutboxRepository) MarkFailed(id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *OutboxRepository) mark(id, status string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = s.now.Now()
	return nil
}

// AllPending возвращает копию всех pending-сообщений (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	pending, _ := r.PullPending(1 << 30)
	return pending
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
