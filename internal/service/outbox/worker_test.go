package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/metrics"
	"github.com/techstore/storefront/internal/storage/memory"
)

func newTestWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	base := []Option{
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	}
	return NewWorker(repo, publisher, append(base, opts...)...)
}

func orderEvent(id string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-" + id,
		EventType:     domain.EventOrderStatusChanged,
		Payload:       []byte(`{"status":"shipped"}`),
	}
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderEvent("msg-1")}}
	publisher := &stubPublisher{}

	sent := newTestWorker(repo, publisher).ProcessOnce(context.Background())

	if sent != 1 {
		t.Fatalf("expected 1 sent message, got %d", sent)
	}
	if len(repo.sentIDs) != 1 || repo.sentIDs[0] != "msg-1" {
		t.Fatalf("unexpected sent marks: %v", repo.sentIDs)
	}
	if len(repo.failedIDs) != 0 {
		t.Fatalf("expected no failed marks, got %v", repo.failedIDs)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderEvent("msg-2")}}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	worker := newTestWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithClock(func() time.Time { return at }),
	)
	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if len(repo.sentIDs) != 0 {
		t.Fatalf("expected no sent marks, got %v", repo.sentIDs)
	}
	if len(repo.failedIDs) != 1 || repo.failedIDs[0] != "msg-2" {
		t.Fatalf("unexpected failed marks: %v", repo.failedIDs)
	}
	if got := dlq.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}

	var letter domain.DeadLetter
	if err := json.Unmarshal(dlq.last.Payload, &letter); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if letter.OutboxID != "msg-2" || letter.AggregateID != "order-msg-2" {
		t.Fatalf("unexpected dead letter: %+v", letter)
	}
	if !letter.DLQPublishedAt.Equal(at) {
		t.Fatalf("unexpected dead letter time: %v", letter.DLQPublishedAt)
	}
	if string(letter.Message().Payload) != `{"status":"shipped"}` {
		t.Fatalf("original payload lost: %s", letter.Payload)
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderEvent("msg-3")}}
	publisher := &stubPublisher{
		sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil},
	}

	newTestWorker(repo, publisher).ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if len(repo.sentIDs) != 1 {
		t.Fatalf("expected 1 sent mark, got %v", repo.sentIDs)
	}
	if len(repo.failedIDs) != 0 {
		t.Fatalf("expected no failed marks, got %v", repo.failedIDs)
	}
}

func TestWorker_ProcessOnce_DrainsMemoryOutbox(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, id := range []string{"a", "b"} {
			if _, err := tx.Outbox().Enqueue(ctx, orderEvent(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	publisher := &stubPublisher{}
	worker := newTestWorker(store.Outbox(), publisher)

	if sent := worker.ProcessOnce(context.Background()); sent != 2 {
		t.Fatalf("expected 2 sent messages, got %d", sent)
	}
	if sent := worker.ProcessOnce(context.Background()); sent != 0 {
		t.Fatalf("expected drained outbox, got %d", sent)
	}
	if pending := store.Outbox().AllPending(); len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(10*time.Millisecond))

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, expected := range want {
		if got := worker.retryBackoff(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, expected, got)
		}
	}
	if got := worker.retryBackoff(200); got <= 0 {
		t.Fatalf("backoff must saturate, got %v", got)
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(&stubOutboxRepo{}, &stubPublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubOutboxRepo struct {
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	last           domain.OutboxMessage
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.last = event
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)
