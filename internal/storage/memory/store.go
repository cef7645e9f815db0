package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/techstore/storefront/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// Store — in-memory хранилище каталога, заказов и outbox под одной блокировкой.
// Транзакция держит блокировку целиком, поэтому транзакции сериализуются,
// а изменения применяются только при успешном завершении fn.
type Store struct {
	mu sync.RWMutex

	products map[string]domain.Product
	skus     map[string]string

	orders  map[string]domain.Order
	numbers map[string]string

	outbox    map[string]*outboxRecord
	outboxSeq int64

	now domain.Clock
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник времени.
func WithClock(clock domain.Clock) Option {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore(opts ...Option) *Store {
	s := &Store{
		products: make(map[string]domain.Product),
		skus:     make(map[string]string),
		orders:   make(map[string]domain.Order),
		numbers:  make(map[string]string),
		outbox:   make(map[string]*outboxRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Products возвращает репозиторий каталога поверх хранилища.
func (s *Store) Products() domain.ProductRepository {
	return &productRepository{store: s}
}

// Orders возвращает репозиторий заказов поверх хранилища.
func (s *Store) Orders() domain.OrderRepository {
	return &orderRepository{store: s}
}

// Outbox возвращает outbox-репозиторий для воркера публикации.
func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{store: s}
}

// WithinTx выполняет fn под эксклюзивной блокировкой хранилища.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:    s,
		products: make(map[string]domain.Product),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// enqueueLocked ставит сообщение в outbox; вызывается под s.mu.
func (s *Store) enqueueLocked(msg domain.OutboxMessage) domain.OutboxMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := s.now.Now()
	s.outboxSeq++
	s.outbox[msg.ID] = &outboxRecord{
		msg:       msg,
		seq:       s.outboxSeq,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	}
	return msg
}

type memTx struct {
	store    *Store
	products map[string]domain.Product
	orders   []domain.Order
	events   []domain.OutboxMessage
}

func (t *memTx) Products() domain.ProductTx { return (*productTx)(t) }
func (t *memTx) Orders() domain.OrderTx     { return (*orderTx)(t) }
func (t *memTx) Outbox() domain.OutboxTx    { return (*outboxTx)(t) }

func (t *memTx) commit() {
	s := t.store
	for id, product := range t.products {
		s.products[id] = product
	}
	for _, order := range t.orders {
		s.orders[order.ID] = order
		s.numbers[order.Number] = order.ID
	}
	for _, msg := range t.events {
		s.enqueueLocked(msg)
	}
}

type productTx memTx

// LockForUpdate ничего не делает: вся транзакция уже держит блокировку хранилища.
func (t *productTx) LockForUpdate(ctx context.Context, _ []string) error {
	return ctx.Err()
}

func (t *productTx) Get(_ context.Context, id string) (domain.Product, error) {
	if staged, ok := t.products[id]; ok {
		return cloneProduct(staged), nil
	}
	product, ok := t.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(product), nil
}

func (t *productTx) DecrementStock(ctx context.Context, id string, qty int) error {
	product, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if qty < 1 {
		return domain.ErrItemQtyInvalid
	}
	if !product.HasStock(qty) {
		return domain.ErrInsufficientStock
	}

	product.Stock -= qty
	product.Sold += qty
	product.Version++
	product.UpdatedAt = t.store.now.Now()
	t.products[id] = product
	return nil
}

type orderTx memTx

func (t *orderTx) NumberExists(_ context.Context, number string) (bool, error) {
	if _, ok := t.store.numbers[number]; ok {
		return true, nil
	}
	for _, staged := range t.orders {
		if staged.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *orderTx) Create(ctx context.Context, order domain.Order) error {
	exists, err := t.NumberExists(ctx, order.Number)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrOrderNumberTaken
	}
	if _, ok := t.store.orders[order.ID]; ok {
		return domain.ErrOrderVersionConflict
	}
	if order.Version == 0 {
		order.Version = 1
	}
	t.orders = append(t.orders, cloneOrder(order))
	return nil
}

type outboxTx memTx

func (t *outboxTx) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	t.events = append(t.events, msg)
	return msg, nil
}

// pendingLocked возвращает pending-записи в порядке постановки; вызывается под s.mu.
func (s *Store) pendingLocked() []*outboxRecord {
	pending := make([]*outboxRecord, 0, len(s.outbox))
	for _, rec := range s.outbox {
		if rec.status == outboxStatusPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	return pending
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.Images = append([]domain.ProductImage(nil), src.Images...)
	return dst
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.LineItem(nil), src.Items...)
	dst.History = append([]domain.StatusEntry(nil), src.History...)
	if src.Tracking != nil {
		tracking := *src.Tracking
		dst.Tracking = &tracking
	}
	dst.PaidAt = cloneTime(src.PaidAt)
	dst.ShippedAt = cloneTime(src.ShippedAt)
	dst.DeliveredAt = cloneTime(src.DeliveredAt)
	return dst
}

func cloneTime(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	t := *src
	return &t
}

var (
	_ domain.TxManager = (*Store)(nil)
	_ domain.Tx        = (*memTx)(nil)
)
