package domain

import (
	"context"
	"time"
)

// ProductRepository описывает хранилище каталога вне транзакции покупки.
type ProductRepository interface {
	// Create сохраняет новый товар; ErrSKUTaken при повторе SKU.
	Create(ctx context.Context, product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// GetBySlug возвращает товар по slug или ErrProductNotFound.
	GetBySlug(ctx context.Context, slug string) (Product, error)
	// List возвращает страницу каталога по фильтру.
	List(ctx context.Context, filter ProductFilter) (Page[Product], error)
	// Save применяет изменения с учётом optimistic locking по Version.
	Save(ctx context.Context, product Product) error
	// IncrementViews атомарно увеличивает счётчик просмотров на единицу.
	IncrementViews(ctx context.Context, id string) error
	// CategoryStats считает активные товары по категориям.
	CategoryStats(ctx context.Context) ([]CategoryCount, error)
}

// OrderRepository описывает требования к хранилищу заказов после их создания.
type OrderRepository interface {
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы по фильтру, новые первыми.
	List(ctx context.Context, filter OrderFilter) (Page[Order], error)
	// Save применяет обновления к заказу с учётом optimistic locking и
	// в той же транзакции ставит события в outbox.
	Save(ctx context.Context, order Order, events ...OutboxMessage) error
}

// UserRepository хранит учётные записи.
type UserRepository interface {
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, page PageRequest) (Page[User], error)
	Save(ctx context.Context, user User) error
}

// TxManager выполняет fn в одной атомарной транзакции: при ошибке fn
// все изменения откатываются.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx — набор операций, доступных внутри транзакции оформления заказа.
type Tx interface {
	Products() ProductTx
	Orders() OrderTx
	Outbox() OutboxTx
}

// ProductTx — операции над остатками внутри транзакции.
type ProductTx interface {
	// LockForUpdate блокирует строки товаров до конца транзакции.
	// Блокировка берётся в порядке возрастания id.
	LockForUpdate(ctx context.Context, ids []string) error
	// Get читает товар в рамках транзакции.
	Get(ctx context.Context, id string) (Product, error)
	// DecrementStock уменьшает остаток и увеличивает продажи, только если
	// остаток не меньше qty; иначе ErrInsufficientStock без изменений.
	DecrementStock(ctx context.Context, id string, qty int) error
}

// OrderTx — создание заказа внутри транзакции.
type OrderTx interface {
	NumberExists(ctx context.Context, number string) (bool, error)
	// Create сохраняет заказ; ErrOrderNumberTaken при повторе номера.
	Create(ctx context.Context, order Order) error
}

// OutboxTx ставит события в outbox в той же транзакции.
type OutboxTx interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository используется воркером публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по Idempotency-Key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// Clock отдаёт текущее время; подменяется в тестах.
type Clock func() time.Time

// Now возвращает время часов или time.Now в UTC, если часы не заданы.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
