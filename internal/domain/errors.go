package domain

import (
	"errors"
	"fmt"
)

// Базовые категории ошибок. Транспортный слой сопоставляет их с кодами ответа.
var (
	// ErrNotFound — сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrValidation — входные данные нарушают контракт.
	ErrValidation = errors.New("validation failed")
	// ErrConflict — конфликт уникальности или состояния.
	ErrConflict = errors.New("conflict")
	// ErrForbidden — у пользователя нет прав на операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated — отсутствует или просрочен токен.
	ErrUnauthenticated = errors.New("unauthenticated")
)

var (
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrProductInactive — товар снят с продажи.
	ErrProductInactive = errors.New("product is not available")
	// ErrInsufficientStock — остатка не хватает на запрошенное количество.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidStatus — статус вне допустимого перечисления.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidTransition — переход запрещён графом статусов.
	ErrInvalidTransition = errors.New("order status transition is not allowed")
	// ErrOrderAlreadyPaid — оплата заказа уже зарегистрирована.
	ErrOrderAlreadyPaid = fmt.Errorf("order is already paid: %w", ErrConflict)
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = fmt.Errorf("order version %w", ErrConflict)
	// ErrProductVersionConflict сигнализирует о параллельном изменении товара.
	ErrProductVersionConflict = fmt.Errorf("product version %w", ErrConflict)
	// ErrOrderNumberTaken — сгенерированный номер заказа уже занят.
	ErrOrderNumberTaken = fmt.Errorf("order number %w", ErrConflict)
	// ErrSKUTaken — товар с таким SKU уже существует.
	ErrSKUTaken = fmt.Errorf("sku already exists: %w", ErrConflict)
	// ErrEmailTaken — email уже зарегистрирован.
	ErrEmailTaken = fmt.Errorf("email already registered: %w", ErrConflict)

	// ErrItemsRequired — в заказе нет ни одной позиции.
	ErrItemsRequired = fmt.Errorf("order must contain at least one item: %w", ErrValidation)
	// ErrItemQtyInvalid — количество позиции вне диапазона 1..MaxItemQuantity.
	ErrItemQtyInvalid = fmt.Errorf("item quantity must be between 1 and %d: %w", MaxItemQuantity, ErrValidation)
	// ErrPriceNegative — отрицательная цена.
	ErrPriceNegative = fmt.Errorf("price must be non-negative: %w", ErrValidation)
	// ErrStockNegative — отрицательный остаток.
	ErrStockNegative = fmt.Errorf("stock must be non-negative: %w", ErrValidation)
	// ErrUserRequired — заказ без владельца.
	ErrUserRequired = fmt.Errorf("user id is required: %w", ErrValidation)
	// ErrTotalMismatch — итог не сходится с суммой составляющих.
	ErrTotalMismatch = errors.New("order total does not match its components")
	// ErrSubtotalMismatch — подытог позиции не равен цене, умноженной на количество.
	ErrSubtotalMismatch = errors.New("line subtotal does not match price times quantity")
	// ErrHistoryMismatch — текущий статус не совпадает с последней записью истории.
	ErrHistoryMismatch = errors.New("order status does not match the last history entry")

	// ErrInvalidCredentials — неверный email или пароль.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthenticated)
	// ErrInvalidToken — токен не прошёл проверку подписи или срока.
	ErrInvalidToken = fmt.Errorf("invalid or expired token: %w", ErrUnauthenticated)
	// ErrAccountDisabled — учётная запись деактивирована.
	ErrAccountDisabled = fmt.Errorf("account is disabled: %w", ErrForbidden)
	// ErrWrongPassword — текущий пароль не совпал при смене.
	ErrWrongPassword = fmt.Errorf("current password is incorrect: %w", ErrValidation)

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// ProductError привязывает ошибку покупки к конкретному товару.
type ProductError struct {
	ProductID string
	Name      string
	Err       error
}

func (e *ProductError) Error() string {
	label := e.Name
	if label == "" {
		label = e.ProductID
	}
	return fmt.Sprintf("product %s: %v", label, e.Err)
}

func (e *ProductError) Unwrap() error {
	return e.Err
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrProductVersionConflict)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
