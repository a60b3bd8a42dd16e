package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidInput — некорректные или отсутствующие поля запроса (исправляется клиентом).
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict — нарушение уникальности (sku, email).
	ErrConflict = errors.New("conflict")
	// ErrNotFound — сущность отсутствует или помечена удалённой.
	ErrNotFound = errors.New("not found")
	// ErrStockInsufficient — на складе недостаточно товара для позиции заказа.
	ErrStockInsufficient = errors.New("stock insufficient")
	// ErrUnauthenticated — нет активной сессии.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized — неверные учётные данные.
	ErrUnauthorized = errors.New("invalid credentials")

	// ErrProductNotFound возвращается, если товар не найден или удалён.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrSessionNotFound — сессия истекла или была отозвана.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибка отсутствующего владельца заказа.
	ErrOrderUserRequired = errors.New("order user_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrOrderItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrOrderAmountNegative = errors.New("order total_amount must be non-negative")
	// Ошибка неизвестного статуса.
	ErrOrderStatusInvalid = errors.New("order status is invalid")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrOrderItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrOrderItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrOrderAmountMismatch = errors.New("order total does not match items sum")
)

// FieldErrors хранит сообщения об ошибках по именам полей запроса.
type FieldErrors map[string][]string

// Add добавляет сообщение к полю.
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Empty сообщает, что ошибок нет.
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// ValidationError описывает ошибки валидации по полям. Оборачивает ErrInvalidInput.
type ValidationError struct {
	Fields FieldErrors
}

// NewValidationError создаёт ошибку с одним полем.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: FieldErrors{field: {message}}}
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(e.Fields[field], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// ConflictError сообщает о нарушении уникальности конкретного поля.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StockError описывает первую позицию заказа, для которой не хватило остатка.
type StockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("Insufficient stock for '%s'. Available: %d", e.ProductName, e.Available)
}

func (e *StockError) Unwrap() error { return ErrStockInsufficient }

// AsFieldErrors приводит ошибку валидации или конфликта к набору ошибок по полям.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields, true
	}
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return FieldErrors{conflictErr.Field: {conflictErr.Message}}, true
	}
	return nil, false
}
