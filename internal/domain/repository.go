package domain

import (
	"context"
	"time"
)

// ProductRepository описывает требования к хранилищу каталога.
type ProductRepository interface {
	// List возвращает страницу не удалённых товаров в порядке создания.
	List(ctx context.Context, filter ProductFilter, page PageRequest) (Page[Product], error)
	// Create сохраняет товар. Занятый sku даёт *ConflictError.
	Create(ctx context.Context, product Product) (Product, error)
	// Get возвращает товар или ErrProductNotFound, если его нет или он удалён.
	Get(ctx context.Context, id int64) (Product, error)
	// Update перезаписывает поля не удалённого товара.
	Update(ctx context.Context, product Product) (Product, error)
	// SoftDelete проставляет deleted_at. Повторное удаление даёт ErrProductNotFound.
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	// SKUExists проверяет занятость sku среди всех товаров, включая удалённые.
	// excludeID позволяет не учитывать сам обновляемый товар.
	SKUExists(ctx context.Context, sku string, excludeID int64) (bool, error)
}

// UserRepository описывает хранилище пользователей.
type UserRepository interface {
	// Create сохраняет пользователя. Занятый email даёт *ConflictError.
	Create(ctx context.Context, user User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// Delete безвозвратно удаляет пользователя без заказов.
	Delete(ctx context.Context, id int64) error
}

// OrderRepository описывает чтение заказов вместе со связями.
type OrderRepository interface {
	// Get возвращает заказ с пользователем и позициями или ErrOrderNotFound.
	Get(ctx context.Context, id int64) (Order, error)
	// ListByUser возвращает страницу заказов пользователя, новые первыми.
	ListByUser(ctx context.Context, userID int64, page PageRequest) (Page[Order], error)
	// UpdateStatus меняет статус заказа (используется сидером и административными задачами).
	UpdateStatus(ctx context.Context, id int64, status OrderStatus) error
}

// SessionRepository хранит активные сессии.
type SessionRepository interface {
	Create(ctx context.Context, session Session) error
	// Get возвращает ErrSessionNotFound для отсутствующей или истёкшей сессии.
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// UnitOfWork выполняет функцию в одной атомарной транзакции.
// Ошибка из fn откатывает все изменения.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error
}

// OrderTx — операции, доступные внутри транзакции оформления заказа.
type OrderTx interface {
	// LockProducts блокирует строки товаров до конца транзакции и возвращает
	// найденные не удалённые товары. Отсутствующие id в результат не попадают.
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	// CreateOrder сохраняет заказ и позиции, проставляя идентификаторы.
	CreateOrder(ctx context.Context, order Order) (Order, error)
	// DecrementStock уменьшает остаток; ErrStockInsufficient, если остаток ушёл бы в минус.
	DecrementStock(ctx context.Context, productID int64, qty int) error
	// GetOrder читает заказ со связями в рамках транзакции.
	GetOrder(ctx context.Context, id int64) (Order, error)
	// EnqueueOutbox записывает событие в outbox той же транзакцией.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}
