package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа. Хранится числом, как в исходной схеме.
type OrderStatus int16

const (
	// OrderStatusPending — заказ создан и ожидает подтверждения.
	OrderStatusPending OrderStatus = 0
	// OrderStatusConfirmed — заказ подтверждён.
	OrderStatusConfirmed OrderStatus = 1
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = 2
)

// String возвращает человекочитаемое имя статуса.
func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "pending"
	case OrderStatusConfirmed:
		return "confirmed"
	case OrderStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа. Неизменяема после создания.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	// Price — снимок цены товара на момент оформления.
	Price     decimal.Decimal
	CreatedAt time.Time
	// Product заполняется при чтении заказа вместе со связями.
	Product *ProductRef
}

// Subtotal возвращает price × quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          int64
	UserID      int64
	TotalAmount decimal.Decimal
	Status      OrderStatus
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	// User заполняется при чтении заказа вместе со связями.
	User *UserRef
}

// OrderLine — строка запроса на оформление заказа.
type OrderLine struct {
	ProductID int64
	Quantity  int
}

// SumItems считает сумму подытогов позиций.
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total.Round(PriceScale)
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID <= 0 {
		errs = append(errs, ErrOrderUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrOrderItemsRequired)
	}
	if o.TotalAmount.IsNegative() {
		errs = append(errs, ErrOrderAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}

	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrOrderItemQtyInvalid)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrOrderItemPriceInvalid)
		}
	}
	// Сверяем сумму заказа с суммой позиций: qty * price.
	if !SumItems(o.Items).Equal(o.TotalAmount) {
		errs = append(errs, ErrOrderAmountMismatch)
	}

	return errs
}
