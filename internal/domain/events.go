package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AggregateOrder    = "order"
	EventOrderCreated = "order.created"
)

// OutboxMessage — событие в transactional outbox. Payload хранится как JSON.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats — размер backlog и время самого старого pending-сообщения.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OrderCreatedItem — позиция в событии order.created.
type OrderCreatedItem struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderCreatedEvent — полезная нагрузка события order.created.
type OrderCreatedEvent struct {
	OrderID     int64              `json:"order_id"`
	UserID      int64              `json:"user_id"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Status      string             `json:"status"`
	Items       []OrderCreatedItem `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
}

// NewOrderCreatedMessage формирует outbox-сообщение для созданного заказа.
func NewOrderCreatedMessage(order Order) (OutboxMessage, error) {
	event := OrderCreatedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Status:      order.Status.String(),
		Items:       make([]OrderCreatedItem, 0, len(order.Items)),
		CreatedAt:   order.CreatedAt,
	}
	for _, item := range order.Items {
		line := OrderCreatedItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
		if item.Product != nil {
			line.SKU = item.Product.SKU
		}
		event.Items = append(event.Items, line)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal order.created: %w", err)
	}
	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     EventOrderCreated,
		Payload:       payload,
	}, nil
}
