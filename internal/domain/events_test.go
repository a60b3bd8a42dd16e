package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestNewOrderCreatedMessage(t *testing.T) {
	order := domain.Order{
		ID:          42,
		UserID:      7,
		TotalAmount: decimal.RequireFromString("30.00"),
		Status:      domain.OrderStatusPending,
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Items: []domain.OrderItem{{
			ProductID: 3,
			Quantity:  2,
			Price:     decimal.RequireFromString("15.00"),
			Product:   &domain.ProductRef{ID: 3, SKU: "S24"},
		}},
	}

	msg, err := domain.NewOrderCreatedMessage(order)
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if msg.AggregateID != "42" || msg.EventType != domain.EventOrderCreated || msg.AggregateType != domain.AggregateOrder {
		t.Fatalf("unexpected envelope: %+v", msg)
	}

	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if event.Status != "pending" || len(event.Items) != 1 || event.Items[0].SKU != "S24" {
		t.Fatalf("unexpected payload: %+v", event)
	}
	if !event.TotalAmount.Equal(order.TotalAmount) {
		t.Fatalf("expected total %s, got %s", order.TotalAmount, event.TotalAmount)
	}
}
