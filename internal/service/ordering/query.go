package ordering

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Query читает заказы пользователя.
type Query struct {
	orders domain.OrderRepository
}

// NewQuery создаёт сервис чтения заказов.
func NewQuery(orders domain.OrderRepository) *Query {
	return &Query{orders: orders}
}

// ListOrders возвращает страницу заказов actingUserID, новые первыми.
func (q *Query) ListOrders(ctx context.Context, actingUserID int64, page int) (domain.Page[domain.Order], error) {
	if actingUserID <= 0 {
		return domain.Page[domain.Order]{}, domain.ErrUnauthenticated
	}
	result, err := q.orders.ListByUser(ctx, actingUserID, domain.PageRequest{Page: page, PerPage: domain.DefaultPerPage})
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	return result, nil
}

// GetOrder возвращает заказ владельца. Чужой заказ неотличим от отсутствующего.
func (q *Query) GetOrder(ctx context.Context, actingUserID, orderID int64) (domain.Order, error) {
	if actingUserID <= 0 {
		return domain.Order{}, domain.ErrUnauthenticated
	}
	order, err := q.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != actingUserID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}
