package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepositoryInMemory читает заказы из общего Store.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// Get возвращает заказ со связями или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(_ context.Context, id int64) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.loadOrder(id)
}

// ListByUser возвращает заказы пользователя: новые первыми, при равном времени — больший id первым.
func (r *orderRepositoryInMemory) ListByUser(_ context.Context, userID int64, page domain.PageRequest) (domain.Page[domain.Order], error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids := make([]int64, 0)
	for id, order := range r.store.orders {
		if order.UserID != userID || order.DeletedAt != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := r.store.orders[ids[i]], r.store.orders[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	window := domain.Paginate(ids, page)
	orders := make([]domain.Order, 0, len(window.Items))
	for _, id := range window.Items {
		order, err := r.store.loadOrder(id)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		orders = append(orders, order)
	}
	return domain.NewPage(page, orders, window.Total), nil
}

func (r *orderRepositoryInMemory) UpdateStatus(_ context.Context, id int64, status domain.OrderStatus) error {
	if !status.Valid() {
		return domain.ErrOrderStatusInvalid
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	order, ok := r.store.orders[id]
	if !ok || order.DeletedAt != nil {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = r.store.now()
	r.store.orders[id] = order
	return nil
}

// loadOrder собирает граф заказа: пользователь и товары позиций. Вызывается под s.mu.
// Удалённые товары в позициях остаются видимыми, позиция ссылается на снимок цены.
func (s *Store) loadOrder(id int64) (domain.Order, error) {
	order, ok := s.orders[id]
	if !ok || order.DeletedAt != nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order = cloneOrder(order)

	if user, ok := s.users[order.UserID]; ok {
		ref := user.Ref()
		order.User = &ref
	}
	for i := range order.Items {
		if product, ok := s.products[order.Items[i].ProductID]; ok {
			ref := product.Ref()
			order.Items[i].Product = &ref
		}
	}
	return order, nil
}
