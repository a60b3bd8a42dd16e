package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type unitOfWork struct {
	store *Store
}

// NewUnitOfWork возвращает единицу работы, которая держит эксклюзивную блокировку Store
// на всё время fn и при ошибке отменяет только сделанные ею изменения.
func NewUnitOfWork(store *Store) domain.UnitOfWork {
	return &unitOfWork{store: store}
}

func (u *unitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx domain.OrderTx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	tx := newMemoryTx(u.store)
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	return fn(ctx, tx)
}

// memoryTx работает с состоянием без собственных блокировок: мьютекс держит unitOfWork.
// Откат ведётся журналом: исходные версии затронутых товаров, созданные заказы
// и сообщения outbox, значения счётчиков на старте.
type memoryTx struct {
	store *Store

	products map[int64]domain.Product
	orders   []int64
	outbox   map[string]*outboxRecord

	nextOrderID int64
	nextItemID  int64
	outboxSeq   int64
}

func newMemoryTx(store *Store) *memoryTx {
	return &memoryTx{
		store:       store,
		products:    make(map[int64]domain.Product),
		outbox:      make(map[string]*outboxRecord),
		nextOrderID: store.nextOrderID,
		nextItemID:  store.nextItemID,
		outboxSeq:   store.outboxSeq,
	}
}

// rollback возвращает затронутые записи и счётчики. Вызывается под s.mu.
func (t *memoryTx) rollback() {
	for id, p := range t.products {
		t.store.products[id] = p
	}
	for _, id := range t.orders {
		delete(t.store.orders, id)
	}
	for id, prev := range t.outbox {
		if prev == nil {
			delete(t.store.outbox, id)
			continue
		}
		t.store.outbox[id] = prev
	}
	t.store.nextOrderID = t.nextOrderID
	t.store.nextItemID = t.nextItemID
	t.store.outboxSeq = t.outboxSeq
}

func (t *memoryTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	result := make(map[int64]domain.Product, len(sorted))
	for _, id := range sorted {
		p, ok := t.store.products[id]
		if !ok || p.Deleted() {
			continue
		}
		result[id] = p
	}
	return result, nil
}

func (t *memoryTx) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if _, ok := t.store.users[order.UserID]; !ok {
		return domain.Order{}, fmt.Errorf("create order: %w", domain.ErrUserNotFound)
	}

	now := t.store.now()
	t.store.nextOrderID++
	order.ID = t.store.nextOrderID
	order.CreatedAt = now
	order.UpdatedAt = now
	order.DeletedAt = nil
	order.User = nil

	items := make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		t.store.nextItemID++
		item.ID = t.store.nextItemID
		item.OrderID = order.ID
		item.CreatedAt = now
		item.Product = nil
		items[i] = item
	}
	order.Items = items

	t.store.orders[order.ID] = order
	t.orders = append(t.orders, order.ID)
	return cloneOrder(order), nil
}

func (t *memoryTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := t.store.products[productID]
	if !ok || p.Deleted() {
		return domain.ErrProductNotFound
	}
	if p.Stock < qty {
		return &domain.StockError{ProductID: p.ID, ProductName: p.Name, Available: p.Stock, Requested: qty}
	}
	if _, seen := t.products[productID]; !seen {
		t.products[productID] = p
	}
	p.Stock -= qty
	p.UpdatedAt = t.store.now()
	t.store.products[productID] = p
	return nil
}

func (t *memoryTx) GetOrder(_ context.Context, id int64) (domain.Order, error) {
	return t.store.loadOrder(id)
}

func (t *memoryTx) EnqueueOutbox(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID != "" {
		if _, seen := t.outbox[msg.ID]; !seen {
			if prev, ok := t.store.outbox[msg.ID]; ok {
				rec := *prev
				t.outbox[msg.ID] = &rec
			}
		}
	}
	msg = t.store.enqueueOutbox(msg)
	if _, seen := t.outbox[msg.ID]; !seen {
		t.outbox[msg.ID] = nil
	}
	return msg, nil
}
