package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type unitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork возвращает единицу работы на транзакции READ COMMITTED.
// Конкурентные оформления сериализуются блокировками строк товаров.
func NewUnitOfWork(store *Store) domain.UnitOfWork {
	return &unitOfWork{db: store.DB()}
}

func (u *unitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx domain.OrderTx) error) (err error) {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

// LockProducts берёт блокировки в порядке возрастания id, чтобы встречные заказы
// с пересекающимися товарами не взаимоблокировались.
func (t *pgTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1) AND deleted_at IS NULL
		ORDER BY id
		FOR UPDATE
	`, unique)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]domain.Product, len(unique))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan locked product: %w", err)
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locked products: %w", err)
	}
	return result, nil
}

func (t *pgTx) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := t.tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, total_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, order.UserID, order.TotalAmount, int16(order.Status)).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	items := make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		item.OrderID = order.ID
		if err := t.tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING id, created_at
		`, order.ID, item.ProductID, item.Quantity, item.Price).Scan(&item.ID, &item.CreatedAt); err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items[i] = item
	}
	order.Items = items
	return order, nil
}

// DecrementStock уменьшает остаток условным UPDATE: если строк не затронуто,
// остатка не хватает или товар исчез.
func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND stock >= $2
	`, productID, qty)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("decrement stock: %w", domain.ErrStockInsufficient)
		}
		return fmt.Errorf("decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for stock: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var (
		name  string
		stock int
	)
	err = t.tx.QueryRowContext(ctx, `
		SELECT name, stock FROM products WHERE id = $1 AND deleted_at IS NULL
	`, productID).Scan(&name, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("read stock: %w", err)
	}
	return &domain.StockError{ProductID: productID, ProductName: name, Available: stock, Requested: qty}
}

func (t *pgTx) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	return loadOrder(ctx, t.tx, id)
}

func (t *pgTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return insertOutbox(ctx, t.tx, msg)
}
