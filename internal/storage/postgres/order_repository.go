package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return loadOrder(ctx, r.db, id)
}

func (r *orderRepository) ListByUser(ctx context.Context, userID int64, page domain.PageRequest) (domain.Page[domain.Order], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page = page.Normalize()

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders WHERE user_id = $1 AND deleted_at IS NULL
	`, userID).Scan(&total); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("count orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, orderSelect+`
		WHERE o.user_id = $1 AND o.deleted_at IS NULL
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3
	`, userID, page.PerPage, page.Offset())
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, page.PerPage)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("iterate orders: %w", err)
	}

	if err := attachItems(ctx, r.db, orders); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return domain.NewPage(page, orders, total), nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	if !status.Valid() {
		return domain.ErrOrderStatusInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, int16(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for order status: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

const orderSelect = `
	SELECT o.id, o.user_id, o.total_amount, o.status, o.created_at, o.updated_at,
	       u.id, u.name, u.email
	FROM orders o
	JOIN users u ON u.id = o.user_id
`

// loadOrder читает заказ вместе с пользователем и позициями.
func loadOrder(ctx context.Context, q queryer, id int64) (domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, orderSelect+`
		WHERE o.id = $1 AND o.deleted_at IS NULL
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	orders := []domain.Order{order}
	if err := attachItems(ctx, q, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status int16
		user   domain.UserRef
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &order.TotalAmount, &status, &order.CreatedAt, &order.UpdatedAt,
		&user.ID, &user.Name, &user.Email,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	order.User = &user
	return order, nil
}

// attachItems одним запросом подгружает позиции и товары для всех заказов.
// Удалённые товары остаются видимыми в позициях.
func attachItems(ctx context.Context, q queryer, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	index := make(map[int64]int, len(orders))
	for i, order := range orders {
		ids = append(ids, order.ID)
		index[order.ID] = i
		orders[i].Items = make([]domain.OrderItem, 0)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT i.id, i.order_id, i.product_id, i.quantity, i.price, i.created_at,
		       p.id, p.name, p.sku, p.price
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1) AND i.deleted_at IS NULL
		ORDER BY i.order_id, i.id
	`, ids)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    domain.OrderItem
			product domain.ProductRef
		)
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price, &item.CreatedAt,
			&product.ID, &product.Name, &product.SKU, &product.Price,
		); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		item.Product = &product

		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
