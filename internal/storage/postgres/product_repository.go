package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const productColumns = `id, name, sku, price, stock, created_at, updated_at, deleted_at`

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter, page domain.PageRequest) (domain.Page[domain.Product], error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page = page.Normalize()
	pattern := likePattern(filter.Search)

	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM products
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR name ILIKE $1 OR sku ILIKE $1)
	`, pattern).Scan(&total); err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("count products: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR name ILIKE $1 OR sku ILIKE $1)
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, pattern, page.PerPage, page.Offset())
	if err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, page.PerPage)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return domain.Page[domain.Product]{}, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("iterate products: %w", err)
	}

	return domain.NewPage(page, products, total), nil
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, sku, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+productColumns,
		product.Name, product.SKU, product.Price, product.Stock,
	)
	created, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, mapProductWriteError("insert product", err)
	}
	return created, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND deleted_at IS NULL
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	updated, err := scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, sku = $3, price = $4, stock = $5, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+productColumns,
		product.ID, product.Name, product.SKU, product.Price, product.Stock,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, mapProductWriteError("update product", err)
	}
	return updated, nil
}

func (r *productRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("soft delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for product delete: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// SKUExists учитывает и удалённые товары: ограничение уникальности в таблице общее.
func (r *productRepository) SKUExists(ctx context.Context, sku string, excludeID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE sku = $1 AND id <> $2)
	`, sku, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check sku: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p         domain.Product
		deletedAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt, &deletedAt); err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		p.DeletedAt = &t
	}
	return p, nil
}

func mapProductWriteError(op string, err error) error {
	if constraint, ok := isUniqueViolation(err); ok && constraint == "products_sku_key" {
		return &domain.ConflictError{Field: "sku", Message: "SKU already exists"}
	}
	if isCheckViolation(err) {
		return fmt.Errorf("%s: %w", op, domain.ErrInvalidInput)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// likePattern экранирует спецсимволы LIKE и оборачивает строку в %...%.
// Пустой поиск даёт пустой шаблон, что отключает фильтр.
func likePattern(search string) string {
	search = strings.TrimSpace(search)
	if search == "" {
		return ""
	}
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(search) + "%"
}
