package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepositoryInMemory struct {
	store *Store
}

// NewProductRepository возвращает in-memory каталог поверх общего Store.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepositoryInMemory{store: store}
}

func (r *productRepositoryInMemory) List(_ context.Context, filter domain.ProductFilter, page domain.PageRequest) (domain.Page[domain.Product], error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Product, 0, len(r.store.products))
	for _, p := range r.store.products {
		if p.Deleted() {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.SKU), needle) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return domain.Paginate(result, page), nil
}

// Create сохраняет товар, если sku не занят ни одним товаром, включая удалённые.
func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.skuTaken(product.SKU, 0) {
		return domain.Product{}, &domain.ConflictError{Field: "sku", Message: "SKU already exists"}
	}

	r.store.nextProductID++
	now := r.store.now()
	product.ID = r.store.nextProductID
	product.CreatedAt = now
	product.UpdatedAt = now
	product.DeletedAt = nil
	r.store.products[product.ID] = product
	return product, nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id int64) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.products[id]
	if !ok || p.Deleted() {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (r *productRepositoryInMemory) Update(_ context.Context, product domain.Product) (domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.products[product.ID]
	if !ok || current.Deleted() {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if r.store.skuTaken(product.SKU, product.ID) {
		return domain.Product{}, &domain.ConflictError{Field: "sku", Message: "SKU already exists"}
	}

	current.Name = product.Name
	current.SKU = product.SKU
	current.Price = product.Price
	current.Stock = product.Stock
	current.UpdatedAt = r.store.now()
	r.store.products[current.ID] = current
	return current, nil
}

func (r *productRepositoryInMemory) SoftDelete(_ context.Context, id int64, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p, ok := r.store.products[id]
	if !ok || p.Deleted() {
		return domain.ErrProductNotFound
	}
	p.DeletedAt = &at
	p.UpdatedAt = at
	r.store.products[id] = p
	return nil
}

func (r *productRepositoryInMemory) SKUExists(_ context.Context, sku string, excludeID int64) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.skuTaken(sku, excludeID), nil
}

// skuTaken вызывается под s.mu.
func (s *Store) skuTaken(sku string, excludeID int64) bool {
	for id, p := range s.products {
		if id != excludeID && p.SKU == sku {
			return true
		}
	}
	return false
}
