// Package catalog управляет каталогом товаров: выборка с поиском,
// создание, изменение и мягкое удаление.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/validation"
)

// ProductInput — поля товара при создании и изменении.
type ProductInput struct {
	Name  string           `json:"name" validate:"required,max=255"`
	SKU   string           `json:"sku" validate:"required,max=50"`
	Price *decimal.Decimal `json:"price" validate:"required"`
	Stock *int             `json:"stock" validate:"required,min=0"`
}

var productMessages = validation.Messages{
	"name.required":  "Product name is required",
	"name.max":       "Product name may not be greater than 255 characters",
	"sku.required":   "SKU is required",
	"sku.max":        "SKU may not be greater than 50 characters",
	"price.required": "Price is required",
	"stock.required": "Stock is required",
	"stock.min":      "Stock must be at least 0",
}

// Service — операции каталога поверх ProductRepository.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		products: products,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List возвращает страницу товаров. Номер страницы меньше 1 считается первой.
func (s *Service) List(ctx context.Context, search string, page int) (domain.Page[domain.Product], error) {
	result, err := s.products.List(ctx, domain.ProductFilter{Search: search}, domain.PageRequest{Page: page, PerPage: domain.DefaultPerPage})
	if err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	return result, nil
}

// Create проверяет ввод и уникальность sku, затем сохраняет товар.
func (s *Service) Create(ctx context.Context, in ProductInput) (domain.Product, error) {
	product, err := s.build(in)
	if err != nil {
		return domain.Product{}, err
	}

	taken, err := s.products.SKUExists(ctx, product.SKU, 0)
	if err != nil {
		return domain.Product{}, fmt.Errorf("check sku: %w", err)
	}
	if taken {
		return domain.Product{}, skuConflict()
	}

	created, err := s.products.Create(ctx, product)
	if err != nil {
		return domain.Product{}, wrapUnlessKnown("create product", err)
	}

	s.logger.WithFields(log.Fields{"product_id": created.ID, "sku": created.SKU}).Info("Product created")
	return created, nil
}

// Get возвращает не удалённый товар.
func (s *Service) Get(ctx context.Context, id int64) (domain.Product, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, wrapUnlessKnown("get product", err)
	}
	return p, nil
}

// Update заменяет поля товара. Свой sku товара конфликтом не считается.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (domain.Product, error) {
	if _, err := s.products.Get(ctx, id); err != nil {
		return domain.Product{}, wrapUnlessKnown("get product", err)
	}

	product, err := s.build(in)
	if err != nil {
		return domain.Product{}, err
	}
	product.ID = id

	taken, err := s.products.SKUExists(ctx, product.SKU, id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("check sku: %w", err)
	}
	if taken {
		return domain.Product{}, skuConflict()
	}

	updated, err := s.products.Update(ctx, product)
	if err != nil {
		return domain.Product{}, wrapUnlessKnown("update product", err)
	}

	s.logger.WithField("product_id", id).Info("Product updated")
	return updated, nil
}

// Delete помечает товар удалённым. Повторное удаление даёт NotFound.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.products.SoftDelete(ctx, id, s.now()); err != nil {
		return wrapUnlessKnown("delete product", err)
	}
	s.logger.WithField("product_id", id).Info("Product deleted")
	return nil
}

func (s *Service) build(in ProductInput) (domain.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.TrimSpace(in.SKU)

	if err := validation.Struct(in, productMessages); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:  in.Name,
		SKU:   in.SKU,
		Price: in.Price.Round(domain.PriceScale),
		Stock: *in.Stock,
	}
	if err := domain.ValidateProduct(product); err != nil {
		return domain.Product{}, err
	}
	if product.Price.GreaterThan(domain.MaxAmount) {
		return domain.Product{}, domain.NewValidationError("price", "Price may not be greater than 9999999999.99")
	}
	return product, nil
}

func skuConflict() error {
	return &domain.ConflictError{Field: "sku", Message: "SKU already exists"}
}

// wrapUnlessKnown оставляет доменные ошибки как есть, остальные оборачивает контекстом.
func wrapUnlessKnown(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidInput):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
