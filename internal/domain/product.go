package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// ProductNameMaxLen — максимальная длина названия товара.
	ProductNameMaxLen = 255
	// ProductSKUMaxLen — максимальная длина артикула.
	ProductSKUMaxLen = 50
	// PriceScale — количество знаков после запятой в денежных суммах.
	PriceScale = 2
)

// MaxAmount — верхняя граница денежных колонок NUMERIC(12,2).
var MaxAmount = decimal.RequireFromString("9999999999.99")

// Product — позиция каталога.
type Product struct {
	ID        int64
	Name      string
	SKU       string
	Price     decimal.Decimal
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Deleted сообщает, что товар помечен удалённым.
func (p Product) Deleted() bool {
	return p.DeletedAt != nil
}

// ProductRef — облегчённое представление товара для позиций заказа.
type ProductRef struct {
	ID    int64
	Name  string
	SKU   string
	Price decimal.Decimal
}

// Ref возвращает ссылку на товар с полями, нужными заказу.
func (p Product) Ref() ProductRef {
	return ProductRef{ID: p.ID, Name: p.Name, SKU: p.SKU, Price: p.Price}
}

// ProductFilter задаёт параметры выборки каталога.
type ProductFilter struct {
	// Search — подстрока для поиска по name или sku без учёта регистра.
	Search string
}

// ValidateProduct проверяет инварианты товара, не зависящие от хранилища.
func ValidateProduct(p Product) error {
	fields := FieldErrors{}

	switch {
	case p.Name == "":
		fields.Add("name", "Product name is required")
	case len([]rune(p.Name)) > ProductNameMaxLen:
		fields.Add("name", "Product name may not be greater than 255 characters")
	}
	switch {
	case p.SKU == "":
		fields.Add("sku", "SKU is required")
	case len([]rune(p.SKU)) > ProductSKUMaxLen:
		fields.Add("sku", "SKU may not be greater than 50 characters")
	}
	if p.Price.IsNegative() {
		fields.Add("price", "Price must be at least 0")
	}
	if p.Stock < 0 {
		fields.Add("stock", "Stock must be at least 0")
	}

	if fields.Empty() {
		return nil
	}
	return &ValidationError{Fields: fields}
}
