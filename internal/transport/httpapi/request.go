package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/identity"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
)

// Тела запросов читаются в json.RawMessage: поле неверного типа даёт
// ошибку валидации 422, а 400 остаётся для JSON, который не разбирается.

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// wholeNumber принимает целое число или строку с целым числом.
func wholeNumber(raw json.RawMessage) (int64, bool) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

// text читает строковое поле; отсутствующее поле и null дают пустую строку.
func text(fields domain.FieldErrors, field, label string, raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		fields.Add(field, label+" must be a string")
	}
	return s
}

func validationErr(fields domain.FieldErrors) error {
	if fields.Empty() {
		return nil
	}
	return &domain.ValidationError{Fields: fields}
}

// productRequest принимает price и stock как числа или строки.
type productRequest struct {
	Name  json.RawMessage `json:"name"`
	SKU   json.RawMessage `json:"sku"`
	Price json.RawMessage `json:"price"`
	Stock json.RawMessage `json:"stock"`
}

func (req productRequest) input() (catalog.ProductInput, error) {
	fields := domain.FieldErrors{}
	in := catalog.ProductInput{
		Name: text(fields, "name", "Name", req.Name),
		SKU:  text(fields, "sku", "SKU", req.SKU),
	}

	if present(req.Price) {
		var price decimal.Decimal
		if err := price.UnmarshalJSON(req.Price); err != nil {
			fields.Add("price", "Price must be a valid number")
		} else {
			in.Price = &price
		}
	}
	if present(req.Stock) {
		if stock, ok := wholeNumber(req.Stock); ok {
			n := int(stock)
			in.Stock = &n
		} else {
			fields.Add("stock", "Stock must be a whole number")
		}
	}

	if err := validationErr(fields); err != nil {
		return catalog.ProductInput{}, err
	}
	return in, nil
}

type orderLineRequest struct {
	ProductID json.RawMessage `json:"product_id"`
	Quantity  json.RawMessage `json:"quantity"`
}

type orderRequest struct {
	Items json.RawMessage `json:"items"`
}

// input оставляет отсутствующие поля нулевыми: обязательность проверяет Workflow.
func (req orderRequest) input() (ordering.PlaceOrderInput, error) {
	if !present(req.Items) {
		return ordering.PlaceOrderInput{}, nil
	}

	var lines []orderLineRequest
	if err := json.Unmarshal(req.Items, &lines); err != nil {
		return ordering.PlaceOrderInput{}, domain.NewValidationError("items", "Order items must be a list")
	}

	fields := domain.FieldErrors{}
	in := ordering.PlaceOrderInput{Items: make([]ordering.LineInput, len(lines))}
	for i, line := range lines {
		if present(line.ProductID) {
			if id, ok := wholeNumber(line.ProductID); ok {
				in.Items[i].ProductID = id
			} else {
				fields.Add(fmt.Sprintf("items.%d.product_id", i), "Product id must be a whole number")
			}
		}
		if present(line.Quantity) {
			if qty, ok := wholeNumber(line.Quantity); ok {
				in.Items[i].Quantity = int(qty)
			} else {
				fields.Add(fmt.Sprintf("items.%d.quantity", i), "Quantity must be a whole number")
			}
		}
	}

	if err := validationErr(fields); err != nil {
		return ordering.PlaceOrderInput{}, err
	}
	return in, nil
}

type registerRequest struct {
	Name                 json.RawMessage `json:"name"`
	Email                json.RawMessage `json:"email"`
	Password             json.RawMessage `json:"password"`
	PasswordConfirmation json.RawMessage `json:"password_confirmation"`
}

func (req registerRequest) input() (identity.RegisterInput, error) {
	fields := domain.FieldErrors{}
	in := identity.RegisterInput{
		Name:                 text(fields, "name", "Name", req.Name),
		Email:                text(fields, "email", "Email", req.Email),
		Password:             text(fields, "password", "Password", req.Password),
		PasswordConfirmation: text(fields, "password_confirmation", "Password confirmation", req.PasswordConfirmation),
	}
	if err := validationErr(fields); err != nil {
		return identity.RegisterInput{}, err
	}
	return in, nil
}

type loginRequest struct {
	Email    json.RawMessage `json:"email"`
	Password json.RawMessage `json:"password"`
}

func (req loginRequest) input() (identity.LoginInput, error) {
	fields := domain.FieldErrors{}
	in := identity.LoginInput{
		Email:    text(fields, "email", "Email", req.Email),
		Password: text(fields, "password", "Password", req.Password),
	}
	if err := validationErr(fields); err != nil {
		return identity.LoginInput{}, err
	}
	return in, nil
}
