package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const maxBodyBytes = 1 << 20

var errMalformedBody = errors.New("malformed JSON body")

// envelope — единый формат ответов API.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message string, errs any) {
	writeJSON(w, status, envelope{Success: false, Message: message, Errors: errs})
}

// writeError переводит доменную ошибку в HTTP-ответ. Неожиданные ошибки
// логируются, клиент получает только fallback-сообщение.
func writeError(w http.ResponseWriter, r *http.Request, logger *log.Entry, err error, fallback string) {
	if fields, ok := domain.AsFieldErrors(err); ok {
		writeFail(w, http.StatusUnprocessableEntity, "Validation failed", fields)
		return
	}

	var stockErr *domain.StockError
	switch {
	case errors.Is(err, errMalformedBody):
		writeFail(w, http.StatusBadRequest, "Malformed JSON body", nil)
	case errors.As(err, &stockErr):
		writeFail(w, http.StatusUnprocessableEntity, "Stock validation failed", []string{stockErr.Error()})
	case errors.Is(err, domain.ErrProductNotFound):
		writeFail(w, http.StatusNotFound, "Product not found", nil)
	case errors.Is(err, domain.ErrOrderNotFound):
		writeFail(w, http.StatusNotFound, "Order not found", nil)
	case errors.Is(err, domain.ErrNotFound):
		writeFail(w, http.StatusNotFound, "Not found", nil)
	case errors.Is(err, domain.ErrUnauthenticated):
		writeFail(w, http.StatusUnauthorized, "Unauthenticated.", nil)
	case errors.Is(err, domain.ErrUnauthorized):
		writeFail(w, http.StatusUnauthorized, "Invalid credentials", nil)
	default:
		requestLogger(r, logger).WithError(err).Error(fallback)
		writeFail(w, http.StatusInternalServerError, fallback, nil)
	}
}

// decodeJSON читает тело запроса в v. Пустое тело оставляет v нулевым,
// чтобы клиент получил ошибки валидации, а не ошибку формата.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errMalformedBody
	}
	return nil
}

type userView struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func briefUser(u domain.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email}
}

func fullUser(u domain.User) userView {
	view := briefUser(u)
	view.CreatedAt = &u.CreatedAt
	view.UpdatedAt = &u.UpdatedAt
	return view
}

type productView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku"`
	Price     string    `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newProductView(p domain.Product) productView {
	return productView{
		ID:        p.ID,
		Name:      p.Name,
		SKU:       p.SKU,
		Price:     p.Price.StringFixed(domain.PriceScale),
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type productRefView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	SKU   string `json:"sku"`
	Price string `json:"price"`
}

type orderItemView struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     string          `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	Product   *productRefView `json:"product"`
}

type orderUserView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type orderView struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	TotalAmount string          `json:"total_amount"`
	Status      int16           `json:"status"`
	StatusName  string          `json:"status_name"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	User        *orderUserView  `json:"user"`
	Items       []orderItemView `json:"items"`
}

func newOrderView(o domain.Order) orderView {
	view := orderView{
		ID:          o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount.StringFixed(domain.PriceScale),
		Status:      int16(o.Status),
		StatusName:  o.Status.String(),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		Items:       make([]orderItemView, 0, len(o.Items)),
	}
	if o.User != nil {
		view.User = &orderUserView{ID: o.User.ID, Name: o.User.Name, Email: o.User.Email}
	}
	for _, item := range o.Items {
		iv := orderItemView{
			ID:        item.ID,
			OrderID:   item.OrderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(domain.PriceScale),
			CreatedAt: item.CreatedAt,
		}
		if item.Product != nil {
			iv.Product = &productRefView{
				ID:    item.Product.ID,
				Name:  item.Product.Name,
				SKU:   item.Product.SKU,
				Price: item.Product.Price.StringFixed(domain.PriceScale),
			}
		}
		view.Items = append(view.Items, iv)
	}
	return view
}

// pageView повторяет формат пагинации: current_page, per_page, total, last_page, data.
type pageView[T any] struct {
	CurrentPage int `json:"current_page"`
	Data        []T `json:"data"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

func newPageView[S, T any](page domain.Page[S], convert func(S) T) pageView[T] {
	data := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		data = append(data, convert(item))
	}
	return pageView[T]{
		CurrentPage: page.Page,
		Data:        data,
		PerPage:     page.PerPage,
		Total:       page.Total,
		LastPage:    page.LastPage(),
	}
}
