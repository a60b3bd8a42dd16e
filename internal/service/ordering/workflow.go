// Package ordering реализует оформление заказов и чтение истории заказов пользователя.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/validation"
)

// LineInput — одна строка запроса на оформление.
type LineInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"min=1"`
}

// PlaceOrderInput — тело запроса на оформление заказа.
type PlaceOrderInput struct {
	Items []LineInput `json:"items" validate:"required,min=1,dive"`
}

var placeOrderMessages = validation.Messages{
	"items.required":              "Order items are required",
	"items.min":                   "Order items are required",
	"items.*.product_id.required": "Product id is required",
	"items.*.product_id.gt":       "Product id is required",
	"items.*.quantity.min":        "Quantity must be at least 1",
}

// WorkflowOption настраивает Workflow.
type WorkflowOption func(*Workflow)

// WithGuestUser разрешает оформление без сессии от имени указанного пользователя.
// Ноль отключает гостевое оформление.
func WithGuestUser(userID int64) WorkflowOption {
	return func(w *Workflow) {
		if userID > 0 {
			w.guestUserID = userID
		}
	}
}

// WithWorkflowLogger задаёт logger.
func WithWorkflowLogger(logger *log.Entry) WorkflowOption {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWorkflowMetrics задаёт метрики оформления.
func WithWorkflowMetrics(m *metrics.OrderMetrics) WorkflowOption {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// Workflow атомарно оформляет заказ: проверка остатков, расчёт суммы,
// сохранение заказа и позиций, списание остатков и запись события в outbox.
type Workflow struct {
	uow         domain.UnitOfWork
	logger      *log.Entry
	metrics     *metrics.OrderMetrics
	guestUserID int64
	now         func() time.Time
}

// NewWorkflow создаёт workflow поверх единицы работы.
func NewWorkflow(uow domain.UnitOfWork, options ...WorkflowOption) *Workflow {
	w := &Workflow{
		uow:    uow,
		logger: log.WithField("component", "ordering"),
		now:    time.Now,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// PlaceOrder оформляет заказ от имени actingUserID.
// Позиции обрабатываются в порядке запроса; первая ошибка отменяет весь заказ.
func (w *Workflow) PlaceOrder(ctx context.Context, actingUserID int64, in PlaceOrderInput) (domain.Order, error) {
	started := w.now()

	userID, err := w.resolveUser(actingUserID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := validation.Struct(in, placeOrderMessages); err != nil {
		w.metrics.RecordRejected(metrics.ResultInvalid, w.now().Sub(started))
		return domain.Order{}, err
	}

	var created domain.Order
	err = w.uow.Do(ctx, func(ctx context.Context, tx domain.OrderTx) error {
		order, err := place(ctx, tx, userID, in.Items)
		if err != nil {
			return err
		}
		created = order
		return nil
	})
	took := w.now().Sub(started)

	if err != nil {
		return domain.Order{}, w.fail(userID, in, err, took)
	}

	units := 0
	for _, item := range created.Items {
		units += item.Quantity
	}
	w.metrics.RecordPlaced(created.TotalAmount, len(created.Items), units, took)
	w.logger.WithFields(log.Fields{
		"order_id": created.ID,
		"user_id":  created.UserID,
		"total":    created.TotalAmount.StringFixed(domain.PriceScale),
	}).Info("Order created")
	return created, nil
}

func (w *Workflow) resolveUser(actingUserID int64) (int64, error) {
	if actingUserID > 0 {
		return actingUserID, nil
	}
	if w.guestUserID > 0 {
		return w.guestUserID, nil
	}
	return 0, domain.ErrUnauthenticated
}

// fail классифицирует ошибку транзакции. Ожидаемые отказы возвращаются как есть,
// всё прочее логируется и оборачивается.
func (w *Workflow) fail(userID int64, in PlaceOrderInput, err error, took time.Duration) error {
	var stockErr *domain.StockError
	switch {
	case errors.As(err, &stockErr):
		w.metrics.RecordRejected(metrics.ResultOutOfStock, took)
		return err
	case errors.Is(err, domain.ErrProductNotFound):
		w.metrics.RecordRejected(metrics.ResultNotFound, took)
		return err
	case errors.Is(err, domain.ErrInvalidInput):
		w.metrics.RecordRejected(metrics.ResultInvalid, took)
		return err
	}

	w.metrics.RecordRejected(metrics.ResultError, took)
	w.logger.WithError(err).WithFields(log.Fields{
		"user_id": userID,
		"payload": in.Items,
	}).Error("Order creation failed")
	return fmt.Errorf("place order: %w", err)
}

func place(ctx context.Context, tx domain.OrderTx, userID int64, lines []LineInput) (domain.Order, error) {
	products, err := tx.LockProducts(ctx, productIDs(lines))
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock products: %w", err)
	}

	remaining := make(map[int64]int, len(products))
	for id, p := range products {
		remaining[id] = p.Stock
	}

	total := decimal.Zero
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return domain.Order{}, domain.ErrProductNotFound
		}
		if remaining[product.ID] < line.Quantity {
			return domain.Order{}, &domain.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   remaining[product.ID],
				Requested:   line.Quantity,
			}
		}
		remaining[product.ID] -= line.Quantity

		item := domain.OrderItem{ProductID: product.ID, Quantity: line.Quantity, Price: product.Price}
		total = total.Add(item.Subtotal())
		items = append(items, item)
	}

	total = total.Round(domain.PriceScale)
	if total.GreaterThan(domain.MaxAmount) {
		return domain.Order{}, domain.NewValidationError("items", "Order total may not be greater than 9999999999.99")
	}

	order := domain.Order{
		UserID:      userID,
		TotalAmount: total,
		Status:      domain.OrderStatusPending,
		Items:       items,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("order invariants: %w", errors.Join(errs...))
	}

	saved, err := tx.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	for _, item := range items {
		if err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return domain.Order{}, err
		}
	}

	loaded, err := tx.GetOrder(ctx, saved.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("reload order: %w", err)
	}

	msg, err := domain.NewOrderCreatedMessage(loaded)
	if err != nil {
		return domain.Order{}, err
	}
	if _, err := tx.EnqueueOutbox(ctx, msg); err != nil {
		return domain.Order{}, fmt.Errorf("enqueue order.created: %w", err)
	}
	return loaded, nil
}

func productIDs(lines []LineInput) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}
