package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/config"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/identity"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
)

const (
	demoUserName     = "Test User"
	demoUserEmail    = "test@example.com"
	demoUserPassword = "password123"
)

type demoProduct struct {
	Name  string
	SKU   string
	Price string
	Stock int
}

var demoProducts = []demoProduct{
	{Name: "iPhone 15 Pro", SKU: "IPH15PRO", Price: "999.99", Stock: 20},
	{Name: "MacBook Air M2", SKU: "MBAIR", Price: "1299.99", Stock: 10},
	{Name: "AirPods Pro 2", SKU: "AIRP2", Price: "249.99", Stock: 30},
	{Name: "Samsung S24", SKU: "S24", Price: "799.99", Stock: 15},
	{Name: "Google Pixel 8", SKU: "PIXEL8", Price: "699.99", Stock: 12},
}

type demoLine struct {
	SKU      string
	Quantity int
}

type demoOrder struct {
	Lines  []demoLine
	Status domain.OrderStatus
}

var demoOrders = []demoOrder{
	{Lines: []demoLine{{SKU: "IPH15PRO", Quantity: 1}, {SKU: "AIRP2", Quantity: 2}}, Status: domain.OrderStatusPending},
	{Lines: []demoLine{{SKU: "MBAIR", Quantity: 1}, {SKU: "PIXEL8", Quantity: 1}}, Status: domain.OrderStatusConfirmed},
	{Lines: []demoLine{{SKU: "S24", Quantity: 2}}, Status: domain.OrderStatusCancelled},
}

// summary — итог запуска сидера.
type summary struct {
	UserID          int64
	UserCreated     bool
	ProductsCreated int
	OrdersCreated   int
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "seed")

	cfg, err := config.Load(".env")
	if err != nil {
		logger.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}
	if cfg.Storage == config.StorageMemory {
		logger.Warn("storage=memory: данные пропадут после завершения процесса")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("не удалось инициализировать зависимости")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to release dependencies")
		}
	}()

	services, err := app.NewServices(cfg, deps)
	if err != nil {
		logger.WithError(err).Fatal("не удалось создать сервисы")
	}

	result, err := seed(ctx, services, deps.Users, deps.Orders, logger)
	if err != nil {
		logger.WithError(err).Fatal("seed failed")
	}

	logger.WithFields(log.Fields{
		"user_id":          result.UserID,
		"user_created":     result.UserCreated,
		"products_created": result.ProductsCreated,
		"orders_created":   result.OrdersCreated,
	}).Info("демо-данные готовы")
}

// seed создаёт демо-пользователя, товары и заказы через сервисы.
// Повторный запуск переиспользует существующие записи.
func seed(ctx context.Context, services *app.Services, users domain.UserRepository, orders domain.OrderRepository, logger *log.Entry) (summary, error) {
	var result summary

	user, created, err := ensureUser(ctx, services.Identity, users)
	if err != nil {
		return result, err
	}
	result.UserID = user.ID
	result.UserCreated = created

	skus := make(map[string]int64, len(demoProducts))
	for _, p := range demoProducts {
		id, created, err := ensureProduct(ctx, services.Catalog, p)
		if err != nil {
			return result, err
		}
		skus[p.SKU] = id
		if created {
			result.ProductsCreated++
		}
	}

	existing, err := orders.ListByUser(ctx, user.ID, domain.PageRequest{Page: 1, PerPage: 1})
	if err != nil {
		return result, fmt.Errorf("list demo orders: %w", err)
	}
	if existing.Total > 0 {
		logger.WithField("orders", existing.Total).Info("у демо-пользователя уже есть заказы, пропускаем")
		return result, nil
	}

	for _, o := range demoOrders {
		in := ordering.PlaceOrderInput{Items: make([]ordering.LineInput, 0, len(o.Lines))}
		for _, line := range o.Lines {
			in.Items = append(in.Items, ordering.LineInput{ProductID: skus[line.SKU], Quantity: line.Quantity})
		}

		order, err := services.Workflow.PlaceOrder(ctx, user.ID, in)
		if err != nil {
			return result, fmt.Errorf("place demo order: %w", err)
		}
		if o.Status != order.Status {
			if err := orders.UpdateStatus(ctx, order.ID, o.Status); err != nil {
				return result, fmt.Errorf("update demo order %d status: %w", order.ID, err)
			}
		}
		result.OrdersCreated++
	}

	return result, nil
}

func ensureUser(ctx context.Context, svc *identity.Service, users domain.UserRepository) (domain.User, bool, error) {
	user, err := users.GetByEmail(ctx, demoUserEmail)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, false, fmt.Errorf("lookup demo user: %w", err)
	}

	res, err := svc.Register(ctx, identity.RegisterInput{
		Name:                 demoUserName,
		Email:                demoUserEmail,
		Password:             demoUserPassword,
		PasswordConfirmation: demoUserPassword,
	})
	if err != nil {
		return domain.User{}, false, fmt.Errorf("register demo user: %w", err)
	}
	if err := svc.Logout(ctx, res.Token); err != nil {
		return domain.User{}, false, fmt.Errorf("close demo session: %w", err)
	}
	return res.User, true, nil
}

func ensureProduct(ctx context.Context, svc *catalog.Service, p demoProduct) (int64, bool, error) {
	found, err := svc.List(ctx, p.SKU, 1)
	if err != nil {
		return 0, false, err
	}
	for _, item := range found.Items {
		if strings.EqualFold(item.SKU, p.SKU) {
			return item.ID, false, nil
		}
	}

	price := decimal.RequireFromString(p.Price)
	stock := p.Stock
	product, err := svc.Create(ctx, catalog.ProductInput{Name: p.Name, SKU: p.SKU, Price: &price, Stock: &stock})
	if err != nil {
		return 0, false, fmt.Errorf("create demo product %s: %w", p.SKU, err)
	}
	return product.ID, true, nil
}
