package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/config"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/identity"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/storage/redis"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Products   domain.ProductRepository
	Users      domain.UserRepository
	Orders     domain.OrderRepository
	UnitOfWork domain.UnitOfWork
	Outbox     domain.OutboxRepository
	Sessions   domain.SessionRepository

	Publisher    domain.OutboxPublisher
	DLQPublisher domain.OutboxPublisher

	Health *health.Handler
	Logger *log.Entry

	// expiredSessions задан только для in-memory сессий: Redis удаляет их сам по TTL.
	expiredSessions identity.ExpiredSessionStore
	closers         []func() error
}

// NewDependencies создаёт хранилища и публикаторы согласно конфигурации.
// При ошибке уже открытые ресурсы закрываются.
func NewDependencies(ctx context.Context, cfg config.Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Health: health.NewHandler(version.GetVersion()),
		Logger: logger,
	}
	if err := deps.initStorage(ctx, cfg); err != nil {
		_ = deps.Close()
		return nil, err
	}
	if err := deps.initSessions(ctx, cfg); err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.initPublishers(cfg)
	return deps, nil
}

func (d *Dependencies) initStorage(ctx context.Context, cfg config.Config) error {
	switch cfg.Storage {
	case config.StorageMemory, "":
		store := memory.NewStore()
		d.Products = memory.NewProductRepository(store)
		d.Users = memory.NewUserRepository(store)
		d.Orders = memory.NewOrderRepository(store)
		d.UnitOfWork = memory.NewUnitOfWork(store)
		d.Outbox = memory.NewOutboxRepository(store)
		d.Logger.Info("using in-memory storage")
		return nil

	case config.StoragePostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("postgres_dsn is required for postgres storage")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, store.Close)

		if cfg.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
		}

		d.Products = postgres.NewProductRepository(store)
		d.Users = postgres.NewUserRepository(store)
		d.Orders = postgres.NewOrderRepository(store)
		d.UnitOfWork = postgres.NewUnitOfWork(store)
		d.Outbox = postgres.NewOutboxRepository(store)
		d.Health.RegisterChecker("postgres", health.NewPingChecker("postgres", store.Ping))
		d.Logger.WithField("auto_migrate", cfg.AutoMigrate).Info("using postgres storage")
		return nil

	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage)
	}
}

func (d *Dependencies) initSessions(ctx context.Context, cfg config.Config) error {
	switch cfg.SessionStore {
	case config.SessionStoreMemory, "":
		sessions := memory.NewSessionRepository()
		d.Sessions = sessions
		d.expiredSessions = sessions
		return nil

	case config.SessionStoreRedis:
		client, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, client.Close)

		sessions := redis.NewSessionRepository(client)
		d.Sessions = sessions
		d.Health.RegisterChecker("redis", health.NewPingChecker("redis", sessions.Ping))
		d.Logger.WithField("addr", cfg.RedisAddr).Info("using redis session store")
		return nil

	default:
		return fmt.Errorf("unsupported session store %q", cfg.SessionStore)
	}
}

// initPublishers выбирает Kafka, если брокеры заданы и доступны; иначе события пишутся в лог.
func (d *Dependencies) initPublishers(cfg config.Config) {
	kp, err := connectKafka(cfg, d.Logger)
	if err != nil {
		d.Logger.WithError(err).Warn("kafka unavailable, outbox falls back to log publisher")
	}
	if kp == nil {
		d.Publisher = outbox.NewLogPublisher(log.WithField("component", "outbox-log"))
		return
	}
	d.closers = append(d.closers, kp.Close)

	d.Publisher = kp.events
	if kp.dlq != nil {
		d.DLQPublisher = kp.dlq
	}
}

// Close освобождает ресурсы в обратном порядке открытия.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
