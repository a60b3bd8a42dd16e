// Package app собирает сервис из конфигурации и управляет жизненным циклом
// его серверов и фоновых задач.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/storefront/internal/config"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/identity"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

const (
	shutdownTimeout    = 5 * time.Second
	healthSyncInterval = 5 * time.Second
	readHeaderTimeout  = 5 * time.Second
	apiWriteTimeout    = 30 * time.Second
	apiIdleTimeout     = 2 * time.Minute
)

// Services — прикладные сервисы поверх зависимостей.
type Services struct {
	Catalog  *catalog.Service
	Identity *identity.Service
	Workflow *ordering.Workflow
	Orders   *ordering.Query
}

// NewServices создаёт сервисы предметной области.
func NewServices(cfg config.Config, deps *Dependencies) (*Services, error) {
	tokens, err := identity.NewTokenCodec(cfg.SessionSecret)
	if err != nil {
		return nil, err
	}
	identitySvc, err := identity.NewService(
		deps.Users,
		deps.Sessions,
		identity.NewBcryptHasher(0),
		tokens,
		identity.WithSessionTTL(cfg.SessionTTL),
	)
	if err != nil {
		return nil, err
	}

	return &Services{
		Catalog:  catalog.NewService(deps.Products, log.WithField("component", "catalog")),
		Identity: identitySvc,
		Workflow: ordering.NewWorkflow(deps.UnitOfWork,
			ordering.WithGuestUser(cfg.GuestUserID),
			ordering.WithWorkflowMetrics(metrics.NewOrderMetrics()),
		),
		Orders: ordering.NewQuery(deps.Orders),
	}, nil
}

// newAPI собирает REST API поверх сервисов.
func newAPI(cfg config.Config, services *Services, opts httpapi.RouterOptions) http.Handler {
	h := httpapi.NewHandler(services.Catalog, services.Identity, services.Workflow, services.Orders,
		httpapi.WithLogger(log.WithField("component", "http")),
		httpapi.WithSecureCookie(cfg.CookieSecure),
	)
	return httpapi.NewRouter(h, opts)
}

// Run поднимает REST API, сервер метрик и проб, gRPC health и фоновые задачи.
// Возвращает ctx.Err() после штатной остановки по сигналу.
func Run(ctx context.Context, cfg config.Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to release dependencies")
		}
	}()

	services, err := NewServices(cfg, deps)
	if err != nil {
		return err
	}

	limiter := httpapi.NewRateLimiter(cfg.LoginRatePerMinute)
	api := newAPI(cfg, services, httpapi.RouterOptions{Metrics: metrics.NewHTTPMetrics(), LoginLimiter: limiter})

	worker := outbox.NewWorker(deps.Outbox, deps.Publisher,
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(deps.DLQPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	// abort останавливает уже запущенные серверы, если следующий не поднялся.
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      apiWriteTimeout,
		IdleTimeout:       apiIdleTimeout,
	}
	if err := serveHTTP(gctx, g, apiSrv, "api", logger); err != nil {
		return abort(err)
	}

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           newOpsMux(deps.Health),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if err := serveHTTP(gctx, g, metricsSrv, "metrics", logger); err != nil {
		return abort(err)
	}

	if cfg.GRPCHealthAddr != "" {
		if err := serveGRPCHealth(gctx, g, cfg.GRPCHealthAddr, deps.Health, logger); err != nil {
			return abort(err)
		}
	}

	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })
	if deps.expiredSessions != nil {
		sweeper := identity.NewSweeper(deps.expiredSessions,
			identity.WithSweeperLogger(log.WithField("component", "session-sweeper")),
			identity.WithSweeperMetrics(metrics.NewSessionMetrics()),
		)
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	logger.WithFields(log.Fields{
		"http_addr":        cfg.HTTPAddr,
		"metrics_addr":     cfg.MetricsAddr,
		"grpc_health_addr": cfg.GRPCHealthAddr,
		"storage":          cfg.Storage,
		"session_store":    cfg.SessionStore,
	}).Info("storefront started")

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// newOpsMux — служебный HTTP: /metrics и пробы.
func newOpsMux(healthHandler *health.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// serveHTTP занимает адрес сразу, чтобы ошибка bind вернулась из Run,
// и останавливает сервер при отмене ctx.
func serveHTTP(ctx context.Context, g *errgroup.Group, srv *http.Server, name string, logger *log.Entry) error {
	lis, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", name, srv.Addr, err)
	}
	entry := logger.WithFields(log.Fields{"server": name, "addr": lis.Addr().String()})

	g.Go(func() error {
		entry.Info("http server listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownHTTP(srv, entry)
		return nil
	})
	return nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// serveGRPCHealth поднимает grpc.health.v1.Health с reflection для grpcurl
// и переносит в него статус HTTP-проб.
func serveGRPCHealth(ctx context.Context, g *errgroup.Group, addr string, checks *health.Handler, logger *log.Entry) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen grpc health %s: %w", addr, err)
	}

	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	entry := logger.WithFields(log.Fields{"server": "grpc-health", "addr": lis.Addr().String()})
	g.Go(func() error {
		entry.Info("grpc health server listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		checks.SyncGRPC(ctx, healthServer, healthSyncInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			entry.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		return nil
	})
	return nil
}
