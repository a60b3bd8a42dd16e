// Package httpapi реализует REST API /v1 на chi.
// Сессия передаётся cookie storefront_session или заголовком Authorization: Bearer.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// DefaultRequestTimeout — предельное время обработки одного запроса.
const DefaultRequestTimeout = 15 * time.Second

// RouterOptions — инфраструктура, общая для всех маршрутов.
type RouterOptions struct {
	Metrics        *metrics.HTTPMetrics
	LoginLimiter   *RateLimiter
	RequestTimeout time.Duration
}

// NewRouter собирает маршруты API.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.LoginLimiter == nil {
		opts.LoginLimiter = NewRateLimiter(0)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(opts.Metrics))
	r.Use(requestLogging(h.logger))
	r.Use(recoverer(h.logger))
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(authenticate(h.identity, h.logger))

	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Route("/v1", func(r chi.Router) {
		r.With(opts.LoginLimiter.Middleware).Post("/register", h.register)
		r.With(opts.LoginLimiter.Middleware).Post("/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/me", h.me)
			r.Post("/logout", h.logout)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Get("/{id}", h.showProduct)
			r.Put("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
		})

		// Гостевое оформление решает Workflow, поэтому requireUser здесь не нужен.
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Post("/", h.placeOrder)
			r.Get("/{id}", h.showOrder)
		})
	})

	return r
}
