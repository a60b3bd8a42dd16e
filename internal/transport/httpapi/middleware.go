package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// SessionCookie — имя cookie с токеном сессии.
const SessionCookie = "storefront_session"

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
)

// UserFrom возвращает пользователя, определённого по сессии запроса.
func UserFrom(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userKey).(domain.User)
	return user, ok
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// sessionToken берёт токен из заголовка Authorization: Bearer, иначе из cookie.
func sessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// SessionResolver находит владельца токена.
type SessionResolver interface {
	CurrentUser(ctx context.Context, token string) (domain.User, domain.Session, error)
}

// authenticate кладёт в контекст пользователя, если токен действителен.
// Запрос без сессии проходит дальше анонимным.
func authenticate(resolver SessionResolver, logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, _, err := resolver.CurrentUser(r.Context(), token)
			if err != nil {
				if !errors.Is(err, domain.ErrUnauthenticated) {
					requestLogger(r, logger).WithError(err).Warn("session lookup failed")
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireUser отвечает 401, если authenticate не нашёл сессию.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFrom(r.Context()); !ok {
			writeFail(w, http.StatusUnauthorized, "Unauthenticated.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogging пишет строку лога на каждый запрос после ответа.
func requestLogging(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()

			next.ServeHTTP(ww, r)

			entry := requestLogger(r, logger).WithFields(log.Fields{
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(started).Milliseconds(),
			})
			if user, ok := UserFrom(r.Context()); ok {
				entry = entry.WithField("user_id", user.ID)
			}
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				entry.Error("request failed")
			case ww.Status() >= http.StatusBadRequest:
				entry.Warn("request rejected")
			default:
				entry.Info("request served")
			}
		})
	}
}

func requestLogger(r *http.Request, logger *log.Entry) *log.Entry {
	return logger.WithFields(log.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
}

// instrument снимает метрики по шаблону маршрута chi.
func instrument(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			m.Started()

			defer func() {
				route := ""
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					route = rctx.RoutePattern()
				}
				m.Observe(r.Method, route, ww.Status(), time.Since(started))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// recoverer превращает панику обработчика в 500 с логом стека.
func recoverer(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				requestLogger(r, logger).WithFields(log.Fields{
					"panic": fmt.Sprint(rec),
					"stack": string(debug.Stack()),
				}).Error("handler panic")
				writeFail(w, http.StatusInternalServerError, "Server Error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter ограничивает частоту запросов с одного IP (token bucket).
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*visitor
	idle    time.Duration
	now     func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter разрешает perMinute запросов в минуту с одного адреса.
// perMinute <= 0 отключает ограничение.
func NewRateLimiter(perMinute int) *RateLimiter {
	limit := rate.Inf
	burst := 0
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
		burst = perMinute
	}
	return &RateLimiter{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*visitor),
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

// Allow расходует токен клиента ip.
func (l *RateLimiter) Allow(ip string) bool {
	if l.limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.clients[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Sweep забывает клиентов, не обращавшихся дольше idle.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	removed := 0
	for ip, v := range l.clients {
		if v.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

// Run периодически вызывает Sweep, пока ctx не отменён.
func (l *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Middleware отвечает 429, когда клиент исчерпал лимит.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeFail(w, http.StatusTooManyRequests, "Too Many Attempts.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
