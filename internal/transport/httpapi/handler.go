package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/identity"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
)

// Handler обслуживает REST API версии v1.
type Handler struct {
	catalog      *catalog.Service
	identity     *identity.Service
	workflow     *ordering.Workflow
	orders       *ordering.Query
	logger       *log.Entry
	secureCookie bool
}

// HandlerOption настраивает Handler.
type HandlerOption func(*Handler)

// WithLogger задаёт logger обработчиков.
func WithLogger(logger *log.Entry) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSecureCookie выставляет флаг Secure у cookie сессии.
func WithSecureCookie(secure bool) HandlerOption {
	return func(h *Handler) {
		h.secureCookie = secure
	}
}

// NewHandler собирает обработчики поверх сервисов.
func NewHandler(
	catalogSvc *catalog.Service,
	identitySvc *identity.Service,
	workflow *ordering.Workflow,
	orders *ordering.Query,
	options ...HandlerOption,
) *Handler {
	h := &Handler{
		catalog:  catalogSvc,
		identity: identitySvc,
		workflow: workflow,
		orders:   orders,
		logger:   log.WithField("component", "http"),
	}
	for _, option := range options {
		option(h)
	}
	return h
}

// actingUserID возвращает id пользователя сессии или 0 для анонимного запроса.
func actingUserID(r *http.Request) int64 {
	if user, ok := UserFrom(r.Context()); ok {
		return user.ID
	}
	return 0
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return page
}

// idParam разбирает {id}; некорректный id неотличим от отсутствующей записи.
func idParam(r *http.Request, notFound error) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, notFound
	}
	return id, nil
}

func (h *Handler) notFound(w http.ResponseWriter, _ *http.Request) {
	writeFail(w, http.StatusNotFound, "Not found", nil)
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeFail(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
}
