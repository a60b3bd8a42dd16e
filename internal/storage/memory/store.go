package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Store — общее in-memory состояние всех репозиториев.
// Один мьютекс защищает все таблицы, поэтому единица работы видит согласованный снимок.
type Store struct {
	mu sync.RWMutex

	users    map[int64]domain.User
	products map[int64]domain.Product
	orders   map[int64]domain.Order
	outbox   map[string]*outboxRecord

	// outboxSeq задаёт порядок выдачи сообщений (map не упорядочена).
	outboxSeq int64

	nextUserID    int64
	nextProductID int64
	nextOrderID   int64
	nextItemID    int64

	now func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		users:    make(map[int64]domain.User),
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]domain.Order),
		outbox:   make(map[string]*outboxRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock подменяет источник времени (используется в тестах).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func cloneOrder(o domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}
