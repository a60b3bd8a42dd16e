package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// SessionRepository хранит сессии в памяти процесса. Истёкшие записи
// удаляются лениво при чтении и периодически через Sweep.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	now      func() time.Time
}

// NewSessionRepository создаёт пустое хранилище сессий.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]domain.Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *SessionRepository) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *SessionRepository) Get(_ context.Context, id string) (domain.Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if session.Expired(r.now()) {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// Sweep удаляет истёкшие сессии и возвращает их количество.
func (r *SessionRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, session := range r.sessions {
		if session.Expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

var _ domain.SessionRepository = (*SessionRepository)(nil)
