package memory

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type userRepositoryInMemory struct {
	store *Store
}

// NewUserRepository возвращает in-memory хранилище пользователей.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepositoryInMemory{store: store}
}

func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.userByEmail(user.Email); ok {
		return domain.User{}, &domain.ConflictError{Field: "email", Message: "Email already taken"}
	}

	r.store.nextUserID++
	now := r.store.now()
	user.ID = r.store.nextUserID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.store.users[user.ID] = user
	return user, nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id int64) (domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[id]
	if !ok || u.DeletedAt != nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *userRepositoryInMemory) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.userByEmail(email)
	if !ok || u.DeletedAt != nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *userRepositoryInMemory) EmailExists(_ context.Context, email string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	_, ok := r.store.userByEmail(email)
	return ok, nil
}

func (r *userRepositoryInMemory) Delete(_ context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.store.users, id)
	return nil
}

// userByEmail сравнивает email без учёта регистра. Вызывается под s.mu.
func (s *Store) userByEmail(email string) (domain.User, bool) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return domain.User{}, false
}
