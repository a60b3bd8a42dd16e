package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestUserRepository_EmailUniqueCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(NewStore())

	u, err := repo.Create(ctx, domain.User{Name: "Ann", Email: "ann@example.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, domain.User{Name: "Ann 2", Email: "ANN@example.com", PasswordHash: "h"})
	require.ErrorIs(t, err, domain.ErrConflict)

	byEmail, err := repo.GetByEmail(ctx, "Ann@Example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	exists, err := repo.EmailExists(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.Get(ctx, 77)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, u.ID))
	exists, err = repo.EmailExists(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.ErrorIs(t, repo.Delete(ctx, u.ID), domain.ErrUserNotFound)
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, domain.Session{ID: "live", UserID: 1, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, repo.Create(ctx, domain.Session{ID: "stale", UserID: 1, CreatedAt: now, ExpiresAt: now.Add(-time.Second)}))

	got, err := repo.Get(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UserID)

	_, err = repo.Get(ctx, "stale")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, repo.Delete(ctx, "live"))
	_, err = repo.Get(ctx, "live")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionRepository_Sweep(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, domain.Session{ID: "a", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, repo.Create(ctx, domain.Session{ID: "b", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, repo.Create(ctx, domain.Session{ID: "c", ExpiresAt: now.Add(time.Hour)}))

	assert.Equal(t, 2, repo.Sweep())
	_, err := repo.Get(ctx, "c")
	assert.NoError(t, err)
}
