// Package redis хранит сессии в Redis, чтобы несколько экземпляров сервиса
// разделяли состояние входа.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const keyPrefix = "storefront:session:"

// SessionRepository — реализация domain.SessionRepository поверх Redis-хешей.
// Срок жизни ключа совпадает с expires_at сессии.
type SessionRepository struct {
	client *goredis.Client
	now    func() time.Time
}

// NewClient создаёт клиента и проверяет подключение.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// NewSessionRepository оборачивает готового клиента.
func NewSessionRepository(client *goredis.Client) *SessionRepository {
	return &SessionRepository{client: client, now: time.Now}
}

func sessionKey(id string) string {
	return keyPrefix + id
}

func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("create session: already expired")
	}

	key := sessionKey(session.ID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", session.UserID,
		"created_at", session.CreatedAt.UTC().Format(time.RFC3339Nano),
		"expires_at", session.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (domain.Session, error) {
	fields, err := r.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if len(fields) == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}

	session, err := decodeSession(id, fields)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Expired(r.now()) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Ping используется readiness-проверкой.
func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func decodeSession(id string, fields map[string]string) (domain.Session, error) {
	userID, err := strconv.ParseInt(fields["user_id"], 10, 64)
	if err != nil {
		return domain.Session{}, fmt.Errorf("decode session user_id: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return domain.Session{}, fmt.Errorf("decode session created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return domain.Session{}, fmt.Errorf("decode session expires_at: %w", err)
	}
	return domain.Session{ID: id, UserID: userID, CreatedAt: createdAt, ExpiresAt: expiresAt}, nil
}

var _ domain.SessionRepository = (*SessionRepository)(nil)
