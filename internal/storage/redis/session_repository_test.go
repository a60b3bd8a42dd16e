package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type SessionRepositoryTestSuite struct {
	suite.Suite
	client *goredis.Client
	repo   *SessionRepository
	ctx    context.Context
}

func TestSessionRepository(t *testing.T) {
	suite.Run(t, new(SessionRepositoryTestSuite))
}

func (s *SessionRepositoryTestSuite) SetupSuite() {
	addr := os.Getenv("STOREFRONT_REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	s.ctx = context.Background()

	client, err := NewClient(s.ctx, addr, "", 15)
	if err != nil {
		s.T().Skipf("redis is not available for integration tests: %v", err)
	}
	s.client = client
	s.repo = NewSessionRepository(client)
}

func (s *SessionRepositoryTestSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *SessionRepositoryTestSuite) SetupTest() {
	s.client.FlushDB(s.ctx)
}

func (s *SessionRepositoryTestSuite) TestCreateGetDelete() {
	now := time.Now().UTC()
	session := domain.Session{ID: "abc", UserID: 7, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	s.Require().NoError(s.repo.Create(s.ctx, session))

	got, err := s.repo.Get(s.ctx, "abc")
	s.Require().NoError(err)
	s.Equal(int64(7), got.UserID)
	s.WithinDuration(session.ExpiresAt, got.ExpiresAt, time.Millisecond)

	ttl := s.client.TTL(s.ctx, sessionKey("abc")).Val()
	s.Greater(ttl, 59*time.Minute)

	s.Require().NoError(s.repo.Delete(s.ctx, "abc"))
	_, err = s.repo.Get(s.ctx, "abc")
	s.ErrorIs(err, domain.ErrSessionNotFound)
}

func (s *SessionRepositoryTestSuite) TestMissingSession() {
	_, err := s.repo.Get(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *SessionRepositoryTestSuite) TestExpiredSessionRejected() {
	now := time.Now().UTC()
	err := s.repo.Create(s.ctx, domain.Session{ID: "old", UserID: 1, CreatedAt: now, ExpiresAt: now.Add(-time.Second)})
	s.Error(err)
}

func TestDecodeSession(t *testing.T) {
	got, err := decodeSession("x", map[string]string{
		"user_id":    "42",
		"created_at": "2024-01-01T00:00:00Z",
		"expires_at": "2024-01-02T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserID != 42 || got.ID != "x" {
		t.Fatalf("unexpected session: %+v", got)
	}

	if _, err := decodeSession("x", map[string]string{"user_id": "nope"}); err == nil {
		t.Fatal("expected error for broken user_id")
	}
}
