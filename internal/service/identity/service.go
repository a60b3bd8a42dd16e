// Package identity отвечает за регистрацию, вход и сессии пользователей.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/validation"
)

// DefaultSessionTTL — время жизни сессии по умолчанию.
const DefaultSessionTTL = 24 * time.Hour

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=6"`
	PasswordConfirmation string `json:"password_confirmation" validate:"eqfield=Password"`
}

var registerMessages = validation.Messages{
	"name.required":                 "Name is required",
	"email.required":                "Email is required",
	"email.email":                   "Email must be a valid email address",
	"password.required":             "Password is required",
	"password.min":                  "Password must be 6+ chars",
	"password_confirmation.eqfield": "Passwords do not match",
}

// LoginInput — учётные данные для входа.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var loginMessages = validation.Messages{
	"email.required":    "Email is required",
	"email.email":       "Email must be a valid email address",
	"password.required": "Password is required",
}

// Result — пользователь и токен созданной сессии.
type Result struct {
	User    domain.User
	Token   string
	Session domain.Session
}

// Option настраивает Service.
type Option func(*Service)

// WithSessionTTL задаёт время жизни сессии.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service — регистрация, аутентификация и управление сессиями.
type Service struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	hasher   domain.PasswordHasher
	tokens   *TokenCodec
	logger   *log.Entry
	ttl      time.Duration
	now      func() time.Time

	// dummyHash сравнивается с паролем при неизвестном email,
	// чтобы время ответа не выдавало наличие учётной записи.
	dummyHash string
}

// NewService создаёт сервис идентификации.
func NewService(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	hasher domain.PasswordHasher,
	tokens *TokenCodec,
	options ...Option,
) (*Service, error) {
	s := &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		logger:   log.WithField("component", "identity"),
		ttl:      DefaultSessionTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}

	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Register создаёт пользователя и сразу открывает ему сессию.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Result, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)

	if err := validation.Struct(in, registerMessages); err != nil {
		return Result{}, err
	}

	taken, err := s.users.EmailExists(ctx, in.Email)
	if err != nil {
		return Result{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return Result{}, &domain.ConflictError{Field: "email", Message: "Email already taken"}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Result{}, err
	}

	user, err := s.users.Create(ctx, domain.User{Name: in.Name, Email: in.Email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("create user: %w", err)
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		// Без сессии регистрация не состоялась: повтор с тем же email должен пройти.
		if delErr := s.users.Delete(context.WithoutCancel(ctx), user.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("user_id", user.ID).Error("Failed to roll back registration")
		}
		return Result{}, err
	}
	s.logger.WithField("user_id", user.ID).Info("User registered")
	return result, nil
}

// Authenticate проверяет учётные данные и открывает новую сессию.
// Неизвестный email и неверный пароль неразличимы для вызывающего.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (Result, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in, loginMessages); err != nil {
		return Result{}, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return Result{}, fmt.Errorf("load user: %w", err)
		}
		_ = s.hasher.Compare(s.dummyHash, in.Password)
		return Result{}, domain.ErrUnauthorized
	}

	if err := s.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			s.logger.WithField("user_id", user.ID).Warn("Login failed")
			return Result{}, domain.ErrUnauthorized
		}
		return Result{}, err
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		return Result{}, err
	}
	s.logger.WithField("user_id", user.ID).Info("User logged in")
	return result, nil
}

// CurrentUser возвращает владельца действующей сессии.
func (s *Service) CurrentUser(ctx context.Context, token string) (domain.User, domain.Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return domain.User{}, domain.Session{}, err
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
		}
		return domain.User{}, domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != claims.UserID || session.Expired(s.now()) {
		return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
	}

	user, err := s.users.Get(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.Session{}, domain.ErrUnauthenticated
		}
		return domain.User{}, domain.Session{}, fmt.Errorf("load user: %w", err)
	}
	return user, session, nil
}

// Logout отзывает сессию; токен после этого недействителен.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.WithField("user_id", claims.UserID).Info("User logged out")
	return nil
}

func (s *Service) openSession(ctx context.Context, user domain.User) (Result, error) {
	now := s.now()
	session := domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return Result{}, fmt.Errorf("create session: %w", err)
	}
	token, err := s.tokens.Issue(session)
	if err != nil {
		return Result{}, err
	}
	return Result{User: user, Token: token, Session: session}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
