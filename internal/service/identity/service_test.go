package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type fixture struct {
	svc      *Service
	sessions *memory.SessionRepository
	tokens   *TokenCodec
}

func newFixture(t *testing.T, options ...Option) fixture {
	t.Helper()

	logger, _ := test.NewNullLogger()
	tokens, err := NewTokenCodec("test-secret")
	require.NoError(t, err)

	sessions := memory.NewSessionRepository()
	options = append([]Option{WithLogger(logrus.NewEntry(logger))}, options...)
	svc, err := NewService(
		memory.NewUserRepository(memory.NewStore()),
		sessions,
		NewBcryptHasher(bcrypt.MinCost),
		tokens,
		options...,
	)
	require.NoError(t, err)
	return fixture{svc: svc, sessions: sessions, tokens: tokens}
}

func registerInput(email string) RegisterInput {
	return RegisterInput{Name: "Ann", Email: email, Password: "secret1", PasswordConfirmation: "secret1"}
}

func TestRegister_CreatesUserAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, registerInput("  Ann@Example.COM "))
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", res.User.Email)
	assert.NotEqual(t, "secret1", res.User.PasswordHash)
	assert.NotEmpty(t, res.Token)

	user, session, err := f.svc.CurrentUser(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, user.ID)
	assert.Equal(t, res.Session.ID, session.ID)
}

type failingSessions struct {
	domain.SessionRepository
	fail bool
}

func (s *failingSessions) Create(ctx context.Context, session domain.Session) error {
	if s.fail {
		return errors.New("session store unavailable")
	}
	return s.SessionRepository.Create(ctx, session)
}

func TestRegister_SessionFailureRemovesUser(t *testing.T) {
	ctx := context.Background()
	logger, hook := test.NewNullLogger()
	tokens, err := NewTokenCodec("test-secret")
	require.NoError(t, err)

	users := memory.NewUserRepository(memory.NewStore())
	sessions := &failingSessions{SessionRepository: memory.NewSessionRepository(), fail: true}
	svc, err := NewService(users, sessions, NewBcryptHasher(bcrypt.MinCost), tokens, WithLogger(logrus.NewEntry(logger)))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput("ann@example.com"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConflict)

	exists, err := users.EmailExists(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.False(t, exists, "user must not outlive a failed registration")

	sessions.fail = false
	res, err := svc.Register(ctx, registerInput("ann@example.com"))
	require.NoError(t, err, "retry after a failed session must succeed")
	assert.NotEmpty(t, res.Token)
	for _, e := range hook.AllEntries() {
		if e.Level <= logrus.ErrorLevel {
			t.Fatalf("unexpected error log: %s", e.Message)
		}
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    RegisterInput
		field string
		msg   string
	}{
		{"short password", RegisterInput{Name: "A", Email: "a@b.io", Password: "12345", PasswordConfirmation: "12345"}, "password", "Password must be 6+ chars"},
		{"mismatch", RegisterInput{Name: "A", Email: "a@b.io", Password: "123456", PasswordConfirmation: "654321"}, "password_confirmation", "Passwords do not match"},
		{"bad email", RegisterInput{Name: "A", Email: "nope", Password: "123456", PasswordConfirmation: "123456"}, "email", "Email must be a valid email address"},
		{"missing name", RegisterInput{Name: "  ", Email: "a@b.io", Password: "123456", PasswordConfirmation: "123456"}, "name", "Name is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tc.in)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			fields, ok := domain.AsFieldErrors(err)
			require.True(t, ok)
			assert.Contains(t, fields[tc.field], tc.msg)
		})
	}
}

func TestRegister_DuplicateEmailIgnoresCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registerInput("ann@example.com"))
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, registerInput("ANN@example.com"))
	require.ErrorIs(t, err, domain.ErrConflict)
	fields, _ := domain.AsFieldErrors(err)
	assert.Equal(t, []string{"Email already taken"}, fields["email"])
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registerInput("ann@example.com"))
	require.NoError(t, err)

	res, err := f.svc.Authenticate(ctx, LoginInput{Email: "Ann@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	_, err = f.svc.Authenticate(ctx, LoginInput{Email: "ann@example.com", Password: "wrong!!"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.svc.Authenticate(ctx, LoginInput{Email: "ghost@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.svc.Authenticate(ctx, LoginInput{Email: "", Password: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLogout_RevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, registerInput("ann@example.com"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, res.Token))

	_, _, err = f.svc.CurrentUser(ctx, res.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestCurrentUser_RejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, _, err := f.svc.CurrentUser(ctx, token)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated, token)
	}

	other, err := NewTokenCodec("other-secret")
	require.NoError(t, err)
	now := time.Now()
	forged, err := other.Issue(domain.Session{ID: "s", UserID: 1, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	_, _, err = f.svc.CurrentUser(ctx, forged)
	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
}

func TestCurrentUser_ExpiredSession(t *testing.T) {
	now := time.Now().UTC()
	f := newFixture(t, WithSessionTTL(time.Minute), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	res, err := f.svc.Register(ctx, registerInput("ann@example.com"))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, _, err = f.svc.CurrentUser(ctx, res.Token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec, err := NewTokenCodec("k")
	require.NoError(t, err)

	now := time.Now()
	token, err := codec.Issue(domain.Session{ID: "sid", UserID: 42, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	claims, err := codec.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, TokenClaims{SessionID: "sid", UserID: 42}, claims)

	_, err = NewTokenCodec("")
	assert.Error(t, err)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("pw")
	require.NoError(t, err)
	assert.NoError(t, h.Compare(hash, "pw"))
	assert.ErrorIs(t, h.Compare(hash, "other"), domain.ErrUnauthorized)
	assert.Error(t, h.Compare("not-a-hash", "pw"))
}
