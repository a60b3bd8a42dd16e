package identity

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const tokenIssuer = "storefront"

// TokenCodec подписывает и проверяет токены сессии (HS256).
// sub — id пользователя, jti — id сессии в хранилище.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec создаёт кодек. Пустой секрет недопустим.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	return &TokenCodec{secret: []byte(secret), now: time.Now}, nil
}

// Issue подписывает токен для сессии.
func (c *TokenCodec) Issue(session domain.Session) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   strconv.FormatInt(session.UserID, 10),
		ID:        session.ID,
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// TokenClaims — проверенное содержимое токена.
type TokenClaims struct {
	SessionID string
	UserID    int64
}

// Parse проверяет подпись, алгоритм, издателя и срок действия.
// Любая ошибка приводится к domain.ErrUnauthenticated.
func (c *TokenCodec) Parse(raw string) (TokenClaims, error) {
	if raw == "" {
		return TokenClaims{}, domain.ErrUnauthenticated
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 || claims.ID == "" {
		return TokenClaims{}, domain.ErrUnauthenticated
	}
	return TokenClaims{SessionID: claims.ID, UserID: userID}, nil
}
