package identity

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// BcryptHasher — реализация domain.PasswordHasher на bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher создаёт хешер; cost вне допустимого диапазона заменяется на bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return domain.ErrUnauthorized
	default:
		return fmt.Errorf("compare password: %w", err)
	}
}

var _ domain.PasswordHasher = (*BcryptHasher)(nil)
