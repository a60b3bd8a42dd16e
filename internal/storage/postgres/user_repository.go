package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const userColumns = `id, name, email, password_hash, created_at, updated_at, deleted_at`

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	created, err := scanUser(r.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+userColumns,
		user.Name, user.Email, user.PasswordHash,
	))
	if err != nil {
		if constraint, ok := isUniqueViolation(err); ok && constraint == "users_email_key" {
			return domain.User{}, &domain.ConflictError{Field: "email", Message: "Email already taken"}
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

func (r *userRepository) Get(ctx context.Context, id int64) (domain.User, error) {
	return r.getOne(ctx, `WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL`, email)
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))
	`, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) getOne(ctx context.Context, where string, arg any) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u         domain.User
		deletedAt sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &deletedAt); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		u.DeletedAt = &t
	}
	return u, nil
}
