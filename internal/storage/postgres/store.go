// Package postgres реализует хранилище магазина поверх PostgreSQL (драйвер pgx через database/sql).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	connectTimeout = 5 * time.Second
	opTimeout      = 5 * time.Second

	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// PoolOptions — параметры пула соединений.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolOptions подходит для одного экземпляра API.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Option меняет параметры пула.
type Option func(*PoolOptions)

// WithMaxOpenConns ограничивает число открытых соединений.
func WithMaxOpenConns(n int) Option {
	return func(o *PoolOptions) {
		if n > 0 {
			o.MaxOpenConns = n
			o.MaxIdleConns = min(o.MaxIdleConns, n)
		}
	}
}

// Store владеет пулом соединений и раздаёт его репозиториям.
type Store struct {
	db *sql.DB
}

// queryer — общее подмножество *sql.DB и *sql.Tx, чтобы чтение заказов
// работало и внутри транзакции оформления, и вне её.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open подключается к базе и проверяет её доступность.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	pool := DefaultPoolOptions()
	for _, option := range options {
		option(&pool)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB отдаёт пул для тестов и служебных задач.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет соединение с ограничением по времени.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// EnsureSchema доводит схему до последней версии.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) (constraint string, ok bool) {
	if pgErr, found := asPgError(err); found && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func isCheckViolation(err error) bool {
	pgErr, found := asPgError(err)
	return found && pgErr.Code == pgCheckViolation
}

func asPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
