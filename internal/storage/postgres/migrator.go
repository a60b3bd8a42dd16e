package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var embeddedMigrations embed.FS

const (
	migrationsDir = "sql/migrations"
	// Ключ advisory lock, сериализующий миграции между экземплярами сервиса.
	migrationLockKey = int64(0x53544f5245) // "STORE"
	lockTimeout      = 5 * time.Second

	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

// MigrationInfo описывает одну миграцию и признак её применения.
type MigrationInfo struct {
	Version int64
	Name    string
	Applied bool
}

// migrationStep — пара up/down скриптов одной версии схемы.
type migrationStep struct {
	version int64
	name    string
	up      string
	down    string
}

func (m migrationStep) label() string {
	return fmt.Sprintf("%03d_%s", m.version, m.name)
}

// migrationPlan упорядочен по возрастанию версии.
type migrationPlan []migrationStep

// parseMigrations читает файлы вида 001_name.up.sql / 001_name.down.sql из dir.
func parseMigrations(fsys fs.FS, dir string) (migrationPlan, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	steps := make(map[int64]*migrationStep)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, direction, err := parseMigrationName(entry.Name())
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}

		step, ok := steps[version]
		if !ok {
			step = &migrationStep{version: version, name: name}
			steps[version] = step
		}
		if step.name != name {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, step.name, name)
		}

		target := &step.up
		if direction == "down" {
			target = &step.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*target = body
	}

	if len(steps) == 0 {
		return nil, errors.New("no migration files found")
	}

	plan := make(migrationPlan, 0, len(steps))
	for _, step := range steps {
		if step.up == "" || step.down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down scripts", step.label())
		}
		plan = append(plan, *step)
	}
	slices.SortFunc(plan, func(a, b migrationStep) int { return cmp.Compare(a.version, b.version) })
	return plan, nil
}

func parseMigrationName(file string) (version int64, name, direction string, err error) {
	base := strings.TrimSuffix(file, ".sql")
	stem, direction, ok := cutLast(base, ".")
	if !ok || (direction != "up" && direction != "down") {
		return 0, "", "", fmt.Errorf("migration %s: expected .up.sql or .down.sql suffix", file)
	}
	rawVersion, name, ok := strings.Cut(stem, "_")
	if !ok || name == "" {
		return 0, "", "", fmt.Errorf("migration %s: expected <version>_<name>", file)
	}
	version, err = strconv.ParseInt(rawVersion, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", "", fmt.Errorf("migration %s: invalid version %q", file, rawVersion)
	}
	return version, name, direction, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// pending возвращает неприменённые шаги по возрастанию версии.
func (p migrationPlan) pending(applied map[int64]bool) []migrationStep {
	var out []migrationStep
	for _, step := range p {
		if !applied[step.version] {
			out = append(out, step)
		}
	}
	return out
}

func (p migrationPlan) find(version int64) (migrationStep, bool) {
	i, ok := slices.BinarySearchFunc(p, version, func(m migrationStep, v int64) int { return cmp.Compare(m.version, v) })
	if !ok {
		return migrationStep{}, false
	}
	return p[i], true
}

// MigrateUp применяет steps неприменённых миграций; steps<=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(ctx context.Context, conn *sql.Conn, plan migrationPlan) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		todo := plan.pending(applied)
		if steps > 0 && len(todo) > steps {
			todo = todo[:steps]
		}
		for _, step := range todo {
			if err := execMigration(ctx, conn, step, step.up,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, step.version, step.name); err != nil {
				return fmt.Errorf("migrate up %s: %w", step.label(), err)
			}
		}
		return nil
	})
}

// MigrateDown откатывает steps последних миграций; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(ctx context.Context, conn *sql.Conn, plan migrationPlan) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		versions := make([]int64, 0, len(applied))
		for version := range applied {
			versions = append(versions, version)
		}
		slices.SortFunc(versions, func(a, b int64) int { return cmp.Compare(b, a) })
		if len(versions) > steps {
			versions = versions[:steps]
		}

		for _, version := range versions {
			step, ok := plan.find(version)
			if !ok {
				return fmt.Errorf("cannot roll back unknown migration version %d", version)
			}
			if err := execMigration(ctx, conn, step, step.down,
				`DELETE FROM schema_migrations WHERE version = $1`, step.version); err != nil {
				return fmt.Errorf("migrate down %s: %w", step.label(), err)
			}
		}
		return nil
	})
}

// MigrationStatus возвращает последнюю применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errStoreNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	var (
		version int64
		count   int
	)
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`).Scan(&version, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return version, count, nil
}

// Migrations возвращает встроенные миграции с отметкой о применении.
func (s *Store) Migrations(ctx context.Context) ([]MigrationInfo, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}
	plan, err := parseMigrations(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	infos := make([]MigrationInfo, 0, len(plan))
	for _, step := range plan {
		infos = append(infos, MigrationInfo{Version: step.version, Name: step.name, Applied: applied[step.version]})
	}
	return infos, nil
}

// withMigrationLock выполняет fn на выделенном соединении под advisory lock.
func (s *Store) withMigrationLock(ctx context.Context, fn func(context.Context, *sql.Conn, migrationPlan) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	plan, err := parseMigrations(embeddedMigrations, migrationsDir)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(ctx, conn, plan)
}

// execMigration выполняет скрипт и обновление schema_migrations в одной транзакции.
func execMigration(ctx context.Context, conn *sql.Conn, step migrationStep, script, bookkeeping string, args ...any) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("execute script: %w", err)
	}
	if _, err = tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("update schema_migrations for %s: %w", step.label(), err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
