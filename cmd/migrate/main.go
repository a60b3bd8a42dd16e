// Command migrate применяет и откатывает встроенные SQL-миграции PostgreSQL.
//
//	migrate -direction=up
//	migrate -direction=down -steps=2
//	migrate -direction=list
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/storefront/internal/config"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = config.EnvPrefix + "_POSTGRES_DSN"
)

var (
	errMissingDSN       = errors.New(envPostgresDSN + " (or -dsn) is required")
	errUnknownDirection = errors.New("unknown direction, use up|down|status|list")
)

type options struct {
	direction string
	steps     int
	dsn       string
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		cancel()
		_, _ = fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	var (
		opts    options
		envFile string
	)
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&opts.direction, "direction", "up", "up|down|status|list")
	fs.IntVar(&opts.steps, "steps", 0, "migrations to apply (0 = all) or roll back (0 = one)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN, defaults to "+envPostgresDSN)
	fs.StringVar(&envFile, "env-file", ".env", "optional .env file")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	switch opts.direction {
	case "up", "down", "status", "list":
	default:
		return options{}, fmt.Errorf("%w: %q", errUnknownDirection, opts.direction)
	}

	opts.dsn = resolveDSN(opts.dsn, envFile)
	if opts.dsn == "" {
		return options{}, errMissingDSN
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return err
		}
	case "down":
		if err := store.MigrateDown(ctx, opts.steps); err != nil {
			return err
		}
	case "list":
		infos, err := store.Migrations(ctx)
		if err != nil {
			return err
		}
		for _, info := range infos {
			_, _ = fmt.Fprintln(out, formatMigration(info))
		}
		return nil
	}

	current, applied, err := store.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s: version=%d applied=%d\n", opts.direction, current, applied)
	return nil
}

// resolveDSN: флаг, затем переменная окружения, при необходимости подгруженная из envFile.
func resolveDSN(flagValue, envFile string) string {
	if dsn := strings.TrimSpace(flagValue); dsn != "" {
		return dsn
	}
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}
	return strings.TrimSpace(os.Getenv(envPostgresDSN))
}

func formatMigration(info postgres.MigrationInfo) string {
	state := "pending"
	if info.Applied {
		state = "applied"
	}
	return fmt.Sprintf("%03d_%s\t%s", info.Version, info.Name, state)
}
