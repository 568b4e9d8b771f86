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

	"github.com/vladislavdragonenkov/order-lifecycle/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	statusCommand  = "status"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout); err != nil {
		cancel()
		fail("%v", err)
	}
}

// run разбирает флаги и применяет миграции к orders-схеме.
func run(ctx context.Context, args []string, getenv func(string) string, out io.Writer) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	var (
		direction string
		steps     int
		dsn       string
	)
	flags.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	flags.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flags.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: OMS_POSTGRES_DSN)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	command := strings.ToLower(strings.TrimSpace(direction))
	var dir postgres.Direction
	if command != statusCommand {
		parsed, err := postgres.ParseDirection(command)
		if err != nil {
			return fmt.Errorf("%w (use up|down|status)", err)
		}
		dir = parsed
	}
	if steps < 0 {
		return fmt.Errorf("steps must be >= 0, got %d", steps)
	}

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(getenv("OMS_POSTGRES_DSN"))
	}
	if dsn == "" {
		return errors.New("OMS_POSTGRES_DSN (or -dsn) is required")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch dir {
	case postgres.DirectionUp:
		err = store.MigrateUp(ctx, steps)
	case postgres.DirectionDown:
		err = store.MigrateDown(ctx, steps)
	}
	if err != nil {
		return fmt.Errorf("migrate %s failed: %w", dir, err)
	}

	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	if command == statusCommand {
		_, _ = fmt.Fprintf(out, "migration status: version=%d applied=%d\n", version, count)
		return nil
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d\n", dir, version, count)
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
