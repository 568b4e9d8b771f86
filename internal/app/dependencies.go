package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/storage/memory"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/storage/postgres"
)

// runtimeDependencies: хранилище и функции его обслуживания.
type runtimeDependencies struct {
	store domain.OrderStore
	ping  func(ctx context.Context) error
	close func() error
}

// initRuntimeDependencies выбирает хранилище по cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		logger.Info("using in-memory order store")
		return &runtimeDependencies{
			store: memory.NewOrderStore(),
			ping:  func(context.Context) error { return nil },
			close: func() error { return nil },
		}, nil
	case StorageDriverPostgres:
		return initPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initPostgres(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required for postgres storage driver")
	}

	options := []postgres.Option{postgres.WithOpTimeout(cfg.StoreTimeout)}
	if cfg.PostgresMaxConns > 0 {
		options = append(options, postgres.WithMaxOpenConns(cfg.PostgresMaxConns))
	}
	store, err := postgres.Open(ctx, dsn, options...)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate postgres schema: %w", err)
		}
		logger.Info("postgres schema is up to date")
	}

	logger.Info("using postgres order store")
	return &runtimeDependencies{
		store: postgres.NewOrderStore(store),
		ping:  store.Ping,
		close: store.Close,
	}, nil
}
