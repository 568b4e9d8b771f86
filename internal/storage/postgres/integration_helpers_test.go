package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// openPostgresStoreForIntegrationTest возвращает store с актуальной схемой и пустой таблицей orders.
func openPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if _, err := store.DB().ExecContext(ctx, `TRUNCATE TABLE orders`); err != nil {
		t.Fatalf("truncate orders: %v", err)
	}
	return store
}

// openRawPostgresStoreForIntegrationTest пробует DSN из окружения, затем
// поднимает контейнер через testcontainers. Если ничего недоступно, тест пропускается.
func openRawPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	var openErrs []string
	for _, dsn := range envDSNCandidates() {
		store, err := openWithShortTimeout(dsn)
		if err == nil {
			t.Cleanup(func() { _ = store.Close() })
			return store
		}
		openErrs = append(openErrs, fmt.Sprintf("%s: %v", dsn, err))
	}

	if os.Getenv("OMS_SKIP_TESTCONTAINERS") == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)

		dsn, err := sharedContainerDSN()
		if err == nil {
			store, openErr := openWithShortTimeout(dsn)
			if openErr == nil {
				t.Cleanup(func() { _ = store.Close() })
				return store
			}
			err = openErr
		}
		openErrs = append(openErrs, fmt.Sprintf("testcontainers: %v", err))
	}

	t.Skipf("postgres is not available for integration tests: %s", strings.Join(openErrs, " | "))
	return nil
}

func envDSNCandidates() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, key := range []string{"OMS_POSTGRES_TEST_DSN", "OMS_POSTGRES_DSN"} {
		dsn := strings.TrimSpace(os.Getenv(key))
		if dsn == "" {
			continue
		}
		if _, ok := seen[dsn]; ok {
			continue
		}
		seen[dsn] = struct{}{}
		out = append(out, dsn)
	}
	return out
}

func openWithShortTimeout(dsn string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return Open(ctx, dsn)
}

// sharedContainerDSN поднимает один контейнер на весь прогон пакета.
// Контейнер убирает ryuk после завершения процесса.
func sharedContainerDSN() (string, error) {
	containerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := tcpostgres.Run(ctx,
			"postgres:15-alpine",
			tcpostgres.WithDatabase("orders"),
			tcpostgres.WithUsername("oms"),
			tcpostgres.WithPassword("oms"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}

		containerDSN, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	return containerDSN, containerErr
}
