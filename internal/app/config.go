package app

import (
	"strings"
	"time"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/messaging/kafka"
)

const (
	// StorageDriverMemory: хранилище в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres: хранилище в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int

	// KafkaBrokers: список адресов через запятую; пустой отключает публикацию.
	KafkaBrokers       string
	OrderEventsTopic   string
	EventsSubscription string
	DLQTopic           string

	PublishTimeout    time.Duration
	StoreTimeout      time.Duration
	ShutdownTimeout   time.Duration
	StrictTransitions bool
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    25,
		OrderEventsTopic:    kafka.DefaultOrderEventsTopic,
		EventsSubscription:  kafka.DefaultSubscription,
		DLQTopic:            kafka.DefaultDeadLetterTopic,
		PublishTimeout:      5 * time.Second,
		StoreTimeout:        5 * time.Second,
		ShutdownTimeout:     10 * time.Second,
	}
}

// Brokers разбирает KafkaBrokers, отбрасывая пустые элементы.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// drainTimeout: сколько ждать фоновые публикации при остановке. Не меньше
// PublishTimeout, иначе producer закроется под ещё идущей отправкой.
func (c Config) drainTimeout() time.Duration {
	if c.ShutdownTimeout < c.PublishTimeout {
		return c.PublishTimeout
	}
	return c.ShutdownTimeout
}
