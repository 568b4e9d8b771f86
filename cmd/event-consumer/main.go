package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/messaging/kafka"
)

type consumerConfig struct {
	brokers      []string
	topic        string
	subscription string
	dlqTopic     string
}

func readConfig(getenv func(string) string) consumerConfig {
	cfg := consumerConfig{
		topic:        kafka.DefaultOrderEventsTopic,
		subscription: kafka.DefaultSubscription,
		dlqTopic:     kafka.DefaultDeadLetterTopic,
	}
	for _, broker := range strings.Split(getenv("KAFKA_BROKERS"), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}
	if v := strings.TrimSpace(getenv("OMS_ORDER_EVENTS_TOPIC")); v != "" {
		cfg.topic = v
	}
	if v := strings.TrimSpace(getenv("OMS_EVENTS_SUBSCRIPTION")); v != "" {
		cfg.subscription = v
	}
	if v := strings.TrimSpace(getenv("OMS_DLQ_TOPIC")); v != "" {
		cfg.dlqTopic = v
	}
	return cfg
}

// eventLog печатает события и отмечает устаревшие: доставка at-least-once,
// поэтому повтор или старое состояние заказа не считаются ошибкой.
type eventLog struct {
	logger *log.Entry

	mu     sync.Mutex
	latest map[string]time.Time
}

func newEventLog(logger *log.Entry) *eventLog {
	return &eventLog{logger: logger, latest: make(map[string]time.Time)}
}

func (l *eventLog) Handle(_ context.Context, event domain.OrderEvent) error {
	l.mu.Lock()
	seen, ok := l.latest[event.OrderID]
	stale := ok && !event.UpdatedAt.After(seen)
	if !stale {
		l.latest[event.OrderID] = event.UpdatedAt
	}
	l.mu.Unlock()

	entry := l.logger.WithFields(log.Fields{
		"order_id":   event.OrderID,
		"status":     event.Status,
		"updated_at": event.UpdatedAt.Format(time.RFC3339Nano),
	})
	if stale {
		entry.Debug("stale order event skipped")
		return nil
	}
	entry.Info("order event received")
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env file")
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level, err := log.ParseLevel(strings.TrimSpace(os.Getenv("OMS_LOG_LEVEL"))); err == nil {
		log.SetLevel(level)
	}

	logger := log.WithField("component", "event-consumer")
	cfg := readConfig(os.Getenv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dlq, err := kafka.NewProducer(cfg.brokers, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create dlq producer")
	}
	defer func() { _ = dlq.Close() }()

	subscriber, err := kafka.NewSubscriber(cfg.brokers, cfg.topic,
		kafka.WithDeadLetter(dlq, cfg.dlqTopic),
		kafka.WithSubscriberLogger(logger),
	)
	if err != nil {
		logger.WithError(err).Fatal("failed to create subscriber")
	}

	subscription, err := subscriber.Subscribe(ctx, cfg.subscription, newEventLog(logger).Handle)
	if err != nil {
		logger.WithError(err).Fatal("failed to subscribe")
	}

	logger.WithFields(log.Fields{
		"topic":        cfg.topic,
		"subscription": cfg.subscription,
		"dlq_topic":    cfg.dlqTopic,
	}).Info("consuming order events")

	<-ctx.Done()
	if err := subscription.Stop(); err != nil {
		logger.WithError(err).Warn("subscription stopped with error")
	}
}
