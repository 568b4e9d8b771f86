package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

const brokerDialTimeout = 2 * time.Second

// CheckBrokers проверяет, что кластер отвечает на запрос метаданных.
// Используется как необязательная health-проверка.
func CheckBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka brokers are not configured")
	}

	config := sarama.NewConfig()
	config.Net.DialTimeout = brokerDialTimeout
	config.Metadata.Retry.Max = 0

	done := make(chan error, 1)
	go func() {
		client, err := sarama.NewClient(brokers, config)
		if err != nil {
			done <- fmt.Errorf("kafka brokers unreachable: %w", err)
			return
		}
		defer func() { _ = client.Close() }()
		if len(client.Brokers()) == 0 {
			done <- errors.New("kafka cluster returned no brokers")
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
