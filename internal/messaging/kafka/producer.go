package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
)

// Header: заголовок Kafka-сообщения.
type Header struct {
	Key   string
	Value string
}

// Producer публикует сообщения через синхронный sarama-producer.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// NewProducer создает producer с подтверждением от всех in-sync реплик.
// Повторы ограничены настройками транспорта; сам Producer их не делает.
func NewProducer(brokers []string, logger *log.Entry) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewProducerFromSync(producer, logger), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer.
func NewProducerFromSync(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Producer{
		producer: producer,
		logger:   logger.WithField("component", "kafka-producer"),
	}
}

// Publish отправляет сообщение и возвращает его идентификатор вида topic/partition/offset.
// SendMessage не принимает контекст, поэтому ожидание прерывается по ctx,
// а сама отправка завершается в фоне и её результат только логируется.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload []byte, headers ...Header) (string, error) {
	if p == nil || p.producer == nil {
		return "", fmt.Errorf("%w: kafka producer is not initialized", domain.ErrPublish)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPublish, err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Now().UTC(),
	}
	for _, h := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(h.Key), Value: []byte(h.Value)})
	}

	type sendResult struct {
		partition int32
		offset    int64
		err       error
	}
	done := make(chan sendResult, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		done <- sendResult{partition: partition, offset: offset, err: err}
	}()

	fields := log.Fields{"topic": topic, "key": key}

	select {
	case res := <-done:
		if res.err != nil {
			p.logger.WithError(res.err).WithFields(fields).Error("failed to send message to kafka")
			return "", fmt.Errorf("%w: send to %s: %v", domain.ErrPublish, topic, res.err)
		}
		messageID := MessageID(topic, res.partition, res.offset)
		p.logger.WithFields(fields).WithFields(log.Fields{
			"partition": res.partition,
			"offset":    res.offset,
		}).Debug("message sent to kafka")
		return messageID, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err != nil {
				p.logger.WithError(res.err).WithFields(fields).Warn("abandoned kafka send failed")
			}
		}()
		return "", fmt.Errorf("%w: send to %s: %v", domain.ErrPublish, topic, ctx.Err())
	}
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

// MessageID формирует идентификатор сообщения, назначенный брокером.
func MessageID(topic string, partition int32, offset int64) string {
	return fmt.Sprintf("%s/%d/%d", topic, partition, offset)
}
