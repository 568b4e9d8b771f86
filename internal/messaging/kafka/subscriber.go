package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
)

const defaultRedeliveryDelay = time.Second

// errRedeliver завершает сессию без подтверждения, чтобы группа перечитала
// сообщение с последнего закоммиченного offset.
var errRedeliver = errors.New("message left unacknowledged")

// groupFactory создаёт consumer group с заданным идентификатором.
type groupFactory func(groupID string) (sarama.ConsumerGroup, error)

// SubscriberOption настраивает Subscriber.
type SubscriberOption func(*Subscriber)

// WithDeadLetter включает пересылку неразбираемых сообщений в DLQ-топик.
func WithDeadLetter(sender messageSender, topic string) SubscriberOption {
	return func(s *Subscriber) {
		s.dlq = sender
		if topic != "" {
			s.dlqTopic = topic
		}
	}
}

// WithRedeliveryDelay задаёт паузу перед повторным чтением неподтверждённого сообщения.
func WithRedeliveryDelay(delay time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		if delay >= 0 {
			s.redeliveryDelay = delay
		}
	}
}

// WithSubscriberLogger переопределяет логгер.
func WithSubscriberLogger(logger *log.Entry) SubscriberOption {
	return func(s *Subscriber) {
		if logger != nil {
			s.logger = logger.WithField("component", "kafka-subscriber")
		}
	}
}

// Subscriber доставляет события заказа из топика обработчику.
type Subscriber struct {
	topic           string
	newGroup        groupFactory
	dlq             messageSender
	dlqTopic        string
	redeliveryDelay time.Duration
	logger          *log.Entry
}

// NewSubscriber создаёт подписчика на топик событий заказа.
func NewSubscriber(brokers []string, topic string, opts ...SubscriberOption) (*Subscriber, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	factory := func(groupID string) (sarama.ConsumerGroup, error) {
		config := sarama.NewConfig()
		config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
		config.Consumer.Offsets.Initial = sarama.OffsetOldest
		config.Consumer.Return.Errors = true

		group, err := sarama.NewConsumerGroup(brokers, groupID, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
		}
		return group, nil
	}

	return newSubscriber(topic, factory, opts...), nil
}

func newSubscriber(topic string, factory groupFactory, opts ...SubscriberOption) *Subscriber {
	if topic == "" {
		topic = DefaultOrderEventsTopic
	}
	s := &Subscriber{
		topic:           topic,
		newGroup:        factory,
		dlqTopic:        DefaultDeadLetterTopic,
		redeliveryDelay: defaultRedeliveryDelay,
		logger:          log.WithField("component", "kafka-subscriber"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe запускает consumer group с именем subscription и возвращает
// управляющий объект. Обработка идёт в фоне до отмены ctx или Stop.
func (s *Subscriber) Subscribe(ctx context.Context, subscription string, handler domain.OrderEventHandler) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("order event handler is nil")
	}
	if subscription == "" {
		subscription = DefaultSubscription
	}

	group, err := s.newGroup(subscription)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		group:   group,
		cancel:  cancel,
		handler: &claimHandler{subscriber: s, handle: handler},
		logger:  s.logger.WithField("subscription", subscription),
	}
	sub.start(runCtx, []string{s.topic})
	return sub, nil
}

// Subscription: активная подписка на топик.
type Subscription struct {
	group   sarama.ConsumerGroup
	cancel  context.CancelFunc
	handler *claimHandler
	logger  *log.Entry
	wg      sync.WaitGroup
	stop    sync.Once
	stopErr error
}

func (s *Subscription) start(ctx context.Context, topics []string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			// Consume возвращается при каждом rebalance и при ошибке claim'а.
			if err := s.group.Consume(ctx, topics, s.handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				s.logger.WithError(err).Error("error from consumer group")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for err := range s.group.Errors() {
			s.logger.WithError(err).Error("consumer group error")
		}
	}()

	s.logger.WithField("topics", topics).Info("kafka subscription started")
}

// Stop останавливает чтение и закрывает consumer group. Повторный вызов безопасен.
func (s *Subscription) Stop() error {
	s.stop.Do(func() {
		s.cancel()
		if err := s.group.Close(); err != nil {
			s.stopErr = fmt.Errorf("failed to close kafka consumer group: %w", err)
		}
		s.wg.Wait()
		s.logger.Info("kafka subscription stopped")
	})
	return s.stopErr
}

// claimHandler реализует sarama.ConsumerGroupHandler.
type claimHandler struct {
	subscriber *Subscriber
	handle     domain.OrderEventHandler
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения партиции по порядку. Подтверждаются
// успешно обработанные и отправленные в DLQ сообщения; на первом неподтверждённом
// claim завершается, чтобы не закоммитить offset за ним.
func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := h.process(session.Context(), message); err != nil {
				h.waitBeforeRedelivery(session.Context())
				return err
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *claimHandler) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	logger := h.subscriber.logger.WithFields(log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	})

	event, err := DecodeOrderEvent(message.Value)
	if err != nil {
		logger.WithError(err).Warn("dropping malformed order event")
		if dlqErr := h.forwardToDeadLetter(ctx, message, err); dlqErr != nil {
			logger.WithError(dlqErr).Error("failed to forward message to dead letter topic")
			return fmt.Errorf("%w: %v", errRedeliver, dlqErr)
		}
		return nil
	}

	logger = logger.WithFields(log.Fields{
		"order_id":   event.OrderID,
		"event_type": headerValue(message, HeaderEventType),
	})
	logger.Debug("received order event")

	if err := h.handle(ctx, event); err != nil {
		logger.WithError(err).Warn("order event handler failed, message will be redelivered")
		return fmt.Errorf("%w: %v", errRedeliver, err)
	}
	return nil
}

func (h *claimHandler) forwardToDeadLetter(ctx context.Context, message *sarama.ConsumerMessage, cause error) error {
	if h.subscriber.dlq == nil {
		return nil
	}

	headers := []Header{
		{Key: HeaderOriginalTopic, Value: message.Topic},
		{Key: HeaderErrorMessage, Value: cause.Error()},
		{Key: HeaderFailedAt, Value: time.Now().UTC().Format(time.RFC3339)},
	}
	_, err := h.subscriber.dlq.Publish(ctx, h.subscriber.dlqTopic, string(message.Key), message.Value, headers...)
	return err
}

func (h *claimHandler) waitBeforeRedelivery(ctx context.Context) {
	delay := h.subscriber.redeliveryDelay
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func headerValue(message *sarama.ConsumerMessage, key string) string {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}
