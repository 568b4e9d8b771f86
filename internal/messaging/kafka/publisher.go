package kafka

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
)

// messageSender: то, что нужно публикатору от Producer.
type messageSender interface {
	Publish(ctx context.Context, topic, key string, payload []byte, headers ...Header) (string, error)
}

// OrderEventPublisher публикует события заказа в один топик.
// Ключом сообщения служит orderId, поэтому события одного заказа попадают в одну партицию.
type OrderEventPublisher struct {
	sender  messageSender
	topic   string
	eventID func() string
}

// NewOrderEventPublisher создаёт публикатор событий заказа.
func NewOrderEventPublisher(sender messageSender, topic string) *OrderEventPublisher {
	if topic == "" {
		topic = DefaultOrderEventsTopic
	}
	return &OrderEventPublisher{
		sender:  sender,
		topic:   topic,
		eventID: func() string { return uuid.NewString() },
	}
}

// Topic возвращает топик публикации.
func (p *OrderEventPublisher) Topic() string {
	return p.topic
}

// PublishOrderEvent сериализует событие и отправляет его один раз.
func (p *OrderEventPublisher) PublishOrderEvent(ctx context.Context, eventType domain.EventType, event domain.OrderEvent) (string, error) {
	if p == nil || p.sender == nil {
		return "", fmt.Errorf("%w: order event publisher is not initialized", domain.ErrPublish)
	}

	payload, err := EncodeOrderEvent(event)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPublish, err)
	}

	return p.sender.Publish(ctx, p.topic, event.OrderID, payload,
		Header{Key: HeaderEventType, Value: string(eventType)},
		Header{Key: HeaderEventID, Value: p.eventID()},
	)
}

var _ domain.EventPublisher = (*OrderEventPublisher)(nil)
