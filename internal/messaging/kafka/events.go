package kafka

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
)

// Топики по умолчанию.
const (
	DefaultOrderEventsTopic = "order-events"
	DefaultSubscription     = "invoice-service-subscription"
	DefaultDeadLetterTopic  = "order-events.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderEventID       = "x-event-id"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// ErrMalformedEvent: сообщение не удалось разобрать как OrderEvent.
var ErrMalformedEvent = errors.New("malformed order event")

// EncodeOrderEvent сериализует событие в JSON: {orderId, status, updatedAt}.
func EncodeOrderEvent(event domain.OrderEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal order event: %w", err)
	}
	return payload, nil
}

// DecodeOrderEvent разбирает и проверяет полезную нагрузку события.
func DecodeOrderEvent(payload []byte) (domain.OrderEvent, error) {
	var raw struct {
		OrderID   string `json:"orderId"`
		Status    string `json:"status"`
		UpdatedAt string `json:"updatedAt"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.OrderEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.OrderID == "" {
		return domain.OrderEvent{}, fmt.Errorf("%w: orderId is empty", ErrMalformedEvent)
	}

	status, err := domain.ParseOrderStatus(raw.Status)
	if err != nil {
		return domain.OrderEvent{}, fmt.Errorf("%w: status %q", ErrMalformedEvent, raw.Status)
	}

	event := domain.OrderEvent{OrderID: raw.OrderID, Status: status}
	if err := event.UpdatedAt.UnmarshalText([]byte(raw.UpdatedAt)); err != nil {
		return domain.OrderEvent{}, fmt.Errorf("%w: updatedAt: %v", ErrMalformedEvent, err)
	}
	return event, nil
}
