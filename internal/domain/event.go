package domain

import "time"

// EventType различает события создания и обновления заказа.
type EventType string

const (
	EventTypeOrderCreated EventType = "order.created"
	EventTypeOrderUpdated EventType = "order.updated"
)

// OrderEvent: проекция заказа в момент create/update. Не хранится.
type OrderEvent struct {
	OrderID   string      `json:"orderId"`
	Status    OrderStatus `json:"status"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
