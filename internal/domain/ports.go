package domain

import (
	"context"
	"time"
)

// OrderFilter ограничивает выборку заказов; пустой SellerID отключает фильтр.
type OrderFilter struct {
	SellerID string
}

// OrderStore описывает требования к хранилищу заказов.
// Хранилище пассивно: бизнес-логики и собственного пути записи у него нет.
type OrderStore interface {
	// Insert сохраняет новый заказ или возвращает ErrDuplicateKey.
	Insert(ctx context.Context, order Order) (Order, error)
	// FindAll возвращает заказы в порядке создания; пустой срез, если совпадений нет.
	FindAll(ctx context.Context, filter OrderFilter) ([]Order, error)
	// FindByOrderID возвращает заказ или ErrOrderNotFound.
	FindByOrderID(ctx context.Context, orderID string) (Order, error)
	// UpdateByOrderID применяет патч и updatedAt; без upsert, ErrOrderNotFound при промахе.
	UpdateByOrderID(ctx context.Context, orderID string, patch OrderPatch, updatedAt time.Time) (Order, error)
	// DeleteByOrderID удаляет заказ или возвращает ErrOrderNotFound.
	DeleteByOrderID(ctx context.Context, orderID string) error
}

// EventPublisher доставляет события заказа в брокер.
type EventPublisher interface {
	// PublishOrderEvent публикует событие и возвращает идентификатор сообщения.
	// Повторных попыток не делает.
	PublishOrderEvent(ctx context.Context, eventType EventType, event OrderEvent) (string, error)
}

// OrderEventHandler обрабатывает доставленное событие. nil означает подтверждение.
type OrderEventHandler func(ctx context.Context, event OrderEvent) error
