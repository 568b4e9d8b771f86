package order

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/metrics"
)

// Manager: единственная точка изменения заказов. После успешной записи
// в хранилище публикует событие в фоне; исход публикации не влияет на ответ.
type Manager struct {
	store     domain.OrderStore
	publisher domain.EventPublisher
	opts      Options
	logger    *log.Entry

	dispatchMu     sync.Mutex
	dispatchClosed bool
	dispatchWG     sync.WaitGroup
}

// NewManager собирает менеджер. publisher может быть nil: тогда события не публикуются.
func NewManager(store domain.OrderStore, publisher domain.EventPublisher, options ...Option) *Manager {
	opts := defaultOptions()
	for _, option := range options {
		option(&opts)
	}
	opts.normalize()

	return &Manager{
		store:     store,
		publisher: publisher,
		opts:      opts,
		logger:    opts.Logger,
	}
}

// Create проверяет вход, сохраняет заказ со статусом Created и запускает публикацию.
func (m *Manager) Create(ctx context.Context, in domain.CreateOrderInput) (domain.Order, error) {
	if err := domain.ValidationFailure(in.Validate()); err != nil {
		m.opts.Metrics.RecordMutation(metrics.OperationCreate, err)
		return domain.Order{}, err
	}

	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		orderID = m.opts.NewID()
	}
	now := m.opts.Clock().UTC()

	order := domain.Order{
		OrderID:    orderID,
		Price:      in.Price,
		Quantity:   in.Quantity,
		ProductID:  strings.TrimSpace(in.ProductID),
		CustomerID: strings.TrimSpace(in.CustomerID),
		SellerID:   strings.TrimSpace(in.SellerID),
		Status:     domain.OrderStatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	storeCtx, cancel := m.storeContext(ctx)
	stored, err := m.store.Insert(storeCtx, order)
	cancel()
	m.opts.Metrics.RecordMutation(metrics.OperationCreate, err)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order %s: %w", orderID, err)
	}

	m.logger.WithFields(log.Fields{
		"order_id":  stored.OrderID,
		"seller_id": stored.SellerID,
	}).Info("order created")

	m.dispatchEvent(ctx, domain.EventTypeOrderCreated, stored)
	return stored, nil
}

// List возвращает заказы, при непустом sellerID только этого продавца.
func (m *Manager) List(ctx context.Context, sellerID string) ([]domain.Order, error) {
	storeCtx, cancel := m.storeContext(ctx)
	defer cancel()

	orders, err := m.store.FindAll(storeCtx, domain.OrderFilter{SellerID: strings.TrimSpace(sellerID)})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Get возвращает заказ по orderId.
func (m *Manager) Get(ctx context.Context, orderID string) (domain.Order, error) {
	storeCtx, cancel := m.storeContext(ctx)
	defer cancel()

	order, err := m.store.FindByOrderID(storeCtx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return order, nil
}

// Update применяет частичное обновление и запускает публикацию нового состояния.
func (m *Manager) Update(ctx context.Context, orderID string, patch domain.OrderPatch) (domain.Order, error) {
	if err := domain.ValidationFailure(patch.Validate()); err != nil {
		m.opts.Metrics.RecordMutation(metrics.OperationUpdate, err)
		return domain.Order{}, err
	}
	patch = patch.Normalized()

	if err := m.checkTransition(ctx, orderID, patch); err != nil {
		m.opts.Metrics.RecordMutation(metrics.OperationUpdate, err)
		return domain.Order{}, err
	}

	storeCtx, cancel := m.storeContext(ctx)
	updated, err := m.store.UpdateByOrderID(storeCtx, orderID, patch, m.opts.Clock().UTC())
	cancel()
	m.opts.Metrics.RecordMutation(metrics.OperationUpdate, err)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: %w", orderID, err)
	}

	m.logger.WithFields(log.Fields{
		"order_id": updated.OrderID,
		"status":   updated.Status,
	}).Info("order updated")

	m.dispatchEvent(ctx, domain.EventTypeOrderUpdated, updated)
	return updated, nil
}

// Delete удаляет заказ. Событие не публикуется.
func (m *Manager) Delete(ctx context.Context, orderID string) error {
	storeCtx, cancel := m.storeContext(ctx)
	err := m.store.DeleteByOrderID(storeCtx, orderID)
	cancel()
	m.opts.Metrics.RecordMutation(metrics.OperationDelete, err)
	if err != nil {
		return fmt.Errorf("delete order %s: %w", orderID, err)
	}

	m.logger.WithField("order_id", orderID).Info("order deleted")
	return nil
}

// Shutdown перестаёт принимать новые публикации и ждёт завершения запущенных.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.dispatchMu.Lock()
	m.dispatchClosed = true
	m.dispatchMu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		m.dispatchWG.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkTransition читает текущий статус только для политик, которым он нужен.
func (m *Manager) checkTransition(ctx context.Context, orderID string, patch domain.OrderPatch) error {
	if patch.Status == nil {
		return nil
	}
	if _, permissive := m.opts.Transitions.(domain.PermissiveTransitions); permissive {
		return nil
	}

	current, err := m.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("update order %s: %w", orderID, err)
	}
	if !m.opts.Transitions.Allowed(current.Status, *patch.Status) {
		return fmt.Errorf("update order %s: %s -> %s: %w", orderID, current.Status, *patch.Status, domain.ErrInvalidTransition)
	}
	return nil
}

// dispatchEvent запускает публикацию в отдельной горутине. Контекст запроса
// не ограничивает её: ответ клиенту может уйти раньше подтверждения брокера.
func (m *Manager) dispatchEvent(ctx context.Context, eventType domain.EventType, order domain.Order) {
	logger := m.logger.WithFields(log.Fields{
		"order_id":   order.OrderID,
		"event_type": eventType,
	})

	if m.publisher == nil {
		logger.Debug("event publishing disabled")
		return
	}

	m.dispatchMu.Lock()
	if m.dispatchClosed {
		m.dispatchMu.Unlock()
		m.opts.Metrics.RecordPublishSkipped()
		logger.Warn("event dispatch skipped during shutdown")
		return
	}
	m.dispatchWG.Add(1)
	m.dispatchMu.Unlock()

	event := order.Event()
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.PublishTimeout)

	m.opts.Metrics.RecordPublishStarted()
	go func() {
		defer m.dispatchWG.Done()
		defer cancel()

		started := time.Now()
		messageID, err := m.publisher.PublishOrderEvent(publishCtx, eventType, event)
		m.opts.Metrics.RecordPublishFinished(time.Since(started), err)
		if err != nil {
			logger.WithError(err).Error("failed to publish order event")
			return
		}
		logger.WithField("message_id", messageID).Debug("order event published")
	}()
}

func (m *Manager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.opts.StoreTimeout)
}
