package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/metrics"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/service/order"
	"github.com/vladislavdragonenkov/order-lifecycle/internal/storage/memory"
)

type publishedEvent struct {
	eventType domain.EventType
	event     domain.OrderEvent
}

// fakePublisher записывает события в канал; err и block управляют исходом.
type fakePublisher struct {
	events chan publishedEvent
	err    error
	block  chan struct{}

	mu    sync.Mutex
	calls int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(chan publishedEvent, 16)}
}

func (p *fakePublisher) PublishOrderEvent(ctx context.Context, eventType domain.EventType, event domain.OrderEvent) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return "", errors.Join(domain.ErrPublish, ctx.Err())
		}
	}
	if p.err != nil {
		return "", p.err
	}
	p.events <- publishedEvent{eventType: eventType, event: event}
	return "order-events/0/1", nil
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakePublisher) next(t *testing.T) publishedEvent {
	t.Helper()
	select {
	case got := <-p.events:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("order event was not published")
		return publishedEvent{}
	}
}

// steppingClock возвращает фиксированное время; advance сдвигает его.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func validInput() domain.CreateOrderInput {
	return domain.CreateOrderInput{
		Price:      decimal.NewFromInt(50),
		Quantity:   2,
		ProductID:  "p1",
		CustomerID: "c1",
		SellerID:   "s1",
	}
}

func newManager(t *testing.T, publisher domain.EventPublisher, opts ...order.Option) (*order.Manager, domain.OrderStore) {
	t.Helper()
	store := memory.NewOrderStore()
	logger, _ := logtest.NewNullLogger()
	opts = append([]order.Option{order.WithLogger(log.NewEntry(logger))}, opts...)
	manager := order.NewManager(store, publisher, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})
	return manager, store
}

func TestManager_CreateThenUpdateScenario(t *testing.T) {
	ctx := context.Background()
	publisher := newFakePublisher()
	clock := &steppingClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	manager, _ := newManager(t, publisher, order.WithClock(clock.Now))

	created, err := manager.Create(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCreated, created.Status)
	require.NotEmpty(t, created.OrderID)
	require.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	first := publisher.next(t)
	require.Equal(t, domain.EventTypeOrderCreated, first.eventType)
	require.Equal(t, created.OrderID, first.event.OrderID)
	require.Equal(t, domain.OrderStatusCreated, first.event.Status)

	clock.advance(time.Second)
	shipped := domain.OrderStatusShipped
	updated, err := manager.Update(ctx, created.OrderID, domain.OrderPatch{Status: &shipped})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusShipped, updated.Status)
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	second := publisher.next(t)
	require.Equal(t, domain.EventTypeOrderUpdated, second.eventType)
	require.Equal(t, created.OrderID, second.event.OrderID)
	require.Equal(t, domain.OrderStatusShipped, second.event.Status)
	require.True(t, second.event.UpdatedAt.Equal(updated.UpdatedAt))
}

func TestManager_UpdateAdvancesUpdatedAtWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	clock := &steppingClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	manager, _ := newManager(t, nil, order.WithClock(clock.Now))

	created, err := manager.Create(ctx, validInput())
	require.NoError(t, err)

	accepted := domain.OrderStatusAccepted
	updated, err := manager.Update(ctx, created.OrderID, domain.OrderPatch{Status: &accepted})
	require.NoError(t, err)
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	again, err := manager.Update(ctx, created.OrderID, domain.OrderPatch{Status: &accepted})
	require.NoError(t, err)
	require.True(t, again.UpdatedAt.After(updated.UpdatedAt))
}

func TestManager_CreateUsesCallerOrderIDAndRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	publisher := newFakePublisher()
	manager, store := newManager(t, publisher)

	in := validInput()
	in.OrderID = "order-42"
	created, err := manager.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "order-42", created.OrderID)
	publisher.next(t)

	clash := validInput()
	clash.OrderID = "order-42"
	clash.SellerID = "s2"
	_, err = manager.Create(ctx, clash)
	require.ErrorIs(t, err, domain.ErrDuplicateKey)

	stored, err := store.FindByOrderID(ctx, "order-42")
	require.NoError(t, err)
	require.Equal(t, "s1", stored.SellerID)
}

func TestManager_GeneratedIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t, nil)

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		created, err := manager.Create(ctx, validInput())
		require.NoError(t, err)
		_, dup := seen[created.OrderID]
		require.False(t, dup, "duplicate orderId %s", created.OrderID)
		seen[created.OrderID] = struct{}{}
	}
}

func TestManager_ValidationBeforeStore(t *testing.T) {
	ctx := context.Background()
	publisher := newFakePublisher()
	manager, store := newManager(t, publisher)

	in := validInput()
	in.Price = decimal.Zero
	in.Quantity = -1
	_, err := manager.Create(ctx, in)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.ErrorIs(t, err, domain.ErrPriceInvalid)
	require.ErrorIs(t, err, domain.ErrQuantityInvalid)

	_, err = manager.Update(ctx, "whatever", domain.OrderPatch{})
	require.ErrorIs(t, err, domain.ErrPatchEmpty)

	all, err := store.FindAll(ctx, domain.OrderFilter{})
	require.NoError(t, err)
	require.Empty(t, all)
	require.Zero(t, publisher.callCount())
}

func TestManager_NotFoundSymmetry(t *testing.T) {
	ctx := context.Background()
	publisher := newFakePublisher()
	manager, store := newManager(t, publisher)

	status := domain.OrderStatusShipped
	_, err := manager.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = manager.Update(ctx, "missing", domain.OrderPatch{Status: &status})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.ErrorIs(t, manager.Delete(ctx, "missing"), domain.ErrOrderNotFound)

	all, err := store.FindAll(ctx, domain.OrderFilter{})
	require.NoError(t, err)
	require.Empty(t, all)
	require.Zero(t, publisher.callCount())
}

func TestManager_UpdateIsPartial(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t, nil)

	created, err := manager.Create(ctx, validInput())
	require.NoError(t, err)

	shipped := domain.OrderStatusShipped
	updated, err := manager.Update(ctx, created.OrderID, domain.OrderPatch{Status: &shipped})
	require.NoError(t, err)
	require.True(t, updated.Price.Equal(created.Price))
	require.Equal(t, created.Quantity, updated.Quantity)
	require.Equal(t, created.ProductID, updated.ProductID)
	require.Equal(t, created.CustomerID, updated.CustomerID)
	require.Equal(t, created.SellerID, updated.SellerID)
	require.True(t, updated.CreatedAt.Equal(created.CreatedAt))
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestManager_PublishFailureDoesNotGateSuccess(t *testing.T) {
	ctx := context.Background()
	publisher := newFakePublisher()
	publisher.err = domain.ErrPublish
	recorder := metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	logger, hook := logtest.NewNullLogger()
	manager := order.NewManager(memory.NewOrderStore(), publisher,
		order.WithLogger(log.NewEntry(logger)),
		order.WithMetrics(recorder),
	)

	created, err := manager.Create(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCreated, created.Status)

	accepted := domain.OrderStatusAccepted
	updated, err := manager.Update(ctx, created.OrderID, domain.OrderPatch{Status: &accepted})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusAccepted, updated.Status)

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, manager.Shutdown(shutdownCtx))

	require.Equal(t, 2, publisher.callCount())
	require.Equal(t, float64(2), testutil.ToFloat64(recorder.PublishedCounter(metrics.ResultError)))

	var publishErrors int
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.ErrorLevel && entry.Message == "failed to publish order event" {
			publishErrors++
		}
	}
	require.Equal(t, 2, publishErrors)

	stored, err := manager.Get(ctx, created.OrderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusAccepted, stored.Status)
}

func TestManager_ResponseDoesNotWaitForPublish(t *testing.T) {
	ctx := context.Background()
	publisher := newFakePublisher()
	publisher.block = make(chan struct{})
	manager, _ := newManager(t, publisher, order.WithPublishTimeout(5*time.Second))

	done := make(chan error, 1)
	go func() {
		_, err := manager.Create(ctx, validInput())
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("create was blocked by the publisher")
	}

	close(publisher.block)
	publisher.next(t)
}

func TestManager_PublishTimeoutBoundsDetachedTask(t *testing.T) {
	ctx := context.Background()
	publisher := newFakePublisher()
	publisher.block = make(chan struct{})
	defer close(publisher.block)
	manager, _ := newManager(t, publisher, order.WithPublishTimeout(20*time.Millisecond))

	_, err := manager.Create(ctx, validInput())
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, manager.Shutdown(shutdownCtx))
}

func TestManager_RequestCancellationDoesNotAbortPublish(t *testing.T) {
	publisher := newFakePublisher()
	manager, _ := newManager(t, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	created, err := manager.Create(ctx, validInput())
	require.NoError(t, err)
	cancel()

	got := publisher.next(t)
	require.Equal(t, created.OrderID, got.event.OrderID)
}

func TestManager_ShutdownBetweenPersistAndPublish(t *testing.T) {
	ctx := context.Background()
	publisher := newFakePublisher()
	recorder := metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())
	manager, store := newManager(t, publisher, order.WithMetrics(recorder))

	require.NoError(t, manager.Shutdown(ctx))

	created, err := manager.Create(ctx, validInput())
	require.NoError(t, err)

	stored, err := store.FindByOrderID(ctx, created.OrderID)
	require.NoError(t, err)
	require.Equal(t, created.OrderID, stored.OrderID)
	require.Equal(t, domain.OrderStatusCreated, stored.Status)

	require.Zero(t, publisher.callCount())
	require.Equal(t, float64(1), testutil.ToFloat64(recorder.PublishedCounter(metrics.ResultSkipped)))
}

func TestManager_ShutdownWaitsForInFlightPublish(t *testing.T) {
	ctx := context.Background()
	publisher := newFakePublisher()
	publisher.block = make(chan struct{})
	manager, _ := newManager(t, publisher, order.WithPublishTimeout(5*time.Second))

	_, err := manager.Create(ctx, validInput())
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, manager.Shutdown(shortCtx), context.DeadlineExceeded)

	close(publisher.block)
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, manager.Shutdown(waitCtx))
	publisher.next(t)
}

func TestManager_ListFiltersBySeller(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t, nil)

	for _, seller := range []string{"s1", "s2", "s1"} {
		in := validInput()
		in.SellerID = seller
		_, err := manager.Create(ctx, in)
		require.NoError(t, err)
	}

	all, err := manager.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	s1, err := manager.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s1, 2)
	for _, o := range s1 {
		require.Equal(t, "s1", o.SellerID)
	}

	none, err := manager.List(ctx, "nobody")
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestManager_UpdateTrimsReferencesLikeCreate(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t, nil)

	in := validInput()
	in.SellerID = " s1 "
	created, err := manager.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "s1", created.SellerID)

	seller, product := " s2 ", "\tp2 "
	updated, err := manager.Update(ctx, created.OrderID, domain.OrderPatch{SellerID: &seller, ProductID: &product})
	require.NoError(t, err)
	require.Equal(t, "s2", updated.SellerID)
	require.Equal(t, "p2", updated.ProductID)

	for _, filter := range []string{"s2", " s2 "} {
		orders, err := manager.List(ctx, filter)
		require.NoError(t, err)
		require.Len(t, orders, 1, "filter %q", filter)
		require.Equal(t, created.OrderID, orders[0].OrderID)
	}

	stale, err := manager.List(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestManager_DeletePublishesNothing(t *testing.T) {
	ctx := context.Background()
	publisher := newFakePublisher()
	manager, _ := newManager(t, publisher)

	created, err := manager.Create(ctx, validInput())
	require.NoError(t, err)
	publisher.next(t)

	require.NoError(t, manager.Delete(ctx, created.OrderID))
	_, err = manager.Get(ctx, created.OrderID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, manager.Shutdown(shutdownCtx))
	require.Equal(t, 1, publisher.callCount())
}

func TestManager_StrictTransitions(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t, nil, order.WithTransitions(domain.StrictTransitions{}))

	created, err := manager.Create(ctx, validInput())
	require.NoError(t, err)

	shipped := domain.OrderStatusShipped
	_, err = manager.Update(ctx, created.OrderID, domain.OrderPatch{Status: &shipped})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.True(t, domain.IsValidation(err))

	accepted := domain.OrderStatusAccepted
	updated, err := manager.Update(ctx, created.OrderID, domain.OrderPatch{Status: &accepted})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusAccepted, updated.Status)

	_, err = manager.Update(ctx, "missing", domain.OrderPatch{Status: &accepted})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestManager_PermissiveTransitionsAllowAnyEnumValue(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t, nil)

	created, err := manager.Create(ctx, validInput())
	require.NoError(t, err)

	for _, status := range []domain.OrderStatus{domain.OrderStatusShipped, domain.OrderStatusCreated, domain.OrderStatusRejected} {
		status := status
		updated, err := manager.Update(ctx, created.OrderID, domain.OrderPatch{Status: &status})
		require.NoError(t, err)
		require.Equal(t, status, updated.Status)
	}
}

type failingStore struct {
	domain.OrderStore
}

func (failingStore) Insert(context.Context, domain.Order) (domain.Order, error) {
	return domain.Order{}, errors.Join(domain.ErrStore, errors.New("connection reset"))
}

func TestManager_StoreFailureSkipsPublish(t *testing.T) {
	publisher := newFakePublisher()
	manager := order.NewManager(failingStore{}, publisher)

	_, err := manager.Create(context.Background(), validInput())
	require.ErrorIs(t, err, domain.ErrStore)
	require.Zero(t, publisher.callCount())
}
