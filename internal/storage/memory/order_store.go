package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
)

type orderRecord struct {
	order domain.Order
	seq   uint64
}

// orderStoreInMemory: простая in-memory реализация OrderStore.
type orderStoreInMemory struct {
	mu      sync.RWMutex
	records map[string]orderRecord
	nextSeq uint64
}

// NewOrderStore возвращает in-memory хранилище для локальной разработки и тестов.
func NewOrderStore() domain.OrderStore {
	return &orderStoreInMemory{
		records: make(map[string]orderRecord),
	}
}

// Insert сохраняет новый заказ, если order_id ещё не занят.
func (s *orderStoreInMemory) Insert(_ context.Context, order domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[order.OrderID]; exists {
		return domain.Order{}, domain.ErrDuplicateKey
	}
	s.nextSeq++
	s.records[order.OrderID] = orderRecord{order: order, seq: s.nextSeq}
	return order, nil
}

// FindAll возвращает заказы в порядке вставки.
func (s *orderStoreInMemory) FindAll(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]orderRecord, 0, len(s.records))
	for _, rec := range s.records {
		if filter.SellerID != "" && rec.order.SellerID != filter.SellerID {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	result := make([]domain.Order, 0, len(matched))
	for _, rec := range matched {
		result = append(result, rec.order)
	}
	return result, nil
}

// FindByOrderID возвращает заказ или ErrOrderNotFound.
func (s *orderStoreInMemory) FindByOrderID(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return rec.order, nil
}

// UpdateByOrderID применяет патч под блокировкой записи, без upsert.
// updatedAt сдвигается вперёд, если не опережает сохранённое значение.
func (s *orderStoreInMemory) UpdateByOrderID(_ context.Context, orderID string, patch domain.OrderPatch, updatedAt time.Time) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	rec.order = patch.Apply(rec.order, domain.NextUpdatedAt(rec.order.UpdatedAt, updatedAt))
	s.records[orderID] = rec
	return rec.order, nil
}

// DeleteByOrderID удаляет заказ или возвращает ErrOrderNotFound.
func (s *orderStoreInMemory) DeleteByOrderID(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[orderID]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(s.records, orderID)
	return nil
}

var _ domain.OrderStore = (*orderStoreInMemory)(nil)
