package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_fashionary/internal/domain"
)

// MemoryRepository implements OrderRepository in memory. Reads and writes
// copy orders in and out, so callers never share state with the store.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	outbox []*memoryEvent
	nextID int64
}

type memoryEvent struct {
	OutboxEvent
	processed bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[string]*domain.Order),
	}
}

func (m *MemoryRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.ID]; exists {
		return ErrDuplicateOrder
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	m.orders[order.ID] = order.Clone()
	return nil
}

func (m *MemoryRepository) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, exists := m.orders[id]
	if !exists {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (m *MemoryRepository) GetOrdersByIDs(ctx context.Context, ids []string) ([]*domain.Order, error) {
	orders := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := m.GetOrder(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (m *MemoryRepository) ListOrders(_ context.Context, filter Filter) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := make([]*domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		orders = append(orders, o.Clone())
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func (m *MemoryRepository) UpdateStatuses(_ context.Context, ids []string, status domain.OrderStatus, changedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// validate everything first so a failure leaves the store untouched
	for _, id := range ids {
		order, exists := m.orders[id]
		if !exists {
			return fmt.Errorf("order %s: %w", id, ErrOrderNotFound)
		}
		if !order.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: order %s is %s", ErrIllegalTransition, id, order.Status)
		}
	}

	now := time.Now().UTC()
	for _, id := range ids {
		updated := m.orders[id].Clone()
		old := updated.Status
		updated.Status = status
		updated.UpdatedAt = now
		m.orders[id] = updated

		payload, err := json.Marshal(domain.StatusChange{
			OrderID:   id,
			OldStatus: old,
			NewStatus: status,
			ChangedBy: changedBy,
			ChangedAt: now,
		})
		if err != nil {
			return fmt.Errorf("marshal status change: %w", err)
		}
		m.nextID++
		m.outbox = append(m.outbox, &memoryEvent{OutboxEvent: OutboxEvent{
			ID:          m.nextID,
			AggregateID: id,
			EventType:   EventStatusChanged,
			Payload:     payload,
			CreatedAt:   now,
		}})
	}
	return nil
}

func (m *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []*OutboxEvent
	for _, e := range m.outbox {
		if e.processed {
			continue
		}
		ev := e.OutboxEvent
		events = append(events, &ev)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

func (m *MemoryRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.outbox {
		if e.ID == id {
			e.processed = true
			return nil
		}
	}
	return fmt.Errorf("outbox event %d not found", id)
}

func (m *MemoryRepository) Close() error {
	return nil
}
