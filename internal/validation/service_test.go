package validation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/go_fashionary/internal/cache"
	"github.com/fjod/go_fashionary/internal/domain"
	"github.com/fjod/go_fashionary/internal/logger"
	"github.com/fjod/go_fashionary/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReader struct {
	m      sync.RWMutex
	orders map[string]*domain.Order
	err    error
	calls  atomic.Int32
	delay  time.Duration
	filter repository.Filter
}

func newMockReader(orders ...*domain.Order) *mockReader {
	r := &mockReader{orders: make(map[string]*domain.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (m *mockReader) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (m *mockReader) GetOrdersByIDs(_ context.Context, ids []string) ([]*domain.Order, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	var out []*domain.Order
	for _, id := range ids {
		if o, ok := m.orders[id]; ok {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (m *mockReader) ListOrders(_ context.Context, filter repository.Filter) ([]*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.filter = filter
	return nil, nil
}

type mockCache struct {
	m       sync.Mutex
	orders  map[string]*domain.Order
	getErr  error
	deleted []string
}

func newMockCache() *mockCache {
	return &mockCache{orders: make(map[string]*domain.Order)}
}

func (c *mockCache) Get(_ context.Context, id string) (*domain.Order, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	o, ok := c.orders[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return o.Clone(), nil
}

func (c *mockCache) Set(_ context.Context, o *domain.Order) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.orders[o.ID] = o.Clone()
	return nil
}

func (c *mockCache) Delete(_ context.Context, ids ...string) error {
	c.m.Lock()
	defer c.m.Unlock()
	for _, id := range ids {
		delete(c.orders, id)
	}
	c.deleted = append(c.deleted, ids...)
	return nil
}

func (c *mockCache) has(id string) bool {
	c.m.Lock()
	defer c.m.Unlock()
	_, ok := c.orders[id]
	return ok
}

func order(id string, status domain.OrderStatus) *domain.Order {
	return &domain.Order{ID: id, Status: status, Currency: "BDT", ShippingAddress: "Mirpur, Dhaka"}
}

func TestValidateScannedOrder(t *testing.T) {
	repo := newMockReader(
		order("ORD-1001", domain.OrderStatusPacked),
		order("ORD-1002", domain.OrderStatusDelivered),
		order("ORD-1003", domain.OrderStatusCancelled),
	)
	svc := NewService(repo, nil, logger.Discard())

	tests := []struct {
		name   string
		code   string
		ok     bool
		reason string
	}{
		{name: "known open order", code: "ORD-1001", ok: true},
		{name: "surrounding whitespace", code: "  ORD-1001\n", ok: true},
		{name: "unknown code", code: "ORD-9999", reason: "Invalid order code."},
		{name: "blank code", code: "   ", reason: "Invalid order code."},
		{name: "delivered order", code: "ORD-1002", reason: "Order ORD-1002 is already delivered."},
		{name: "cancelled order", code: "ORD-1003", reason: "Order ORD-1003 is already cancelled."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := svc.ValidateScannedOrder(context.Background(), tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, out.OK())
			if tt.ok {
				assert.Equal(t, "ORD-1001", out.Order.ID)
				assert.Equal(t, domain.OrderStatusPacked, out.Order.Status)
				return
			}
			assert.Equal(t, domain.OutcomeRejected, out.Kind)
			assert.Equal(t, tt.reason, out.Reason)
		})
	}
}

func TestValidateScannedOrder_LookupFailure(t *testing.T) {
	repo := newMockReader()
	repo.err = errors.New("connection refused")
	svc := NewService(repo, nil, logger.Discard())

	_, err := svc.ValidateScannedOrder(context.Background(), "ORD-1001")
	assert.ErrorContains(t, err, "connection refused")
}

func TestGetOrder_FillsAndServesFromCache(t *testing.T) {
	repo := newMockReader(order("ORD-1", domain.OrderStatusPending))
	c := newMockCache()
	svc := NewService(repo, c, logger.Discard())

	_, err := svc.GetOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.has("ORD-1") }, time.Second, 5*time.Millisecond)

	got, err := svc.GetOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", got.ID)
	assert.Equal(t, int32(1), repo.calls.Load())
}

func TestGetOrder_CacheErrorFallsBackToRepository(t *testing.T) {
	repo := newMockReader(order("ORD-1", domain.OrderStatusPending))
	c := newMockCache()
	c.getErr = errors.New("redis down")
	svc := NewService(repo, c, logger.Discard())

	got, err := svc.GetOrder(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", got.ID)
}

func TestGetOrder_CollapsesConcurrentLookups(t *testing.T) {
	repo := newMockReader(order("ORD-1", domain.OrderStatusPending))
	repo.delay = 50 * time.Millisecond
	svc := NewService(repo, nil, logger.Discard())

	var wg sync.WaitGroup
	results := make([]*domain.Order, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := svc.GetOrder(context.Background(), "ORD-1")
			assert.NoError(t, err)
			results[i] = o
		}(i)
	}
	wg.Wait()

	assert.Less(t, repo.calls.Load(), int32(10))
	// every caller owns its copy
	results[0].Status = domain.OrderStatusShipped
	for _, o := range results[1:] {
		assert.Equal(t, domain.OrderStatusPending, o.Status)
	}
}

// gatedReader blocks GetOrder until release is closed and remembers whether
// the lookup context was still alive when it returned.
type gatedReader struct {
	*mockReader
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (g *gatedReader) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	g.ctxErr <- ctx.Err()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.mockReader.GetOrder(ctx, id)
}

func TestGetOrder_CancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	repo := &gatedReader{
		mockReader: newMockReader(order("ORD-1", domain.OrderStatusPending)),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
		ctxErr:     make(chan error, 2),
	}
	svc := NewService(repo, nil, logger.Discard())

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetOrder(first, "ORD-1")
		firstErr <- err
	}()
	<-repo.entered

	second := make(chan *domain.Order, 1)
	go func() {
		o, err := svc.GetOrder(context.Background(), "ORD-1")
		assert.NoError(t, err)
		second <- o
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(repo.release)
	assert.NoError(t, <-repo.ctxErr)
	o := <-second
	require.NotNil(t, o)
	assert.Equal(t, "ORD-1", o.ID)
}

func TestListOrders_NormalisesFilter(t *testing.T) {
	repo := newMockReader()
	svc := NewService(repo, nil, logger.Discard())

	_, err := svc.ListOrders(context.Background(), repository.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 50, repo.filter.Limit)

	_, err = svc.ListOrders(context.Background(), repository.Filter{Status: domain.OrderStatusPacked, Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, 500, repo.filter.Limit)
	assert.Equal(t, domain.OrderStatusPacked, repo.filter.Status)

	_, err = svc.ListOrders(context.Background(), repository.Filter{Status: "lost"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestInvalidate(t *testing.T) {
	c := newMockCache()
	svc := NewService(newMockReader(), c, logger.Discard())

	svc.Invalidate()
	svc.Invalidate("ORD-1", "ORD-2")
	assert.Equal(t, []string{"ORD-1", "ORD-2"}, c.deleted)
}

func TestStatuses(t *testing.T) {
	svc := NewService(newMockReader(), nil, logger.Discard())
	assert.Equal(t, domain.Statuses(), svc.Statuses())
}
