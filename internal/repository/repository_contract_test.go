package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fjod/go_fashionary/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(id string, status domain.OrderStatus, createdAt time.Time) *domain.Order {
	return &domain.Order{
		ID:              id,
		CustomerName:    "Nusrat Jahan",
		CustomerPhone:   "+8801711000001",
		ShippingAddress: "Dhanmondi, Dhaka",
		TotalAmount:     2450,
		Currency:        "BDT",
		Status:          status,
		Items: []domain.OrderItem{
			{SKU: "KUR-LIN-M", ProductName: "Linen Kurta", Size: "M", Quantity: 1, Price: 2450},
		},
		CreatedAt: createdAt,
	}
}

// runRepositoryContract exercises behaviour every OrderRepository must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) OrderRepository) {
	base := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-1", domain.OrderStatusConfirmed, base)))

		got, err := repo.GetOrder(ctx, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, "ORD-1", got.ID)
		assert.Equal(t, domain.OrderStatusConfirmed, got.Status)
		assert.Equal(t, "BDT", got.Currency)
		assert.InDelta(t, 2450, got.TotalAmount, 0.001)
		require.Len(t, got.Items, 1)
		assert.Equal(t, "Linen Kurta", got.Items[0].ProductName)
		assert.True(t, got.CreatedAt.Equal(base))
	})

	t.Run("DuplicateCreate", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-1", domain.OrderStatusPending, base)))
		err := repo.CreateOrder(ctx, newTestOrder("ORD-1", domain.OrderStatusPending, base))
		assert.ErrorIs(t, err, ErrDuplicateOrder)
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.GetOrder(context.Background(), "ORD-404")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("ListNewestFirstWithFilter", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-1", domain.OrderStatusPacked, base)))
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-2", domain.OrderStatusPending, base.Add(time.Hour))))
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-3", domain.OrderStatusPacked, base.Add(2*time.Hour))))

		all, err := repo.ListOrders(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "ORD-3", all[0].ID)
		assert.Equal(t, "ORD-1", all[2].ID)

		packed, err := repo.ListOrders(ctx, Filter{Status: domain.OrderStatusPacked, Limit: 1})
		require.NoError(t, err)
		require.Len(t, packed, 1)
		assert.Equal(t, "ORD-3", packed[0].ID)

		none, err := repo.ListOrders(ctx, Filter{Status: domain.OrderStatusReturned})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("GetOrdersByIDsKeepsOrder", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-1", domain.OrderStatusPacked, base)))
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-2", domain.OrderStatusPacked, base)))

		orders, err := repo.GetOrdersByIDs(ctx, []string{"ORD-2", "ORD-1"})
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "ORD-2", orders[0].ID)

		_, err = repo.GetOrdersByIDs(ctx, []string{"ORD-1", "ORD-9"})
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("UpdateStatusesWritesOutbox", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-1", domain.OrderStatusConfirmed, base)))
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-2", domain.OrderStatusProcessing, base)))

		require.NoError(t, repo.UpdateStatuses(ctx, []string{"ORD-1", "ORD-2"}, domain.OrderStatusPacked, "operator-1"))

		for _, id := range []string{"ORD-1", "ORD-2"} {
			o, err := repo.GetOrder(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, domain.OrderStatusPacked, o.Status)
		}

		events, err := repo.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "ORD-1", events[0].AggregateID)
		assert.Equal(t, EventStatusChanged, events[0].EventType)

		var change domain.StatusChange
		require.NoError(t, json.Unmarshal(events[0].Payload, &change))
		assert.Equal(t, domain.OrderStatusConfirmed, change.OldStatus)
		assert.Equal(t, domain.OrderStatusPacked, change.NewStatus)
		assert.Equal(t, "operator-1", change.ChangedBy)

		require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
		rest, err := repo.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, "ORD-2", rest[0].AggregateID)
	})

	t.Run("UpdateStatusesIsAllOrNothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-1", domain.OrderStatusConfirmed, base)))
		require.NoError(t, repo.CreateOrder(ctx, newTestOrder("ORD-2", domain.OrderStatusDelivered, base)))

		err := repo.UpdateStatuses(ctx, []string{"ORD-1", "ORD-2"}, domain.OrderStatusShipped, "operator-1")
		assert.ErrorIs(t, err, ErrIllegalTransition)

		err = repo.UpdateStatuses(ctx, []string{"ORD-1", "ORD-404"}, domain.OrderStatusShipped, "operator-1")
		assert.ErrorIs(t, err, ErrOrderNotFound)

		o, err := repo.GetOrder(ctx, "ORD-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusConfirmed, o.Status)

		events, err := repo.GetUnprocessedEvents(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("Seed", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		orders := SampleOrders(base)

		n, err := Seed(ctx, repo, orders)
		require.NoError(t, err)
		assert.Equal(t, len(orders), n)

		n, err = Seed(ctx, repo, SampleOrders(base))
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
