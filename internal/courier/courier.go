package courier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_fashionary/internal/domain"
	"golang.org/x/time/rate"
)

var (
	ErrMissingAddress = errors.New("order has no shipping address")
	ErrNotBookable    = errors.New("order cannot be booked in its current status")
	ErrUnknownParcel  = errors.New("no live consignment with this tracking code")
)

// Consignment is the courier's receipt for one parcel.
type Consignment struct {
	OrderID      string    `json:"order_id"`
	TrackingCode string    `json:"tracking_code"`
	Courier      string    `json:"courier"`
	BookedAt     time.Time `json:"booked_at"`
}

type Client interface {
	Book(ctx context.Context, order *domain.Order) (*Consignment, error)
	// Cancel withdraws a booking that has not been picked up yet.
	Cancel(ctx context.Context, trackingCode string) error
}

// MockClient stands in for the courier API. It is rate limited like the real
// API and refuses parcels that a real courier would refuse.
type MockClient struct {
	name    string
	limiter *rate.Limiter
	now     func() time.Time

	mu     sync.Mutex
	seq    int
	booked map[string]struct{}
}

func NewMockClient(name string, rps float64, burst int) *MockClient {
	return &MockClient{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
		booked:  make(map[string]struct{}),
	}
}

func (c *MockClient) Book(ctx context.Context, order *domain.Order) (*Consignment, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("courier rate limit: %w", err)
	}
	if order.ShippingAddress == "" {
		return nil, fmt.Errorf("%s: %w", order.ID, ErrMissingAddress)
	}
	if order.Status.IsFinal() || order.Status == domain.OrderStatusShipped {
		return nil, fmt.Errorf("%s is %s: %w", order.ID, order.Status, ErrNotBookable)
	}

	now := c.now()
	c.mu.Lock()
	c.seq++
	code := fmt.Sprintf("%s-%s-%04d", shortName(c.name), now.Format("060102"), c.seq)
	c.booked[code] = struct{}{}
	c.mu.Unlock()

	return &Consignment{
		OrderID:      order.ID,
		TrackingCode: code,
		Courier:      c.name,
		BookedAt:     now,
	}, nil
}

// Cancel is not rate limited; it only runs to undo a failed dispatch.
func (c *MockClient) Cancel(ctx context.Context, trackingCode string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.booked[trackingCode]; !ok {
		return fmt.Errorf("%s: %w", trackingCode, ErrUnknownParcel)
	}
	delete(c.booked, trackingCode)
	return nil
}

// Booked reports whether trackingCode is a live consignment.
func (c *MockClient) Booked(trackingCode string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.booked[trackingCode]
	return ok
}

func shortName(name string) string {
	if len(name) > 3 {
		name = name[:3]
	}
	out := []byte(name)
	for i, b := range out {
		if b >= 'a' && b <= 'z' {
			out[i] = b - 'a' + 'A'
		}
	}
	return string(out)
}
