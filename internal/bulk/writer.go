package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_fashionary/internal/circuitbreaker"
	"github.com/fjod/go_fashionary/internal/courier"
	"github.com/fjod/go_fashionary/internal/domain"
	"github.com/fjod/go_fashionary/internal/repository"
	"github.com/sirupsen/logrus"
)

// Writer is the write side a bulk action lands on. Every call gets the full
// list of scanned order ids.
type Writer interface {
	UpdateStatus(ctx context.Context, ids []string, status domain.OrderStatus, operator string) error
	PrintInvoices(ctx context.Context, ids []string) (*Artifact, error)
	PrintStickers(ctx context.Context, ids []string) (*Artifact, error)
	ExportCSV(ctx context.Context, ids []string) (*Artifact, error)
	SendToCourier(ctx context.Context, ids []string, operator string) ([]courier.Consignment, error)
}

// Invalidator drops cached orders after they change.
type Invalidator interface {
	Invalidate(ids ...string)
}

// IsBusinessError reports errors caused by the request rather than by a
// failing dependency. Breakers count these as successes.
func IsBusinessError(err error) bool {
	return err == nil ||
		errors.Is(err, repository.ErrOrderNotFound) ||
		errors.Is(err, repository.ErrIllegalTransition) ||
		errors.Is(err, courier.ErrMissingAddress) ||
		errors.Is(err, courier.ErrNotBookable)
}

type OrderActions struct {
	orders      repository.OrderReader
	writer      repository.OrderWriter
	courier     courier.Client
	invalidator Invalidator
	ordersCB    *circuitbreaker.Breaker
	courierCB   *circuitbreaker.Breaker
	log         *logrus.Entry
	now         func() time.Time
}

type Breakers struct {
	Orders  *circuitbreaker.Breaker
	Courier *circuitbreaker.Breaker
}

func NewOrderActions(
	orders repository.OrderReader,
	writer repository.OrderWriter,
	c courier.Client,
	inv Invalidator,
	breakers Breakers,
	log *logrus.Entry,
) *OrderActions {
	return &OrderActions{
		orders:      orders,
		writer:      writer,
		courier:     c,
		invalidator: inv,
		ordersCB:    breakers.Orders,
		courierCB:   breakers.Courier,
		log:         log.WithField("component", "order_actions"),
		now:         time.Now,
	}
}

func (a *OrderActions) UpdateStatus(ctx context.Context, ids []string, status domain.OrderStatus, operator string) error {
	err := circuitbreaker.Run(a.ordersCB, func() error {
		return a.writer.UpdateStatuses(ctx, ids, status, operator)
	})
	if err != nil {
		return err
	}
	a.invalidate(ids)
	return nil
}

func (a *OrderActions) load(ctx context.Context, ids []string) ([]*domain.Order, error) {
	return circuitbreaker.Do(a.ordersCB, func() ([]*domain.Order, error) {
		return a.orders.GetOrdersByIDs(ctx, ids)
	})
}

func (a *OrderActions) PrintInvoices(ctx context.Context, ids []string) (*Artifact, error) {
	orders, err := a.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	return renderInvoices(orders, a.now()), nil
}

func (a *OrderActions) PrintStickers(ctx context.Context, ids []string) (*Artifact, error) {
	orders, err := a.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	return renderStickers(orders, a.now()), nil
}

func (a *OrderActions) ExportCSV(ctx context.Context, ids []string) (*Artifact, error) {
	orders, err := a.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	return renderCSV(orders, a.now())
}

// SendToCourier books every order and then marks them shipped. When a
// booking or the status update fails the bookings already made are
// cancelled and no order changes status.
func (a *OrderActions) SendToCourier(ctx context.Context, ids []string, operator string) ([]courier.Consignment, error) {
	orders, err := a.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	consignments := make([]courier.Consignment, 0, len(orders))
	for _, o := range orders {
		c, err := circuitbreaker.Do(a.courierCB, func() (*courier.Consignment, error) {
			return a.courier.Book(ctx, o)
		})
		if err != nil {
			a.cancelBookings(ctx, consignments)
			return nil, fmt.Errorf("book %s: %w", o.ID, err)
		}
		consignments = append(consignments, *c)
	}

	if err := a.UpdateStatus(ctx, ids, domain.OrderStatusShipped, operator); err != nil {
		a.cancelBookings(ctx, consignments)
		return nil, err
	}
	return consignments, nil
}

// cancelBookings is best effort. A booking that cannot be cancelled is
// logged for manual follow-up with the courier.
func (a *OrderActions) cancelBookings(ctx context.Context, consignments []courier.Consignment) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for _, c := range consignments {
		if err := a.courier.Cancel(ctx, c.TrackingCode); err != nil {
			a.log.WithError(err).WithFields(logrus.Fields{
				"order_id":      c.OrderID,
				"tracking_code": c.TrackingCode,
			}).Error("failed to cancel courier booking")
		}
	}
}

func (a *OrderActions) invalidate(ids []string) {
	if a.invalidator != nil {
		a.invalidator.Invalidate(ids...)
	}
}
