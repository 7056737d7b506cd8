// Package validation is the order read side used by the scan screen: it
// resolves scanned codes to orders and serves order listings.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_fashionary/internal/cache"
	"github.com/fjod/go_fashionary/internal/domain"
	"github.com/fjod/go_fashionary/internal/repository"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/fjod/go_fashionary/internal/validation")

const (
	reasonInvalidCode = "Invalid order code."
	defaultListLimit  = 50
	maxListLimit      = 500
	lookupTimeout     = 5 * time.Second
)

var ErrInvalidStatus = errors.New("invalid order status")

type Service struct {
	repo  repository.OrderReader
	cache cache.OrderCache
	log   *logrus.Entry
	sfg   singleflight.Group // collapses concurrent lookups of the same code
}

func NewService(repo repository.OrderReader, c cache.OrderCache, log *logrus.Entry) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{
		repo:  repo,
		cache: c,
		log:   log.WithField("component", "validation"),
	}
}

// ValidateScannedOrder resolves a scanned code. Unknown codes and orders in a
// final status are rejected with a reason fit for the operator. A non-nil
// error means the lookup itself failed.
func (s *Service) ValidateScannedOrder(ctx context.Context, code string) (domain.ValidationOutcome, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Rejected(reasonInvalidCode), nil
	}

	ctx, span := tracer.Start(ctx, "validation.ValidateScannedOrder",
		trace.WithAttributes(attribute.String("order.code", code)))
	defer span.End()

	order, err := s.GetOrder(ctx, code)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return domain.Rejected(reasonInvalidCode), nil
	}
	if err != nil {
		return domain.ValidationOutcome{}, err
	}

	if order.Status.IsFinal() {
		return domain.Rejected(fmt.Sprintf("Order %s is already %s.", order.ID, order.Status)), nil
	}
	return domain.Accepted(order), nil
}

// GetOrder reads through the cache. The returned order is owned by the caller.
// Concurrent lookups of one id share a single fetch that outlives any one
// caller; each caller still stops waiting when its own ctx is done.
func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	ch := s.sfg.DoChan(id, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		order, err := s.cache.Get(ctx, id)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WithError(err).WithField("order_id", id).Warn("cache get failed")
		}

		order, err = s.repo.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}

		go s.fill(order.Clone())
		return order, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// singleflight hands the same pointer to every waiter
		return res.Val.(*domain.Order).Clone(), nil
	}
}

func (s *Service) fill(order *domain.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, order); err != nil {
		s.log.WithError(err).WithField("order_id", order.ID).Warn("cache set failed")
	}
}

func (s *Service) GetOrdersByIDs(ctx context.Context, ids []string) ([]*domain.Order, error) {
	return s.repo.GetOrdersByIDs(ctx, ids)
}

func (s *Service) ListOrders(ctx context.Context, filter repository.Filter) ([]*domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%q: %w", filter.Status, ErrInvalidStatus)
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	return s.repo.ListOrders(ctx, filter)
}

// Statuses lists the targets offered by the bulk "mark as" action.
func (s *Service) Statuses() []domain.OrderStatus {
	return domain.Statuses()
}

// Invalidate drops cached copies after a write.
func (s *Service) Invalidate(ids ...string) {
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, ids...); err != nil {
		s.log.WithError(err).WithField("order_ids", ids).Warn("cache invalidate failed")
	}
}
