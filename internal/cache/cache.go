package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_fashionary/internal/domain"
)

// OrderCache holds order lookups made while scanning. Entries are short lived
// and must be invalidated whenever an order is written.
type OrderCache interface {
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	Set(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, orderIDs ...string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop never stores anything. It is used when no Redis is configured.
type Nop struct{}

func (Nop) Get(context.Context, string) (*domain.Order, error) { return nil, ErrCacheMiss }
func (Nop) Set(context.Context, *domain.Order) error           { return nil }
func (Nop) Delete(context.Context, ...string) error            { return nil }
