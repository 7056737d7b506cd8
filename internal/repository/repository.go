package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_fashionary/internal/domain"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateOrder    = errors.New("order with this id already exists")
	ErrIllegalTransition = errors.New("illegal order status transition")
)

const EventStatusChanged = "order.status_changed"

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// Filter narrows ListOrders. Zero values mean no restriction.
type Filter struct {
	Status domain.OrderStatus
	Limit  int
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrdersByIDs(ctx context.Context, ids []string) ([]*domain.Order, error)
	ListOrders(ctx context.Context, filter Filter) ([]*domain.Order, error)
}

type OrderWriter interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	// UpdateStatuses moves every order to status and records one outbox event
	// per order. Either all orders change or none does.
	UpdateStatuses(ctx context.Context, ids []string, status domain.OrderStatus, changedBy string) error
}

type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type OrderRepository interface {
	OrderReader
	OrderWriter
	OutboxStore
	Close() error
}
