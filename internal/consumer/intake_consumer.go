// Package consumer takes new storefront orders off Kafka and stores them as
// pending orders ready to be scanned.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_fashionary/internal/domain"
	"github.com/fjod/go_fashionary/internal/repository"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTopic   = "storefront-orders"
	DefaultGroupID = "backoffice"
)

var ErrInvalidEvent = errors.New("invalid storefront order event")

type eventItem struct {
	SKU         string  `json:"sku"`
	ProductName string  `json:"product_name"`
	Size        string  `json:"size"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"unit_price"`
}

type StorefrontOrderEvent struct {
	OrderID         string      `json:"order_id"`
	CustomerName    string      `json:"customer_name"`
	CustomerPhone   string      `json:"customer_phone"`
	ShippingAddress string      `json:"shipping_address"`
	Items           []eventItem `json:"items"`
	TotalAmount     float64     `json:"total_amount"`
	Currency        string      `json:"currency"`
	PlacedAt        time.Time   `json:"placed_at"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	orders repository.OrderWriter
	reader messageReader
	log    *logrus.Entry
}

func NewConsumer(orders repository.OrderWriter, topic, groupID string, log *logrus.Entry, brokers ...string) *Consumer {
	if topic == "" {
		topic = DefaultTopic
	}
	if groupID == "" {
		groupID = DefaultGroupID
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(orders, reader, log)
}

func newConsumer(orders repository.OrderWriter, r messageReader, log *logrus.Entry) *Consumer {
	return &Consumer{orders: orders, reader: r, log: log.WithField("component", "intake_consumer")}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.WithError(err).Warn("error closing kafka reader")
	}
}

// processMessage handles one message. It is committed unless storing the
// order failed for a reason worth retrying.
func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.log.WithError(err).Error("error reading message")
		return
	}
	log := c.log.WithFields(logrus.Fields{"partition": m.Partition, "offset": m.Offset})

	order, err := decodeOrder(m.Value)
	if err != nil {
		log.WithError(err).Warn("dropping malformed storefront order")
		c.commit(ctx, m, log)
		return
	}
	log = log.WithField("order_id", order.ID)

	err = c.orders.CreateOrder(ctx, order)
	switch {
	case errors.Is(err, repository.ErrDuplicateOrder):
		log.Info("order already stored, skipping")
	case err != nil:
		// left uncommitted so the group redelivers it after a restart
		log.WithError(err).Error("failed to store order")
		return
	default:
		log.Info("storefront order stored")
	}
	c.commit(ctx, m, log)
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message, log *logrus.Entry) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.WithError(err).Warn("failed to commit message")
	}
}

func decodeOrder(payload []byte) (*domain.Order, error) {
	var event StorefrontOrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	id := strings.TrimSpace(event.OrderID)
	if id == "" {
		return nil, fmt.Errorf("%w: missing order_id", ErrInvalidEvent)
	}
	if len(event.Items) == 0 {
		return nil, fmt.Errorf("%w: order %s has no items", ErrInvalidEvent, id)
	}

	currency := event.Currency
	if currency == "" {
		currency = "BDT"
	}

	items := make([]domain.OrderItem, len(event.Items))
	var total float64
	for i, it := range event.Items {
		items[i] = domain.OrderItem{
			SKU:         it.SKU,
			ProductName: it.ProductName,
			Size:        it.Size,
			Quantity:    it.Quantity,
			Price:       it.Price,
		}
		total += it.Price * float64(it.Quantity)
	}
	if event.TotalAmount > 0 {
		total = event.TotalAmount
	}

	return &domain.Order{
		ID:              id,
		CustomerName:    event.CustomerName,
		CustomerPhone:   event.CustomerPhone,
		ShippingAddress: event.ShippingAddress,
		TotalAmount:     total,
		Currency:        currency,
		Status:          domain.OrderStatusPending,
		Items:           items,
		CreatedAt:       event.PlacedAt,
	}, nil
}
