package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_fashionary/internal/domain"
	"github.com/fjod/go_fashionary/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// OrderQueries is the order read side.
type OrderQueries interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter repository.Filter) ([]*domain.Order, error)
	Statuses() []domain.OrderStatus
	ValidateScannedOrder(ctx context.Context, code string) (domain.ValidationOutcome, error)
}

type OrdersHandler struct {
	orders  OrderQueries
	timeout time.Duration
	maxBody int64
	log     *logrus.Entry
}

func NewOrdersHandler(orders OrderQueries, timeout time.Duration, maxBody int64, log *logrus.Entry) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		maxBody: maxBody,
		log:     log.WithField("component", "orders_handler"),
	}
}

type OrderItemDTO struct {
	SKU         string  `json:"sku"`
	ProductName string  `json:"product_name"`
	Size        string  `json:"size,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type OrderResponseDTO struct {
	ID              string         `json:"id"`
	CustomerName    string         `json:"customer_name"`
	CustomerPhone   string         `json:"customer_phone"`
	ShippingAddress string         `json:"shipping_address"`
	TotalAmount     float64        `json:"total_amount"`
	Currency        string         `json:"currency"`
	Status          string         `json:"status"`
	StatusLabel     string         `json:"status_label"`
	Items           []OrderItemDTO `json:"items"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

type StatusDTO struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Final bool   `json:"final"`
}

type ValidateRequestDTO struct {
	Code string `json:"code"`
}

type ValidateResponseDTO struct {
	Result string            `json:"result"`
	Order  *OrderResponseDTO `json:"order,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			SKU:         it.SKU,
			ProductName: it.ProductName,
			Size:        it.Size,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}
	return OrderResponseDTO{
		ID:              o.ID,
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		ShippingAddress: o.ShippingAddress,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		Status:          string(o.Status),
		StatusLabel:     o.Status.Label(),
		Items:           items,
		CreatedAt:       o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	filter := repository.Filter{Status: domain.OrderStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	orders, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, convertOrder(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(order))
}

// GET /api/v1/orders/statuses
func (h *OrdersHandler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	statuses := h.orders.Statuses()
	dtos := make([]StatusDTO, 0, len(statuses))
	for _, s := range statuses {
		dtos = append(dtos, StatusDTO{Value: string(s), Label: s.Label(), Final: s.IsFinal()})
	}
	respondJSON(w, http.StatusOK, dtos)
}

// POST /api/v1/orders/validate
func (h *OrdersHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ValidateRequestDTO
	if !decodeJSON(w, r, h.maxBody, &req) {
		return
	}

	outcome, err := h.orders.ValidateScannedOrder(ctx, req.Code)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	resp := ValidateResponseDTO{Result: string(outcome.Kind), Reason: outcome.Reason}
	if outcome.OK() {
		dto := convertOrder(outcome.Order)
		resp.Order = &dto
	}
	respondJSON(w, http.StatusOK, resp)
}
