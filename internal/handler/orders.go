package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/enum"
	"github.com/scanorder/api/internal/service"
	"github.com/scanorder/api/internal/views"
	"go.uber.org/zap"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderDetail, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*service.OrderDetail, error)
	ListOrders(ctx context.Context, f service.ListOrdersFilter) ([]database.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, to database.OrderStatus, actor enum.Actor) (database.Order, error)
	Counters(ctx context.Context) (service.Counters, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc    OrderServicer
	logger *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, logger: logger.Named("orders")}
}

// RegisterPublicRoutes registers the customer-facing order endpoints.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/orders", h.CreateSelfService)
	r.Get("/orders/{id}", h.Get)
}

// RegisterStaffRoutes registers order endpoints inside the authenticated /staff group.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Get("/orders/{id}", h.Get)
	r.Patch("/orders/{id}/status", h.UpdateStatus)
	r.Post("/pos/orders", h.CreateTill)
	r.Get("/dashboard/counters", h.Counters)
}

// --- Request / Response types ---

type cartItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
}

type createOrderRequest struct {
	Items         []cartItemRequest `json:"items"`
	TableID       int32             `json:"table_id"`
	CustomerName  string            `json:"customer_name"`
	PaymentMethod string            `json:"payment_method"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []views.OrderView `json:"orders"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func toCartItems(items []cartItemRequest) []service.CartItem {
	out := make([]service.CartItem, len(items))
	for i, it := range items {
		out[i] = service.CartItem{MenuItemID: it.MenuItemID, Quantity: it.Quantity}
	}
	return out
}

// --- Handlers ---

// CreateSelfService handles POST /orders: a table order paid in cash at the
// counter. Card orders go through /checkout-sessions.
func (h *OrderHandler) CreateSelfService(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.PaymentMethod != "" && req.PaymentMethod != enum.PaymentMethodCash {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "card orders must use /checkout-sessions"})
		return
	}

	h.create(w, r, service.CreateOrderRequest{
		Items:         toCartItems(req.Items),
		TableID:       req.TableID,
		Customer:      req.CustomerName,
		PaymentMethod: database.PaymentMethodCash,
		Channel:       database.OrderChannelSelfService,
	})
}

// CreateTill handles POST /staff/pos/orders: an order taken and paid at the
// counter.
func (h *OrderHandler) CreateTill(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	method := database.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = database.PaymentMethodCash
	}

	h.create(w, r, service.CreateOrderRequest{
		Items:         toCartItems(req.Items),
		TableID:       req.TableID,
		Customer:      req.CustomerName,
		PaymentMethod: method,
		Channel:       database.OrderChannelTill,
	})
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request, req service.CreateOrderRequest) {
	detail, err := h.svc.CreateOrder(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrItemsNotPersisted) && detail != nil {
			// The order row exists; staff see it with no items.
			h.logger.Error("create order items", zap.String("order_id", detail.Order.ID.String()), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":    service.ErrItemsNotPersisted.Error(),
				"order_id": detail.Order.ID.String(),
			})
			return
		}
		writeServiceError(w, h.logger, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, views.NewOrderDetailView(detail))
}

// Get handles GET /orders/{id} and GET /staff/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	detail, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.logger, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, views.NewOrderDetailView(detail))
}

// List handles GET /staff/orders?status=a,b&limit=&offset=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var statuses []database.OrderStatus
	if v := q.Get("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			statuses = append(statuses, database.OrderStatus(strings.TrimSpace(s)))
		}
	}

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "offset must be >= 0"})
			return
		}
		offset = n
	}

	orders, err := h.svc.ListOrders(r.Context(), service.ListOrdersFilter{
		Statuses: statuses,
		Limit:    int32(limit),
		Offset:   int32(offset),
	})
	if err != nil {
		writeServiceError(w, h.logger, "list orders", err)
		return
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: views.NewOrderViews(orders),
		Limit:  limit,
		Offset: offset,
	})
}

// UpdateStatus handles PATCH /staff/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	order, err := h.svc.UpdateStatus(r.Context(), orderID, database.OrderStatus(req.Status), enum.ActorStaff)
	if err != nil {
		writeServiceError(w, h.logger, "update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, views.NewOrderView(order))
}

// Counters handles GET /staff/dashboard/counters.
func (h *OrderHandler) Counters(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Counters(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "dashboard counters", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
