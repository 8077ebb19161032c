// Package ws serves the live views over websockets: one view, one
// subscription and one poll timer per connection.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scanorder/api/internal/notify"
	"github.com/scanorder/api/internal/service"
	"github.com/scanorder/api/internal/views"
	"go.uber.org/zap"
)

// OrderSource is satisfied by *service.OrderService.
type OrderSource interface {
	views.OrderReader
	views.ActiveOrderLister
	views.CountersReader
}

type Config struct {
	TrackerInterval time.Duration
	StaffInterval   time.Duration
}

type Handler struct {
	orders OrderSource
	bells  views.BellReader
	bus    views.Subscriber
	cfg    Config
	logger *zap.Logger
}

func NewHandler(orders OrderSource, bells views.BellReader, sub views.Subscriber, cfg Config, logger *zap.Logger) *Handler {
	return &Handler{orders: orders, bells: bells, bus: sub, cfg: cfg, logger: logger.Named("ws")}
}

// RegisterPublicRoutes registers the customer tracker stream.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/ws/orders/{id}", h.ServeTracker)
}

// RegisterStaffRoutes registers the staff streams. The caller guards them.
func (h *Handler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/ws/staff/orders", h.ServeStaffOrders)
	r.Get("/ws/staff/dashboard", h.ServeDashboard)
}

type runner interface {
	Run(ctx context.Context) error
}

// ServeTracker streams one order to the customer who placed it.
// Endpoint: WS /ws/orders/{id}
func (h *Handler) ServeTracker(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	detail, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("load tracked order", zap.String("order_id", orderID.String()), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.serve(w, r, func(c *Conn) runner {
		cfg := views.TrackerConfig{
			OrderID:  orderID,
			TableID:  detail.Order.TableID,
			Interval: h.cfg.TrackerInterval,
		}
		return views.NewCustomerTracker(cfg, h.orders, h.bells, h.bus, c, h.dispatcher(c), h.logger)
	})
}

// ServeStaffOrders streams the active order list.
// Endpoint: WS /ws/staff/orders?token=JWT
func (h *Handler) ServeStaffOrders(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(c *Conn) runner {
		return views.NewStaffOrderList(h.cfg.StaffInterval, h.orders, h.bus, c, h.dispatcher(c), h.logger)
	})
}

// ServeDashboard streams the dashboard counters.
// Endpoint: WS /ws/staff/dashboard?token=JWT
func (h *Handler) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(c *Conn) runner {
		return views.NewDashboardCounters(h.cfg.StaffInterval, h.orders, h.bus, c, h.logger)
	})
}

func (h *Handler) dispatcher(c *Conn) *notify.Dispatcher {
	return notify.NewDispatcher(h.logger, c)
}

// serve upgrades the request and runs the view until either side goes
// away. The view lives exactly as long as the connection.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, build func(c *Conn) runner) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(conn, h.logger)
	go c.writePump(ctx)
	go func() {
		c.readPump()
		cancel()
	}()

	err = build(c).Run(ctx)
	if err != nil && !errors.Is(err, errConnClosed) {
		h.logger.Warn("live view stopped", zap.String("path", r.URL.Path), zap.Error(err))
	}
}
