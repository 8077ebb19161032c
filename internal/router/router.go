package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/scanorder/api/internal/config"
	"github.com/scanorder/api/internal/handler"
	mw "github.com/scanorder/api/internal/middleware"
	"github.com/scanorder/api/internal/ws"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Orders   *handler.OrderHandler
	Payments *handler.PaymentHandler
	Floor    *handler.FloorHandler
	Realtime *ws.Handler
	Metrics  http.Handler
}

// New creates a Chi router with all application routes wired up.
// Everything under /staff and /ws/staff requires a staff token.
func New(cfg *config.Config, h Handlers) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	metrics := h.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	h.Auth.RegisterRoutes(r)
	h.Orders.RegisterPublicRoutes(r)
	h.Payments.RegisterRoutes(r)
	h.Floor.RegisterPublicRoutes(r)
	h.Realtime.RegisterPublicRoutes(r)

	// Staff REST routes
	r.Route("/staff", func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret, false))
		h.Orders.RegisterStaffRoutes(r)
		h.Floor.RegisterStaffRoutes(r)
	})

	// Staff streams: browsers cannot set headers on a websocket upgrade.
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret, true))
		h.Realtime.RegisterStaffRoutes(r)
	})

	return r
}
