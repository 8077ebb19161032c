package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/payment"
	"github.com/scanorder/api/internal/service"
	"go.uber.org/zap"
)

// maxWebhookBytes matches the payload size the provider documents.
const maxWebhookBytes = 65536

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService.
type PaymentServicer interface {
	Checkout(ctx context.Context, in service.CheckoutInput) (*service.CheckoutResult, error)
	HandleEvent(ctx context.Context, ev payment.Event) error
	Reconcile(ctx context.Context, orderID uuid.UUID) (database.Order, error)
}

// WebhookParser verifies and decodes provider callbacks. Satisfied by
// *payment.Stripe.
type WebhookParser interface {
	ParseWebhook(payload []byte, signatureHeader string) (payment.Event, error)
}

// PaymentHandler handles card checkout, the provider webhook and payment
// status checks.
type PaymentHandler struct {
	svc    PaymentServicer
	parser WebhookParser
	logger *zap.Logger
}

func NewPaymentHandler(svc PaymentServicer, parser WebhookParser, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, parser: parser, logger: logger.Named("payments")}
}

// RegisterRoutes registers the public payment endpoints.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout-sessions", h.CreateCheckoutSession)
	r.Post("/webhooks/payment", h.Webhook)
	r.Post("/orders/check-payment", h.CheckPayment)
}

// --- Request / Response types ---

type checkoutRequest struct {
	Cart         []cartItemRequest `json:"cart"`
	TableID      int32             `json:"table_id"`
	CustomerName string            `json:"customer_name"`
	Total        string            `json:"total"`
}

type checkoutResponse struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	OrderID   uuid.UUID `json:"order_id"`
	ShortID   string    `json:"short_id"`
	Total     string    `json:"total"`
}

type checkPaymentRequest struct {
	OrderID string `json:"order_id"`
}

type checkPaymentResponse struct {
	OrderID uuid.UUID `json:"order_id"`
	Status  string    `json:"status"`
}

// --- Handlers ---

// CreateCheckoutSession handles POST /checkout-sessions.
func (h *PaymentHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.svc.Checkout(r.Context(), service.CheckoutInput{
		Items:       toCartItems(req.Cart),
		TableID:     req.TableID,
		Customer:    req.CustomerName,
		ClientTotal: req.Total,
	})
	if err != nil {
		if errors.Is(err, service.ErrItemsNotPersisted) && res != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":    service.ErrItemsNotPersisted.Error(),
				"order_id": res.OrderID.String(),
			})
			return
		}
		writeServiceError(w, h.logger, "create checkout session", err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		SessionID: res.SessionID,
		URL:       res.URL,
		OrderID:   res.OrderID,
		ShortID:   res.ShortID,
		Total:     res.Total,
	})
}

// Webhook handles POST /webhooks/payment. A 2xx tells the provider to stop
// redelivering, so only processing failures return 5xx.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ev, err := h.parser.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.logger.Warn("rejected webhook", zap.Error(err))
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
			return
		}
		h.logger.Error("decode webhook", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	if err := h.svc.HandleEvent(r.Context(), ev); err != nil {
		h.logger.Error("handle webhook", zap.String("event_type", ev.EventType()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// CheckPayment handles POST /orders/check-payment: the customer's page asks
// for the gateway's view of a pending card payment.
func (h *PaymentHandler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	var req checkPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_id"})
		return
	}

	order, err := h.svc.Reconcile(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.logger, "reconcile payment", err)
		return
	}
	writeJSON(w, http.StatusOK, checkPaymentResponse{OrderID: order.ID, Status: string(order.Status)})
}
