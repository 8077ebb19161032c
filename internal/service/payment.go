package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/enum"
	"github.com/scanorder/api/internal/metrics"
	"github.com/scanorder/api/internal/payment"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentStore defines the DB methods needed to correlate gateway references.
// Satisfied by *database.Queries.
type PaymentStore interface {
	SetOrderSessionRef(ctx context.Context, id uuid.UUID, ref string) (database.Order, error)
	SetOrderPaymentRef(ctx context.Context, id uuid.UUID, ref string) (database.Order, error)
	GetOrderByPaymentRef(ctx context.Context, ref string) (database.Order, error)
}

// PaymentConfig holds the settings of the card checkout flow.
type PaymentConfig struct {
	// PublicBaseURL is where the hosted page sends the customer back.
	PublicBaseURL string
	// Timeout is how long a pending payment may stay unresolved before
	// reconciliation gives up on it.
	Timeout time.Duration
}

// CheckoutInput is a self-service card checkout.
type CheckoutInput struct {
	Items    []CartItem
	TableID  int32
	Customer string
	// ClientTotal is the total displayed to the customer. It is compared with
	// the server total but never trusted.
	ClientTotal string
}

type CheckoutResult struct {
	SessionID string
	URL       string
	OrderID   uuid.UUID
	ShortID   string
	Total     string
}

// Reconciliation outcomes, also used as metric labels.
const (
	outcomeSucceeded  = "succeeded"
	outcomeFailed     = "failed"
	outcomeTimedOut   = "timed_out"
	outcomePending    = "pending"
	outcomeNotPending = "not_pending"
	outcomeNoIntent   = "no_intent"
)

// PaymentService bridges the card gateway to the order lifecycle. All of its
// transitions are guarded by the awaiting_payment source state, so replays
// of the same gateway event are no-ops.
type PaymentService struct {
	orders  *OrderService
	store   PaymentStore
	gateway payment.Gateway
	cfg     PaymentConfig
	logger  *zap.Logger
	now     func() time.Time
}

func NewPaymentService(orders *OrderService, store PaymentStore, gateway payment.Gateway, cfg PaymentConfig, logger *zap.Logger) *PaymentService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	return &PaymentService{
		orders:  orders,
		store:   store,
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.Named("payments"),
		now:     time.Now,
	}
}

// Checkout creates a card order awaiting payment and opens a hosted checkout
// session for it.
//
// When the order row is written but its items are not, the order is
// cancelled and a result carrying only its ids is returned with
// ErrItemsNotPersisted.
func (s *PaymentService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	detail, err := s.orders.CreateOrder(ctx, CreateOrderRequest{
		Items:         in.Items,
		TableID:       in.TableID,
		Customer:      in.Customer,
		PaymentMethod: database.PaymentMethodCard,
		Channel:       database.OrderChannelSelfService,
	})
	if err != nil {
		if errors.Is(err, ErrItemsNotPersisted) && detail != nil {
			// No session is opened for an itemless order, so nothing would
			// ever move it out of awaiting_payment.
			s.cancelCheckout(ctx, detail.Order)
			return &CheckoutResult{OrderID: detail.Order.ID, ShortID: detail.Order.ShortID}, err
		}
		return nil, err
	}
	order := detail.Order
	total := numericToDecimal(order.Total)

	if in.ClientTotal != "" {
		if ct, err := decimal.NewFromString(in.ClientTotal); err != nil || !ct.Equal(total) {
			s.logger.Warn("client total differs from computed total",
				zap.String("order_id", order.ID.String()),
				zap.String("client_total", in.ClientTotal),
				zap.String("total", total.StringFixed(2)))
		}
	}

	lineItems := make([]payment.LineItem, 0, len(detail.Items))
	for _, it := range detail.Items {
		lineItems = append(lineItems, payment.LineItem{
			Name:       detail.Names[it.MenuItemID],
			UnitAmount: payment.ToMinorUnits(numericToDecimal(it.Price)),
			Quantity:   int64(it.Quantity),
		})
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		OrderID:    order.ID,
		TableID:    order.TableID,
		LineItems:  lineItems,
		SuccessURL: fmt.Sprintf("%s/orders/%s?session_id={CHECKOUT_SESSION_ID}", s.cfg.PublicBaseURL, order.ID),
		CancelURL:  fmt.Sprintf("%s/orders/%s?cancelled=1", s.cfg.PublicBaseURL, order.ID),
	})
	if err != nil {
		s.logger.Error("create checkout session", zap.String("order_id", order.ID.String()), zap.Error(err))
		s.cancelCheckout(ctx, order)
		return nil, err
	}

	if _, err := s.store.SetOrderSessionRef(ctx, order.ID, sess.ID); err != nil {
		// The session metadata still carries the order id, so the webhook can correlate.
		s.logger.Error("record checkout session",
			zap.String("order_id", order.ID.String()),
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}

	return &CheckoutResult{
		SessionID: sess.ID,
		URL:       sess.URL,
		OrderID:   order.ID,
		ShortID:   order.ShortID,
		Total:     total.StringFixed(2),
	}, nil
}

// cancelCheckout cancels an order whose checkout could not be started.
func (s *PaymentService) cancelCheckout(ctx context.Context, order database.Order) {
	if _, err := s.orders.transition(ctx, order, database.OrderStatusCancelled, enum.ActorGateway); err != nil {
		s.logger.Error("cancel order after checkout failure", zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

// HandleEvent applies a verified webhook event to the order it references.
// Events for unknown orders or orders that already moved on are acknowledged
// without effect.
func (s *PaymentService) HandleEvent(ctx context.Context, ev payment.Event) error {
	result, err := s.handleEvent(ctx, ev)
	if err != nil {
		metrics.RecordWebhook(ev.EventType(), "error")
		return err
	}
	metrics.RecordWebhook(ev.EventType(), result)
	return nil
}

func (s *PaymentService) handleEvent(ctx context.Context, ev payment.Event) (string, error) {
	switch e := ev.(type) {
	case payment.CheckoutCompleted:
		if !e.Paid {
			s.logger.Info("checkout completed without payment yet", zap.String("session_id", e.SessionID))
			return "ignored", nil
		}
		order, ok, err := s.resolveOrder(ctx, e.OrderID, "")
		if err != nil || !ok {
			return "unknown_order", err
		}
		if e.PaymentIntentID != "" && order.ExternalPaymentRef.String != e.PaymentIntentID {
			if _, err := s.store.SetOrderPaymentRef(ctx, order.ID, e.PaymentIntentID); err != nil {
				return "", fmt.Errorf("record payment ref: %w", err)
			}
		}
		return s.advance(ctx, order, database.OrderStatusInPreparation)

	case payment.PaymentFailed:
		order, ok, err := s.resolveOrder(ctx, e.OrderID, e.PaymentIntentID)
		if err != nil || !ok {
			return "unknown_order", err
		}
		if order.ExternalPaymentRef.Valid && e.PaymentIntentID != "" && order.ExternalPaymentRef.String != e.PaymentIntentID {
			s.logger.Info("payment failure for an intent no longer linked to the order",
				zap.String("order_id", order.ID.String()),
				zap.String("payment_intent", e.PaymentIntentID))
			return "ignored", nil
		}
		return s.advance(ctx, order, database.OrderStatusCancelled)

	case payment.SessionExpired:
		order, ok, err := s.resolveOrder(ctx, e.OrderID, "")
		if err != nil || !ok {
			return "unknown_order", err
		}
		if order.ExternalSessionRef.Valid && order.ExternalSessionRef.String != e.SessionID {
			return "ignored", nil
		}
		return s.advance(ctx, order, database.OrderStatusCancelled)

	case payment.Unhandled:
		s.logger.Debug("ignoring webhook event", zap.String("event_type", e.Type))
		return "ignored", nil
	}

	return "", fmt.Errorf("unsupported payment event %T", ev)
}

// resolveOrder finds the order by id, or else by payment intent reference.
func (s *PaymentService) resolveOrder(ctx context.Context, orderID uuid.UUID, intentID string) (database.Order, bool, error) {
	var (
		order database.Order
		err   error
	)
	switch {
	case orderID != uuid.Nil:
		order, err = s.orders.getOrder(ctx, orderID)
	case intentID != "":
		order, err = s.store.GetOrderByPaymentRef(ctx, intentID)
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrOrderNotFound
		}
	default:
		s.logger.Warn("payment event without order reference")
		return database.Order{}, false, nil
	}
	if errors.Is(err, ErrOrderNotFound) {
		s.logger.Warn("payment event for unknown order",
			zap.String("order_id", orderID.String()),
			zap.String("payment_intent", intentID))
		return database.Order{}, false, nil
	}
	if err != nil {
		return database.Order{}, false, err
	}
	return order, true, nil
}

// advance moves an order out of awaiting_payment on behalf of the gateway.
// Any other current state, including one changed concurrently, is a no-op.
func (s *PaymentService) advance(ctx context.Context, order database.Order, to database.OrderStatus) (string, error) {
	if order.Status != database.OrderStatusAwaitingPayment {
		s.logger.Debug("order already left awaiting_payment",
			zap.String("order_id", order.ID.String()),
			zap.String("status", string(order.Status)))
		return "noop", nil
	}
	if _, err := s.orders.transition(ctx, order, to, enum.ActorGateway); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return "noop", nil
		}
		return "", err
	}
	return "applied", nil
}

// Reconcile asks the gateway for the current truth of a pending card
// payment and applies it. Orders that are not awaiting a card payment are
// returned unchanged.
func (s *PaymentService) Reconcile(ctx context.Context, orderID uuid.UUID) (database.Order, error) {
	order, err := s.orders.getOrder(ctx, orderID)
	if err != nil {
		return database.Order{}, err
	}
	if order.Status != database.OrderStatusAwaitingPayment || order.PaymentMethod != database.PaymentMethodCard {
		metrics.RecordReconciliation(outcomeNotPending)
		return order, nil
	}

	intentID := order.ExternalPaymentRef.String
	if !order.ExternalPaymentRef.Valid && order.ExternalSessionRef.Valid {
		intentID, err = s.gateway.GetSessionPaymentIntent(ctx, order.ExternalSessionRef.String)
		if err != nil {
			return database.Order{}, err
		}
		if intentID != "" {
			if _, err := s.store.SetOrderPaymentRef(ctx, order.ID, intentID); err != nil {
				return database.Order{}, fmt.Errorf("record payment ref: %w", err)
			}
		}
	}

	expired := s.now().Sub(order.CreatedAt) > s.cfg.Timeout

	var (
		target  database.OrderStatus
		outcome string
	)
	if intentID == "" {
		outcome = outcomeNoIntent
		if expired {
			target, outcome = database.OrderStatusCancelled, outcomeTimedOut
		}
	} else {
		status, err := s.gateway.GetPaymentIntentStatus(ctx, intentID)
		if err != nil {
			return database.Order{}, err
		}
		switch {
		case status == payment.IntentSucceeded:
			target, outcome = database.OrderStatusInPreparation, outcomeSucceeded
		case status.Failed():
			target, outcome = database.OrderStatusCancelled, outcomeFailed
		case status.Pending() && expired:
			target, outcome = database.OrderStatusCancelled, outcomeTimedOut
		default:
			outcome = outcomePending
		}
	}
	metrics.RecordReconciliation(outcome)

	if target == "" {
		return order, nil
	}
	if _, err := s.advance(ctx, order, target); err != nil {
		return database.Order{}, err
	}
	return s.orders.getOrder(ctx, order.ID)
}
