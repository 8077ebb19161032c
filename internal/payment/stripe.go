package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Webhook event types the lifecycle reacts to.
const (
	EventCheckoutCompleted           = "checkout.session.completed"
	EventCheckoutAsyncPaymentSuccess = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed  = "checkout.session.async_payment_failed"
	EventCheckoutExpired             = "checkout.session.expired"
	EventPaymentIntentFailed         = "payment_intent.payment_failed"
)

const (
	metaOrderID = "order_id"
	metaTableID = "table_id"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string

	// Backends overrides the API endpoints; nil uses the live ones.
	Backends *stripe.Backends
}

// Stripe implements Gateway on top of Checkout Sessions.
type Stripe struct {
	api           *client.API
	webhookSecret string
	currency      string
}

func NewStripe(cfg StripeConfig) *Stripe {
	s := &Stripe{webhookSecret: cfg.WebhookSecret, currency: cfg.Currency}
	if s.currency == "" {
		s.currency = "eur"
	}
	if cfg.SecretKey != "" {
		s.api = &client.API{}
		s.api.Init(cfg.SecretKey, cfg.Backends)
	}
	return s
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error) {
	if s.api == nil {
		return Session{}, ErrNotConfigured
	}

	metadata := map[string]string{
		metaOrderID: req.OrderID.String(),
		metaTableID: strconv.Itoa(int(req.TableID)),
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		ClientReferenceID:  stripe.String(req.OrderID.String()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(s.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
				UnitAmount: stripe.Int64(li.UnitAmount),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("%w: create checkout session: %w", ErrGateway, err)
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) GetPaymentIntentStatus(ctx context.Context, intentID string) (IntentStatus, error) {
	if s.api == nil {
		return "", ErrNotConfigured
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return "", fmt.Errorf("%w: get payment intent: %w", ErrGateway, err)
	}
	return IntentStatus(pi.Status), nil
}

// GetSessionPaymentIntent returns "" when the session has no intent yet.
func (s *Stripe) GetSessionPaymentIntent(ctx context.Context, sessionID string) (string, error) {
	if s.api == nil {
		return "", ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return "", fmt.Errorf("%w: get checkout session: %w", ErrGateway, err)
	}
	if sess.PaymentIntent == nil {
		return "", nil
	}
	return sess.PaymentIntent.ID, nil
}

// ParseWebhook verifies the signature header and decodes the event. Unknown
// event types decode to Unhandled.
func (s *Stripe) ParseWebhook(payload []byte, signatureHeader string) (Event, error) {
	if s.webhookSecret == "" || signatureHeader == "" {
		return nil, ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if ev.Data == nil {
		return Unhandled{Type: string(ev.Type)}, nil
	}

	switch string(ev.Type) {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentSuccess:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out := CheckoutCompleted{
			Type:      string(ev.Type),
			SessionID: sess.ID,
			OrderID:   sessionOrderID(&sess),
			Paid:      sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		}
		if sess.PaymentIntent != nil {
			out.PaymentIntentID = sess.PaymentIntent.ID
		}
		return out, nil

	case EventCheckoutAsyncPaymentFailed:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out := PaymentFailed{Type: string(ev.Type), OrderID: sessionOrderID(&sess)}
		if sess.PaymentIntent != nil {
			out.PaymentIntentID = sess.PaymentIntent.ID
		}
		return out, nil

	case EventCheckoutExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		return SessionExpired{
			Type:      string(ev.Type),
			SessionID: sess.ID,
			OrderID:   sessionOrderID(&sess),
		}, nil

	case EventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		return PaymentFailed{
			Type:            string(ev.Type),
			PaymentIntentID: pi.ID,
			OrderID:         parseOrderID(pi.Metadata[metaOrderID]),
		}, nil
	}

	return Unhandled{Type: string(ev.Type)}, nil
}

func sessionOrderID(sess *stripe.CheckoutSession) uuid.UUID {
	if id := parseOrderID(sess.Metadata[metaOrderID]); id != uuid.Nil {
		return id
	}
	return parseOrderID(sess.ClientReferenceID)
}

func parseOrderID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
