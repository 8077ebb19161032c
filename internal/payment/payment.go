// Package payment adapts the hosted card checkout provider to the order lifecycle.
package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrGateway          = errors.New("payment gateway error")
	ErrNotConfigured    = errors.New("payment gateway not configured")
)

// Gateway is the contract the order lifecycle relies on from the card provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error)
	GetPaymentIntentStatus(ctx context.Context, intentID string) (IntentStatus, error)
	GetSessionPaymentIntent(ctx context.Context, sessionID string) (string, error)
	ParseWebhook(payload []byte, signatureHeader string) (Event, error)
}

// LineItem is one cart line, priced in minor currency units.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type CheckoutRequest struct {
	OrderID    uuid.UUID
	TableID    int32
	LineItems  []LineItem
	SuccessURL string
	CancelURL  string
}

type Session struct {
	ID  string
	URL string
}

// IntentStatus is the provider's view of a payment intent.
type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentCanceled              IntentStatus = "canceled"
	IntentPaymentFailed         IntentStatus = "payment_failed"
)

// Pending reports whether the intent may still succeed.
func (s IntentStatus) Pending() bool {
	switch s {
	case IntentProcessing, IntentRequiresPaymentMethod, IntentRequiresConfirmation,
		IntentRequiresAction, IntentRequiresCapture:
		return true
	}
	return false
}

// Failed reports whether the intent can no longer succeed.
func (s IntentStatus) Failed() bool {
	return s == IntentCanceled || s == IntentPaymentFailed
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a two-decimal amount to cents.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}
