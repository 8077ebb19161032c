package payment

import "github.com/google/uuid"

// Event is a decoded webhook delivery. The concrete type is one of
// CheckoutCompleted, PaymentFailed, SessionExpired or Unhandled.
type Event interface {
	EventType() string
	isEvent()
}

// CheckoutCompleted is a finished hosted checkout. Paid is false for
// asynchronous methods that have not settled yet.
type CheckoutCompleted struct {
	Type            string
	SessionID       string
	PaymentIntentID string
	OrderID         uuid.UUID
	Paid            bool
}

// PaymentFailed carries the intent; OrderID is uuid.Nil when the intent had no metadata.
type PaymentFailed struct {
	Type            string
	PaymentIntentID string
	OrderID         uuid.UUID
}

type SessionExpired struct {
	Type      string
	SessionID string
	OrderID   uuid.UUID
}

// Unhandled is any event type the lifecycle does not react to.
type Unhandled struct {
	Type string
}

func (e CheckoutCompleted) EventType() string { return e.Type }
func (e PaymentFailed) EventType() string     { return e.Type }
func (e SessionExpired) EventType() string    { return e.Type }
func (e Unhandled) EventType() string         { return e.Type }

func (CheckoutCompleted) isEvent() {}
func (PaymentFailed) isEvent()     {}
func (SessionExpired) isEvent()    {}
func (Unhandled) isEvent()         {}
