package views

import (
	"context"

	"github.com/google/uuid"
	"github.com/scanorder/api/internal/notify"
)

// Frame kinds written by the views.
const (
	FrameSnapshot     = "snapshot"
	FrameHighlight    = "highlight"
	FrameNotification = "notification"
)

// Highlight is a transient hint taken straight from an event payload, such
// as flashing a freshly inserted order row. The next snapshot supersedes it.
type Highlight struct {
	Kind    string    `json:"kind"`
	OrderID uuid.UUID `json:"order_id"`
	ShortID string    `json:"short_id,omitempty"`
}

// Output receives what a view produces. Implemented per websocket
// connection.
type Output interface {
	Snapshot(ctx context.Context, view string, data any) error
	Highlight(ctx context.Context, h Highlight) error
}

// Notifier is satisfied by *notify.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification)
}
