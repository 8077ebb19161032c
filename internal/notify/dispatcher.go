package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/scanorder/api/internal/database"
	"go.uber.org/zap"
)

// Notification is a classified transition of one order.
type Notification struct {
	Spec
	Audience  Audience             `json:"audience"`
	OrderID   uuid.UUID            `json:"order_id"`
	ShortID   string               `json:"short_id"`
	TableID   int32                `json:"table_id"`
	OldStatus database.OrderStatus `json:"old_status,omitempty"`
	NewStatus database.OrderStatus `json:"new_status"`
	ChangedAt time.Time            `json:"changed_at"`
}

// Sink delivers notifications somewhere: a websocket, a broker, the log.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Dispatcher hands each notification to every sink. Sink failures are
// logged and never reach the caller.
type Dispatcher struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewDispatcher(logger *zap.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, logger: logger.Named("notify")}
}

func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	for _, s := range d.sinks {
		if err := s.Send(ctx, n); err != nil {
			d.logger.Warn("notification sink failed",
				zap.String("sink", s.Name()),
				zap.String("kind", n.Kind),
				zap.String("order_id", n.OrderID.String()),
				zap.Error(err))
		}
	}
}

// LogSink writes notifications to the log.
type LogSink struct {
	Logger *zap.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Send(_ context.Context, n Notification) error {
	s.Logger.Info("notification",
		zap.String("audience", string(n.Audience)),
		zap.String("kind", n.Kind),
		zap.String("short_id", n.ShortID),
		zap.String("old_status", string(n.OldStatus)),
		zap.String("new_status", string(n.NewStatus)))
	return nil
}

// SinkFunc adapts a function to a Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, n Notification) error
}

func (f SinkFunc) Name() string { return f.SinkName }

func (f SinkFunc) Send(ctx context.Context, n Notification) error { return f.Fn(ctx, n) }
