package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/scanorder/api/internal/bus"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/enum"
	"go.uber.org/zap"
)

// Subscriber is satisfied by *bus.Hub.
type Subscriber interface {
	Subscribe(scopes ...bus.Scope) *bus.Subscription
}

// Watcher classifies order changes seen on the bus for the staff audience
// and hands them to a dispatcher. It only reads event payloads, so a missed
// event means a missed notification and nothing more.
type Watcher struct {
	bus        Subscriber
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewWatcher(sub Subscriber, d *Dispatcher, logger *zap.Logger) *Watcher {
	return &Watcher{bus: sub, dispatcher: d, logger: logger.Named("watcher")}
}

// Run consumes order events until ctx is done. A dropped subscription is
// replaced.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		sub := w.bus.Subscribe(bus.TableScope(enum.TableOrders))
		w.consume(ctx, sub)
		sub.Unsubscribe()
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn("order subscription dropped, resubscribing")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (w *Watcher) consume(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if n, ok := FromChange(ev, AudienceStaff); ok {
				w.dispatcher.Dispatch(ctx, n)
			}
		}
	}
}

// FromChange builds the notification for an orders change event, if any.
func FromChange(ev bus.ChangeEvent, audience Audience) (Notification, bool) {
	if ev.Table != enum.TableOrders || ev.Op == enum.OpDelete {
		return Notification{}, false
	}
	to, ok := ev.NewField("status")
	if !ok {
		// ids-only payload
		return Notification{}, false
	}
	from, _ := ev.OldField("status")
	if ev.Op == enum.OpInsert {
		from = ""
	}

	spec, ok := Classify(database.OrderStatus(from), database.OrderStatus(to), audience)
	if !ok {
		return Notification{}, false
	}

	n := Notification{
		Spec:      spec,
		Audience:  audience,
		OldStatus: database.OrderStatus(from),
		NewStatus: database.OrderStatus(to),
		ChangedAt: time.Now(),
	}
	if v, ok := ev.NewField("id"); ok {
		n.OrderID, _ = uuid.Parse(v)
	}
	n.ShortID, _ = ev.NewField("short_id")
	if v, ok := ev.NewField("table_id"); ok {
		if t, err := strconv.ParseInt(v, 10, 32); err == nil {
			n.TableID = int32(t)
		}
	}
	if v, ok := ev.NewField("updated_at"); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			n.ChangedAt = t
		}
	}
	return n, true
}
