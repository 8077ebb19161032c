package views

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/scanorder/api/internal/bus"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/enum"
	"github.com/scanorder/api/internal/notify"
	"github.com/scanorder/api/internal/service"
	"go.uber.org/zap"
)

const (
	ViewStaffOrders = "staff_orders"
	ViewDashboard   = "dashboard"

	DefaultStaffInterval = 30 * time.Second
)

type ActiveOrderLister interface {
	ActiveOrders(ctx context.Context) ([]database.Order, error)
}

type CountersReader interface {
	Counters(ctx context.Context) (service.Counters, error)
}

// NewStaffOrderList follows every active order. Inserts are highlighted
// from the event payload right away; the re-fetch that follows is what
// the list shows.
func NewStaffOrderList(interval time.Duration, orders ActiveOrderLister, sub Subscriber, out Output, notifier Notifier, logger *zap.Logger) *Synchronizer[[]OrderView] {
	if interval <= 0 {
		interval = DefaultStaffInterval
	}
	return &Synchronizer[[]OrderView]{
		Name:     ViewStaffOrders,
		Bus:      sub,
		Scopes:   []bus.Scope{bus.TableScope(enum.TableOrders)},
		Interval: interval,
		Logger:   logger,
		Fetch: func(ctx context.Context) ([]OrderView, error) {
			active, err := orders.ActiveOrders(ctx)
			if err != nil {
				return nil, err
			}
			return NewOrderViews(active), nil
		},
		OnEvent: func(ctx context.Context, ev bus.ChangeEvent) error {
			if ev.Op != enum.OpInsert {
				return nil
			}
			h := Highlight{Kind: enum.NotificationNewOrder}
			if v, ok := ev.NewField("id"); ok {
				h.OrderID, _ = uuid.Parse(v)
			}
			h.ShortID, _ = ev.NewField("short_id")
			return out.Highlight(ctx, h)
		},
		OnUpdate: func(ctx context.Context, u Update[[]OrderView]) error {
			if err := out.Snapshot(ctx, ViewStaffOrders, u.Next); err != nil {
				return err
			}
			if !u.Baseline {
				notifyStaffChanges(ctx, notifier, u.Prev, u.Next)
			}
			return nil
		},
	}
}

// notifyStaffChanges raises a staff notification for every order that
// appeared or changed status between two snapshots.
func notifyStaffChanges(ctx context.Context, notifier Notifier, prev, next []OrderView) {
	before := make(map[uuid.UUID]database.OrderStatus, len(prev))
	for _, o := range prev {
		before[o.ID] = database.OrderStatus(o.Status)
	}
	for _, o := range next {
		from := before[o.ID]
		to := database.OrderStatus(o.Status)
		spec, ok := notify.Classify(from, to, notify.AudienceStaff)
		if !ok {
			continue
		}
		notifier.Dispatch(ctx, notify.Notification{
			Spec:      spec,
			Audience:  notify.AudienceStaff,
			OrderID:   o.ID,
			ShortID:   o.ShortID,
			TableID:   o.TableID,
			OldStatus: from,
			NewStatus: to,
			ChangedAt: o.UpdatedAt,
		})
	}
}

// NewDashboardCounters follows the per-status counts and today's revenue.
func NewDashboardCounters(interval time.Duration, counters CountersReader, sub Subscriber, out Output, logger *zap.Logger) *Synchronizer[service.Counters] {
	if interval <= 0 {
		interval = DefaultStaffInterval
	}
	return &Synchronizer[service.Counters]{
		Name:     ViewDashboard,
		Bus:      sub,
		Scopes:   []bus.Scope{bus.TableScope(enum.TableOrders)},
		Interval: interval,
		Logger:   logger,
		Fetch:    counters.Counters,
		OnUpdate: func(ctx context.Context, u Update[service.Counters]) error {
			return out.Snapshot(ctx, ViewDashboard, u.Next)
		},
	}
}
