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
	ViewTracker = "tracker"

	DefaultTrackerInterval = 8 * time.Second
)

type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*service.OrderDetail, error)
}

type BellReader interface {
	Unread(ctx context.Context, tableID int32) ([]database.BellNotification, error)
}

// TrackerState is what a customer sees for their order.
type TrackerState struct {
	Order OrderDetailView             `json:"order"`
	Bells []database.BellNotification `json:"bells"`
}

type TrackerConfig struct {
	OrderID  uuid.UUID
	TableID  int32
	Interval time.Duration
}

// NewCustomerTracker follows a single order and the bell pings of its table.
// A status change raises a customer notification.
func NewCustomerTracker(cfg TrackerConfig, orders OrderReader, bells BellReader, sub Subscriber, out Output, notifier Notifier, logger *zap.Logger) *Synchronizer[TrackerState] {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTrackerInterval
	}
	scopes := []bus.Scope{
		bus.RowScope(enum.TableOrders, "id", cfg.OrderID.String()),
		bus.RowScope(enum.TableOrderItems, "order_id", cfg.OrderID.String()),
	}
	if cfg.TableID > 0 {
		scopes = append(scopes, bus.RowScopeInt(enum.TableBellNotifications, "table_id", int(cfg.TableID)))
	}

	return &Synchronizer[TrackerState]{
		Name:     ViewTracker,
		Bus:      sub,
		Scopes:   scopes,
		Interval: cfg.Interval,
		Logger:   logger,
		Fetch: func(ctx context.Context) (TrackerState, error) {
			detail, err := orders.GetOrder(ctx, cfg.OrderID)
			if err != nil {
				return TrackerState{}, err
			}
			state := TrackerState{Order: NewOrderDetailView(detail), Bells: []database.BellNotification{}}
			if cfg.TableID > 0 {
				unread, err := bells.Unread(ctx, cfg.TableID)
				if err != nil {
					return TrackerState{}, err
				}
				if unread != nil {
					state.Bells = unread
				}
			}
			return state, nil
		},
		OnUpdate: func(ctx context.Context, u Update[TrackerState]) error {
			if err := out.Snapshot(ctx, ViewTracker, u.Next); err != nil {
				return err
			}
			if u.Baseline {
				return nil
			}
			from := database.OrderStatus(u.Prev.Order.Status)
			to := database.OrderStatus(u.Next.Order.Status)
			if spec, ok := notify.Classify(from, to, notify.AudienceCustomer); ok {
				notifier.Dispatch(ctx, notify.Notification{
					Spec:      spec,
					Audience:  notify.AudienceCustomer,
					OrderID:   u.Next.Order.ID,
					ShortID:   u.Next.Order.ShortID,
					TableID:   u.Next.Order.TableID,
					OldStatus: from,
					NewStatus: to,
					ChangedAt: u.Next.Order.UpdatedAt,
				})
			}
			return nil
		},
	}
}
