// Package views keeps per-connection read models in step with the order
// store. Every view re-fetches canonical state on each relevant change
// event and on a fixed poll, so a lost event only delays convergence.
package views

import (
	"context"
	"fmt"
	"time"

	"github.com/scanorder/api/internal/bus"
	"go.uber.org/zap"
)

// Subscriber is satisfied by *bus.Hub.
type Subscriber interface {
	Subscribe(scopes ...bus.Scope) *bus.Subscription
}

// Update is one refresh of a view. Cause is the event that triggered it,
// nil for the baseline and for poll ticks.
type Update[T any] struct {
	Prev     T
	Next     T
	Baseline bool
	Cause    *bus.ChangeEvent
}

// Synchronizer drives one view. Fetch reads canonical state; event payloads
// are never used as state. OnEvent sees each event before its re-fetch and
// is meant for transient hints. An error from OnUpdate or OnEvent stops Run.
// An Interval of zero or less polls every DefaultStaffInterval.
type Synchronizer[T any] struct {
	Name     string
	Bus      Subscriber
	Scopes   []bus.Scope
	Interval time.Duration
	Fetch    func(ctx context.Context) (T, error)
	OnUpdate func(ctx context.Context, u Update[T]) error
	OnEvent  func(ctx context.Context, ev bus.ChangeEvent) error
	Logger   *zap.Logger
}

// Run subscribes, fetches the baseline, then refreshes on events and poll
// ticks until ctx is done. The subscription and ticker never outlive Run.
func (s *Synchronizer[T]) Run(ctx context.Context) error {
	logger := s.Logger.With(zap.String("view", s.Name))

	// Subscribe before the baseline so a change between the two is not missed.
	sub := s.Bus.Subscribe(s.Scopes...)
	defer sub.Unsubscribe()

	current, err := s.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch %s baseline: %w", s.Name, err)
	}
	if err := s.OnUpdate(ctx, Update[T]{Next: current, Baseline: true}); err != nil {
		return err
	}

	interval := s.Interval
	if interval <= 0 {
		interval = DefaultStaffInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	events := sub.C()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				logger.Warn("change subscription closed, continuing on poll only")
				events = nil
				continue
			}
			if s.OnEvent != nil {
				if err := s.OnEvent(ctx, ev); err != nil {
					return err
				}
			}
			if current, err = s.refresh(ctx, logger, current, &ev); err != nil {
				return err
			}

		case <-ticker.C:
			if current, err = s.refresh(ctx, logger, current, nil); err != nil {
				return err
			}
		}
	}
}

// refresh re-fetches and reports. A failed fetch keeps the current state
// and waits for the next trigger.
func (s *Synchronizer[T]) refresh(ctx context.Context, logger *zap.Logger, current T, cause *bus.ChangeEvent) (T, error) {
	next, err := s.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("refresh failed", zap.Error(err))
		}
		return current, nil
	}
	if err := s.OnUpdate(ctx, Update[T]{Prev: current, Next: next, Cause: cause}); err != nil {
		return current, err
	}
	return next, nil
}
