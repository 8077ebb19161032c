package views

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scanorder/api/internal/bus"
	"go.uber.org/zap"
)

func startHub(t *testing.T) *bus.Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := bus.NewHub(zap.NewNop())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

// stoppedHub returns a hub whose subscriptions are closed from the start,
// as if every event were lost.
func stoppedHub(t *testing.T) *bus.Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := bus.NewHub(zap.NewNop())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	return hub
}

type counterSync struct {
	value   atomic.Int64
	updates chan Update[int64]
}

func newCounterSync(hub Subscriber, interval time.Duration) (*Synchronizer[int64], *counterSync) {
	c := &counterSync{updates: make(chan Update[int64], 32)}
	s := &Synchronizer[int64]{
		Name:     "counter",
		Bus:      hub,
		Scopes:   []bus.Scope{bus.TableScope("orders")},
		Interval: interval,
		Logger:   zap.NewNop(),
		Fetch: func(context.Context) (int64, error) {
			return c.value.Load(), nil
		},
		OnUpdate: func(ctx context.Context, u Update[int64]) error {
			select {
			case c.updates <- u:
			case <-ctx.Done():
			}
			return nil
		},
	}
	return s, c
}

func (c *counterSync) waitFor(t *testing.T, want int64) Update[int64] {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case u := <-c.updates:
			if u.Next == want {
				return u
			}
		case <-timeout:
			t.Fatalf("view never reached %d", want)
		}
	}
}

func runSync[T any](t *testing.T, s *Synchronizer[T]) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestSynchronizerZeroIntervalUsesDefault(t *testing.T) {
	s, c := newCounterSync(startHub(t), 0)
	c.value.Store(3)
	_, done := runSync(t, s)

	if u := c.waitFor(t, 3); !u.Baseline {
		t.Errorf("first update should be the baseline: %+v", u)
	}
	select {
	case err := <-done:
		t.Fatalf("Run stopped: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSynchronizerBaseline(t *testing.T) {
	s, c := newCounterSync(startHub(t), time.Hour)
	c.value.Store(7)
	runSync(t, s)

	u := c.waitFor(t, 7)
	if !u.Baseline || u.Cause != nil {
		t.Errorf("first update: %+v", u)
	}
}

func TestSynchronizerConvergesByPollWithoutEvents(t *testing.T) {
	s, c := newCounterSync(startHub(t), 20*time.Millisecond)
	runSync(t, s)
	c.waitFor(t, 0)

	// Mutate the store without publishing anything on the bus.
	c.value.Store(3)

	u := c.waitFor(t, 3)
	if u.Cause != nil || u.Baseline {
		t.Errorf("expected a poll update, got %+v", u)
	}
	if u.Prev != 0 {
		t.Errorf("prev: got %d, want 0", u.Prev)
	}
}

func TestSynchronizerRefetchesOnEvent(t *testing.T) {
	hub := startHub(t)
	s, c := newCounterSync(hub, time.Hour)
	runSync(t, s)
	c.waitFor(t, 0)

	c.value.Store(5)
	// The payload disagrees with the store; the store wins.
	hub.Publish(bus.ChangeEvent{Table: "orders", Op: "update", New: json.RawMessage(`{"count":99}`)})

	u := c.waitFor(t, 5)
	if u.Cause == nil || u.Cause.Op != "update" {
		t.Errorf("cause: %+v", u.Cause)
	}
}

func TestSynchronizerPollsWhenSubscriptionIsLost(t *testing.T) {
	s, c := newCounterSync(stoppedHub(t), 20*time.Millisecond)
	runSync(t, s)
	c.waitFor(t, 0)

	c.value.Store(11)
	c.waitFor(t, 11)
}

func TestSynchronizerUnsubscribesOnCancel(t *testing.T) {
	hub := startHub(t)
	s, c := newCounterSync(hub, 10*time.Millisecond)
	cancel, done := runSync(t, s)
	c.waitFor(t, 0)

	time.Sleep(10 * time.Millisecond)
	if got := hub.Subscribers("orders"); got != 1 {
		t.Fatalf("subscribers while running: %d", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)
	if got := hub.Subscribers("orders"); got != 0 {
		t.Errorf("subscribers after cancel: %d", got)
	}

	// No further updates once stopped.
	for len(c.updates) > 0 {
		<-c.updates
	}
	time.Sleep(30 * time.Millisecond)
	if n := len(c.updates); n != 0 {
		t.Errorf("%d updates after cancel", n)
	}
}

func TestSynchronizerBaselineError(t *testing.T) {
	hub := startHub(t)
	dbDown := errors.New("db down")
	s := &Synchronizer[int]{
		Name:     "broken",
		Bus:      hub,
		Scopes:   []bus.Scope{bus.TableScope("orders")},
		Interval: time.Hour,
		Logger:   zap.NewNop(),
		Fetch:    func(context.Context) (int, error) { return 0, dbDown },
		OnUpdate: func(context.Context, Update[int]) error { return nil },
	}

	err := s.Run(context.Background())
	if !errors.Is(err, dbDown) {
		t.Fatalf("got %v, want %v", err, dbDown)
	}
	time.Sleep(10 * time.Millisecond)
	if got := hub.Subscribers("orders"); got != 0 {
		t.Errorf("subscription leaked: %d", got)
	}
}

func TestSynchronizerKeepsStateOnRefreshError(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	updates := make(chan Update[int], 8)
	s := &Synchronizer[int]{
		Name:     "flaky",
		Bus:      startHub(t),
		Scopes:   []bus.Scope{bus.TableScope("orders")},
		Interval: 10 * time.Millisecond,
		Logger:   zap.NewNop(),
		Fetch: func(context.Context) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 2 {
				return 0, errors.New("timeout")
			}
			return calls, nil
		},
		OnUpdate: func(ctx context.Context, u Update[int]) error {
			select {
			case updates <- u:
			case <-ctx.Done():
			}
			return nil
		},
	}
	runSync(t, s)

	<-updates // baseline: 1
	select {
	case u := <-updates:
		if u.Prev != 1 || u.Next != 3 {
			t.Errorf("after failed refresh: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no update after failed refresh")
	}
}

func TestSynchronizerStopsOnOutputError(t *testing.T) {
	closed := errors.New("connection closed")
	s := &Synchronizer[int]{
		Name:     "output",
		Bus:      startHub(t),
		Scopes:   []bus.Scope{bus.TableScope("orders")},
		Interval: 10 * time.Millisecond,
		Logger:   zap.NewNop(),
		Fetch:    func(context.Context) (int, error) { return 1, nil },
		OnUpdate: func(_ context.Context, u Update[int]) error {
			if u.Baseline {
				return nil
			}
			return closed
		},
	}
	_, done := runSync(t, s)

	select {
	case err := <-done:
		if !errors.Is(err, closed) {
			t.Errorf("got %v, want %v", err, closed)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
