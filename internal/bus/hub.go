package bus

import (
	"context"
	"sync"

	"github.com/scanorder/api/internal/metrics"
	"go.uber.org/zap"
)

const subscriptionBuffer = 64

// Subscription is one subscriber's view of the bus. Its channel is closed
// on Unsubscribe, when the hub stops, or when the subscriber falls behind.
type Subscription struct {
	hub    *Hub
	scopes []Scope
	ch     chan ChangeEvent
	once   sync.Once
}

// C returns the event stream.
func (s *Subscription) C() <-chan ChangeEvent {
	return s.ch
}

// Unsubscribe detaches this subscription only. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
	})
}

func (s *Subscription) wants(ev ChangeEvent) bool {
	for _, sc := range s.scopes {
		if sc.matches(ev) {
			return true
		}
	}
	return false
}

// Hub maintains the set of active subscriptions and broadcasts change events to them
type Hub struct {
	// Registered subscriptions by table name
	rooms map[string]map[*Subscription]bool

	register   chan *Subscription
	unregister chan *Subscription
	broadcast  chan ChangeEvent
	done       chan struct{}

	// Mutex for thread-safe room access
	mu sync.RWMutex

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Subscription]bool),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		broadcast:  make(chan ChangeEvent, 256),
		done:       make(chan struct{}),
		logger:     logger.Named("bus"),
	}
}

// Run starts the hub's main loop and returns when ctx is done. All open
// subscriptions are closed on return.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			for _, table := range sub.tables() {
				if h.rooms[table] == nil {
					h.rooms[table] = make(map[*Subscription]bool)
				}
				h.rooms[table][sub] = true
			}
			h.mu.Unlock()
			metrics.SubscriberAdded()

		case sub := <-h.unregister:
			h.mu.Lock()
			h.drop(sub)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			for sub := range h.rooms[ev.Table] {
				if !sub.wants(ev) {
					continue
				}
				select {
				case sub.ch <- ev:
				default:
					// Subscriber is not draining; it resynchronizes by polling.
					h.logger.Warn("dropping slow subscriber", zap.String("table", ev.Table))
					h.drop(sub)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for _, subs := range h.rooms {
				for sub := range subs {
					h.drop(sub)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// drop removes sub from every room and closes its channel. Caller holds mu.
func (h *Hub) drop(sub *Subscription) {
	found := false
	for _, table := range sub.tables() {
		clients, ok := h.rooms[table]
		if !ok {
			continue
		}
		if _, exists := clients[sub]; exists {
			delete(clients, sub)
			found = true
			// Clean up empty rooms
			if len(clients) == 0 {
				delete(h.rooms, table)
			}
		}
	}
	if found {
		close(sub.ch)
		metrics.SubscriberRemoved()
	}
}

func (s *Subscription) tables() []string {
	seen := make(map[string]bool, len(s.scopes))
	var out []string
	for _, sc := range s.scopes {
		if !seen[sc.Table] {
			seen[sc.Table] = true
			out = append(out, sc.Table)
		}
	}
	return out
}

// Subscribe registers interest in the given scopes. If the hub has stopped
// the returned subscription is already closed.
func (h *Hub) Subscribe(scopes ...Scope) *Subscription {
	sub := &Subscription{
		hub:    h,
		scopes: scopes,
		ch:     make(chan ChangeEvent, subscriptionBuffer),
	}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.ch)
	}
	return sub
}

// Publish hands an event to the hub. It is a no-op once the hub has stopped.
func (h *Hub) Publish(ev ChangeEvent) {
	select {
	case h.broadcast <- ev:
	case <-h.done:
	}
}

// Subscribers returns the number of live subscriptions on table.
func (h *Hub) Subscribers(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[table])
}
