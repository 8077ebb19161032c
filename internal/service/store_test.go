package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/scanorder/api/internal/database"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- In-memory store ---

// memStore implements OrderStore, PaymentStore and SettingsStore in memory.
// The fn fields override single methods when a test needs a failure.
type memStore struct {
	mu       sync.Mutex
	menu     map[uuid.UUID]database.MenuItem
	orders   map[uuid.UUID]database.Order
	items    map[uuid.UUID][]database.OrderItem
	settings *database.Setting
	now      func() time.Time

	updateStatusCalls int

	createOrderFn       func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	createOrderItemsFn  func(ctx context.Context, orderID uuid.UUID, items []database.CreateOrderItemParams) ([]database.OrderItem, error)
	updateOrderStatusFn func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
}

func newMemStore() *memStore {
	return &memStore{
		menu:   make(map[uuid.UUID]database.MenuItem),
		orders: make(map[uuid.UUID]database.Order),
		items:  make(map[uuid.UUID][]database.OrderItem),
		now:    time.Now,
	}
}

func (m *memStore) addMenuItem(name, price string) database.MenuItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := database.MenuItem{ID: uuid.New(), Name: name, Price: makeNumeric(price), Available: true}
	m.menu[item.ID] = item
	return item
}

func (m *memStore) setMenuPrice(id uuid.UUID, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.menu[id]
	item.Price = makeNumeric(price)
	m.menu[id] = item
}

func (m *memStore) putOrder(o database.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *memStore) order(id uuid.UUID) database.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *memStore) GetAvailableMenuItems(ctx context.Context, ids []uuid.UUID) ([]database.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.MenuItem
	for _, id := range ids {
		if item, ok := m.menu[id]; ok && item.Available {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memStore) GetMenuItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.MenuItem
	for _, id := range ids {
		if item, ok := m.menu[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memStore) setAvailable(id uuid.UUID, available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.menu[id]
	item.Available = available
	m.menu[id] = item
}

func (m *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if m.createOrderFn != nil {
		return m.createOrderFn(ctx, arg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	o := database.Order{
		ID:            uuid.New(),
		ShortID:       arg.ShortID,
		Customer:      arg.Customer,
		TableID:       arg.TableID,
		Total:         arg.Total,
		Status:        arg.Status,
		PaymentMethod: arg.PaymentMethod,
		Channel:       arg.Channel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *memStore) CreateOrderItems(ctx context.Context, orderID uuid.UUID, items []database.CreateOrderItemParams) ([]database.OrderItem, error) {
	if m.createOrderItemsFn != nil {
		return m.createOrderItemsFn(ctx, orderID, items)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.OrderItem
	for _, it := range items {
		out = append(out, database.OrderItem{
			ID:         uuid.New(),
			OrderID:    orderID,
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
			Price:      it.Price,
		})
	}
	m.items[orderID] = append(m.items[orderID], out...)
	return out, nil
}

func (m *memStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) GetOrderByPaymentRef(ctx context.Context, ref string) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ExternalPaymentRef.Valid && o.ExternalPaymentRef.String == ref {
			return o, nil
		}
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *memStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Order
	for _, o := range m.orders {
		if len(arg.Statuses) == 0 || containsStatus(arg.Statuses, o.Status) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int(arg.Offset) >= len(out) {
		return nil, nil
	}
	out = out[arg.Offset:]
	if arg.Limit > 0 && int(arg.Limit) < len(out) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (m *memStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.OrderItem(nil), m.items[orderID]...), nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	m.mu.Lock()
	m.updateStatusCalls++
	m.mu.Unlock()
	if m.updateOrderStatusFn != nil {
		return m.updateOrderStatusFn(ctx, arg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[arg.ID]
	if !ok || o.Status != arg.From {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.To
	o.UpdatedAt = m.now()
	m.orders[o.ID] = o
	return o, nil
}

func (m *memStore) CountOrdersByStatus(ctx context.Context) ([]database.OrderStatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[database.OrderStatus]int64{}
	for _, o := range m.orders {
		counts[o.Status]++
	}
	var out []database.OrderStatusCount
	for s, c := range counts {
		out = append(out, database.OrderStatusCount{Status: s, Count: c})
	}
	return out, nil
}

func (m *memStore) SumRevenueSince(ctx context.Context, since time.Time) (pgtype.Numeric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, o := range m.orders {
		if o.CreatedAt.Before(since) || o.Status == database.OrderStatusAwaitingPayment || o.Status == database.OrderStatusCancelled {
			continue
		}
		sum = sum.Add(numericToDecimal(o.Total))
	}
	return decimalToNumeric(sum), nil
}

func (m *memStore) SetOrderSessionRef(ctx context.Context, id uuid.UUID, ref string) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.ExternalSessionRef.Valid {
		return database.Order{}, pgx.ErrNoRows
	}
	o.ExternalSessionRef = pgtype.Text{String: ref, Valid: true}
	m.orders[id] = o
	return o, nil
}

func (m *memStore) SetOrderPaymentRef(ctx context.Context, id uuid.UUID, ref string) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.ExternalPaymentRef = pgtype.Text{String: ref, Valid: true}
	m.orders[id] = o
	return o, nil
}

func (m *memStore) GetSettings(ctx context.Context) (database.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return database.Setting{}, pgx.ErrNoRows
	}
	return *m.settings, nil
}

func (m *memStore) UpdateSettings(ctx context.Context, arg database.UpdateSettingsParams) (database.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := database.Setting{
		OrdersEnabled: arg.OrdersEnabled,
		CardEnabled:   arg.CardEnabled,
		CashEnabled:   arg.CashEnabled,
		UpdatedAt:     m.now(),
	}
	m.settings = &s
	return s, nil
}

func containsStatus(list []database.OrderStatus, s database.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := numericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

func newTestOrderService(store *memStore) *OrderService {
	svc := NewOrderService(store, NewSettingsService(store), zap.NewNop())
	svc.shortIDSuffix = func() int { return 42 }
	return svc
}
