package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/enum"
)

func cashReq(items ...CartItem) CreateOrderRequest {
	return CreateOrderRequest{
		Items:         items,
		TableID:       5,
		PaymentMethod: database.PaymentMethodCash,
		Channel:       database.OrderChannelSelfService,
	}
}

// =====================
// Validation tests
// =====================

func TestCreateOrder_ValidationErrors(t *testing.T) {
	store := newMemStore()
	burger := store.addMenuItem("Burger", "10.00")
	hidden := store.addMenuItem("Hidden", "3.00")
	store.mu.Lock()
	h := store.menu[hidden.ID]
	h.Available = false
	store.menu[hidden.ID] = h
	store.mu.Unlock()

	tests := []struct {
		name    string
		mutate  func(r *CreateOrderRequest)
		wantErr error
	}{
		{"empty cart", func(r *CreateOrderRequest) { r.Items = nil }, ErrEmptyCart},
		{"missing table", func(r *CreateOrderRequest) { r.TableID = 0 }, ErrMissingTable},
		{"zero quantity", func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 }, ErrInvalidQuantity},
		{"bad menu id", func(r *CreateOrderRequest) { r.Items[0].MenuItemID = "nope" }, ErrInvalidMenuItemID},
		{"unknown item", func(r *CreateOrderRequest) { r.Items[0].MenuItemID = uuid.NewString() }, ErrMenuItemUnavailable},
		{"unavailable item", func(r *CreateOrderRequest) { r.Items[0].MenuItemID = hidden.ID.String() }, ErrMenuItemUnavailable},
		{"bad payment method", func(r *CreateOrderRequest) { r.PaymentMethod = "cheque" }, ErrInvalidPaymentMethod},
		{"bad channel", func(r *CreateOrderRequest) { r.Channel = "drive" }, ErrInvalidChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cashReq(CartItem{MenuItemID: burger.ID.String(), Quantity: 1})
			tt.mutate(&req)

			svc := newTestOrderService(store)
			_, err := svc.CreateOrder(context.Background(), req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if len(store.orders) != 0 {
		t.Errorf("validation failures wrote %d orders", len(store.orders))
	}
}

func TestCreateOrder_SettingsGate(t *testing.T) {
	tests := []struct {
		name     string
		settings database.UpdateSettingsParams
		method   database.PaymentMethod
		wantErr  error
	}{
		{"ordering disabled", database.UpdateSettingsParams{CardEnabled: true, CashEnabled: true}, database.PaymentMethodCash, ErrOrderingDisabled},
		{"cash disabled", database.UpdateSettingsParams{OrdersEnabled: true, CardEnabled: true}, database.PaymentMethodCash, ErrPaymentMethodDisabled},
		{"card disabled", database.UpdateSettingsParams{OrdersEnabled: true, CashEnabled: true}, database.PaymentMethodCard, ErrPaymentMethodDisabled},
		{"all enabled", database.UpdateSettingsParams{OrdersEnabled: true, CardEnabled: true, CashEnabled: true}, database.PaymentMethodCard, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			item := store.addMenuItem("Burger", "10.00")
			if _, err := store.UpdateSettings(context.Background(), tt.settings); err != nil {
				t.Fatal(err)
			}
			req := cashReq(CartItem{MenuItemID: item.ID.String(), Quantity: 1})
			req.PaymentMethod = tt.method

			_, err := newTestOrderService(store).CreateOrder(context.Background(), req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// =====================
// Pricing and persistence
// =====================

func TestCreateOrder_TotalIsSumOfLines(t *testing.T) {
	store := newMemStore()
	burger := store.addMenuItem("Burger", "10.00")
	fries := store.addMenuItem("Frites", "4.50")
	svc := newTestOrderService(store)

	detail, err := svc.CreateOrder(context.Background(), cashReq(
		CartItem{MenuItemID: burger.ID.String(), Quantity: 2},
		CartItem{MenuItemID: fries.ID.String(), Quantity: 1},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !numericEquals(detail.Order.Total, "24.50") {
		t.Errorf("total: got %s, want 24.50", numericToDecimal(detail.Order.Total))
	}
	if len(detail.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(detail.Items))
	}
	if detail.Names[burger.ID] != "Burger" {
		t.Errorf("names: got %v", detail.Names)
	}

	// Later menu price changes do not touch captured prices.
	store.setMenuPrice(burger.ID, "12.00")
	got, err := svc.GetOrder(context.Background(), detail.Order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	for _, it := range got.Items {
		if it.MenuItemID == burger.ID && !numericEquals(it.Price, "10.00") {
			t.Errorf("captured price: got %s, want 10.00", numericToDecimal(it.Price))
		}
	}
	if !numericEquals(got.Order.Total, "24.50") {
		t.Errorf("total after menu change: got %s", numericToDecimal(got.Order.Total))
	}
}

func TestCreateOrder_InitialStatusAndShortID(t *testing.T) {
	tests := []struct {
		name       string
		channel    database.OrderChannel
		method     database.PaymentMethod
		table      int32
		wantStatus database.OrderStatus
		wantShort  string
		wantTable  int32
		wantLabel  string
	}{
		{"self service cash", database.OrderChannelSelfService, database.PaymentMethodCash, 3, database.OrderStatusAwaitingPayment, "TABLE-3-042", 3, "Table 3"},
		{"self service card", database.OrderChannelSelfService, database.PaymentMethodCard, 7, database.OrderStatusAwaitingPayment, "TABLE-7-042", 7, "Table 7"},
		{"till cash", database.OrderChannelTill, database.PaymentMethodCash, 9, database.OrderStatusInPreparation, "POS-042", 0, "Comptoir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			item := store.addMenuItem("Burger", "10.00")
			detail, err := newTestOrderService(store).CreateOrder(context.Background(), CreateOrderRequest{
				Items:         []CartItem{{MenuItemID: item.ID.String(), Quantity: 1}},
				TableID:       tt.table,
				PaymentMethod: tt.method,
				Channel:       tt.channel,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			o := detail.Order
			if o.Status != tt.wantStatus {
				t.Errorf("status: got %s, want %s", o.Status, tt.wantStatus)
			}
			if o.ShortID != tt.wantShort {
				t.Errorf("short id: got %s, want %s", o.ShortID, tt.wantShort)
			}
			if o.TableID != tt.wantTable {
				t.Errorf("table: got %d, want %d", o.TableID, tt.wantTable)
			}
			if o.Customer != tt.wantLabel {
				t.Errorf("customer: got %q, want %q", o.Customer, tt.wantLabel)
			}
		})
	}
}

func TestCreateOrder_ItemsFailLeavesOrphan(t *testing.T) {
	store := newMemStore()
	item := store.addMenuItem("Burger", "10.00")
	store.createOrderItemsFn = func(ctx context.Context, orderID uuid.UUID, items []database.CreateOrderItemParams) ([]database.OrderItem, error) {
		return nil, errors.New("connection reset")
	}
	svc := newTestOrderService(store)

	detail, err := svc.CreateOrder(context.Background(), cashReq(CartItem{MenuItemID: item.ID.String(), Quantity: 2}))
	if !errors.Is(err, ErrItemsNotPersisted) {
		t.Fatalf("expected ErrItemsNotPersisted, got %v", err)
	}
	if detail == nil {
		t.Fatal("expected the created order to be returned")
	}

	got, err := svc.GetOrder(context.Background(), detail.Order.ID)
	if err != nil {
		t.Fatalf("order should be discoverable: %v", err)
	}
	if len(got.Items) != 0 {
		t.Errorf("expected zero items, got %d", len(got.Items))
	}
	if !numericEquals(got.Order.Total, "20.00") {
		t.Errorf("total: got %s, want 20.00", numericToDecimal(got.Order.Total))
	}
}

func TestGetOrder_ResolvesItemNames(t *testing.T) {
	store := newMemStore()
	burger := store.addMenuItem("Burger", "10.00")
	fries := store.addMenuItem("Frites", "4.50")
	svc := newTestOrderService(store)

	created, err := svc.CreateOrder(context.Background(), cashReq(
		CartItem{MenuItemID: burger.ID.String(), Quantity: 2},
		CartItem{MenuItemID: fries.ID.String(), Quantity: 1},
	))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// Items taken off the menu later still show their name.
	store.setAvailable(fries.ID, false)

	got, err := svc.GetOrder(context.Background(), created.Order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(got.Items))
	}
	for _, it := range got.Items {
		want := map[uuid.UUID]string{burger.ID: "Burger", fries.ID: "Frites"}[it.MenuItemID]
		if got.Names[it.MenuItemID] != want {
			t.Errorf("name for %s: got %q, want %q", it.MenuItemID, got.Names[it.MenuItemID], want)
		}
	}
}

func TestCreateOrder_RetryOnUniqueViolation(t *testing.T) {
	store := newMemStore()
	item := store.addMenuItem("Burger", "10.00")

	createCallCount := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		createCallCount++
		if createCallCount == 1 {
			return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_short_id_key"}
		}
		return database.Order{ID: uuid.New(), ShortID: arg.ShortID, Status: arg.Status, Total: arg.Total}, nil
	}

	svc := newTestOrderService(store)
	suffix := 0
	svc.shortIDSuffix = func() int { suffix++; return suffix }

	detail, err := svc.CreateOrder(context.Background(), cashReq(CartItem{MenuItemID: item.ID.String(), Quantity: 1}))
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if createCallCount != 2 {
		t.Errorf("expected 2 CreateOrder calls, got %d", createCallCount)
	}
	if detail.Order.ShortID != "TABLE-5-002" {
		t.Errorf("short id: got %s, want a fresh suffix", detail.Order.ShortID)
	}
}

func TestCreateOrder_RetryExhausted(t *testing.T) {
	store := newMemStore()
	item := store.addMenuItem("Burger", "10.00")
	calls := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		calls++
		return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_short_id_key"}
	}

	_, err := newTestOrderService(store).CreateOrder(context.Background(), cashReq(CartItem{MenuItemID: item.ID.String(), Quantity: 1}))
	if err == nil {
		t.Fatal("expected error after exhausting retries, got nil")
	}
	if !strings.Contains(err.Error(), "create order") {
		t.Errorf("expected 'create order' in error message, got: %v", err)
	}
	if calls != maxShortIDRetries {
		t.Errorf("expected %d attempts, got %d", maxShortIDRetries, calls)
	}
}

func TestCreateOrder_NonUniqueErrorNotRetried(t *testing.T) {
	store := newMemStore()
	item := store.addMenuItem("Burger", "10.00")
	calls := 0
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		calls++
		return database.Order{}, &pgconn.PgError{Code: "23503"}
	}

	_, err := newTestOrderService(store).CreateOrder(context.Background(), cashReq(CartItem{MenuItemID: item.ID.String(), Quantity: 1}))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
}

// =====================
// Status updates
// =====================

func TestUpdateStatus_NotFound(t *testing.T) {
	svc := newTestOrderService(newMemStore())
	_, err := svc.UpdateStatus(context.Background(), uuid.New(), database.OrderStatusDelivered, enum.ActorStaff)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestUpdateStatus_InvalidTarget(t *testing.T) {
	svc := newTestOrderService(newMemStore())
	_, err := svc.UpdateStatus(context.Background(), uuid.New(), "archived", enum.ActorStaff)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

// A concurrent writer moves the order between our read and our write.
func TestUpdateStatus_StalePrecondition(t *testing.T) {
	store := newMemStore()
	id := uuid.New()
	store.putOrder(database.Order{ID: id, Status: database.OrderStatusInPreparation})

	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		store.mu.Lock()
		o := store.orders[arg.ID]
		o.Status = database.OrderStatusCancelled
		store.orders[arg.ID] = o
		store.mu.Unlock()
		store.updateOrderStatusFn = nil
		return store.UpdateOrderStatus(ctx, arg)
	}

	svc := newTestOrderService(store)
	_, err := svc.UpdateStatus(context.Background(), id, database.OrderStatusReadyForDelivery, enum.ActorStaff)
	if !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}
	if got := store.order(id).Status; got != database.OrderStatusCancelled {
		t.Errorf("newer state was overwritten: got %s", got)
	}
}

// =====================
// Reads
// =====================

func TestListOrders_DefaultsAndValidation(t *testing.T) {
	store := newMemStore()
	store.putOrder(database.Order{ID: uuid.New(), Status: database.OrderStatusInPreparation, CreatedAt: time.Now()})
	store.putOrder(database.Order{ID: uuid.New(), Status: database.OrderStatusDelivered, CreatedAt: time.Now()})
	svc := newTestOrderService(store)

	active, err := svc.ActiveOrders(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].Status != database.OrderStatusInPreparation {
		t.Errorf("active orders: got %+v", active)
	}

	if _, err := svc.ListOrders(context.Background(), ListOrdersFilter{Statuses: []database.OrderStatus{"bogus"}}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestActiveOrders_CappedNewestFirst(t *testing.T) {
	store := newMemStore()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < maxActiveOrders+5; i++ {
		store.putOrder(database.Order{ID: uuid.New(), Status: database.OrderStatusInPreparation, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	store.putOrder(database.Order{ID: uuid.New(), Status: database.OrderStatusDelivered, CreatedAt: base.Add(24 * time.Hour)})
	svc := newTestOrderService(store)

	active, err := svc.ActiveOrders(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != maxActiveOrders {
		t.Fatalf("active orders: got %d, want %d", len(active), maxActiveOrders)
	}
	newest := base.Add(time.Duration(maxActiveOrders+4) * time.Minute)
	if !active[0].CreatedAt.Equal(newest) {
		t.Errorf("first order: got %v, want newest %v", active[0].CreatedAt, newest)
	}

	older, err := svc.ListOrders(context.Background(), ListOrdersFilter{Statuses: ActiveStatuses, Limit: 50, Offset: maxActiveOrders})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(older) != 5 {
		t.Errorf("orders past the board: got %d, want 5", len(older))
	}
}

func TestCounters(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	store.putOrder(database.Order{ID: uuid.New(), Status: database.OrderStatusDelivered, Total: makeNumeric("24.50"), CreatedAt: now.Add(-time.Hour)})
	store.putOrder(database.Order{ID: uuid.New(), Status: database.OrderStatusInPreparation, Total: makeNumeric("10.00"), CreatedAt: now.Add(-2 * time.Hour)})
	store.putOrder(database.Order{ID: uuid.New(), Status: database.OrderStatusAwaitingPayment, Total: makeNumeric("99.00"), CreatedAt: now})
	store.putOrder(database.Order{ID: uuid.New(), Status: database.OrderStatusDelivered, Total: makeNumeric("50.00"), CreatedAt: now.Add(-24 * time.Hour)})

	svc := newTestOrderService(store)
	svc.now = func() time.Time { return now }

	c, err := svc.Counters(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ByStatus[database.OrderStatusDelivered] != 2 || c.ByStatus[database.OrderStatusReadyForDelivery] != 0 {
		t.Errorf("by status: got %v", c.ByStatus)
	}
	if c.RevenueToday != "34.50" {
		t.Errorf("revenue today: got %s, want 34.50", c.RevenueToday)
	}
}
