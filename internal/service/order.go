package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/enum"
	"github.com/scanorder/api/internal/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxShortIDRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrInvalidQuantity       = errors.New("quantity must be > 0")
	ErrMissingTable          = errors.New("table_id is required for self-service orders")
	ErrInvalidMenuItemID     = errors.New("invalid menu_item_id")
	ErrMenuItemUnavailable   = errors.New("menu item not found or unavailable")
	ErrInvalidPaymentMethod  = errors.New("invalid payment_method")
	ErrInvalidChannel        = errors.New("invalid channel")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrOrderingDisabled      = errors.New("ordering is currently disabled")
	ErrPaymentMethodDisabled = errors.New("payment method is currently disabled")

	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStaleStatus       = errors.New("order status changed, please retry")

	// ErrItemsNotPersisted accompanies a created order whose item rows failed.
	// The order row is kept as is.
	ErrItemsNotPersisted = errors.New("order created but items were not persisted")
)

// OrderStore defines the DB methods needed by the order service.
// Satisfied by *database.Queries.
type OrderStore interface {
	GetAvailableMenuItems(ctx context.Context, ids []uuid.UUID) ([]database.MenuItem, error)
	GetMenuItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItems(ctx context.Context, orderID uuid.UUID, items []database.CreateOrderItemParams) ([]database.OrderItem, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CountOrdersByStatus(ctx context.Context) ([]database.OrderStatusCount, error)
	SumRevenueSince(ctx context.Context, since time.Time) (pgtype.Numeric, error)
}

// SettingsLoader reads the persisted business toggles.
type SettingsLoader interface {
	Load(ctx context.Context) (database.Setting, error)
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	Items         []CartItem
	TableID       int32
	Customer      string
	PaymentMethod database.PaymentMethod
	Channel       database.OrderChannel
}

// CartItem is a single cart line.
type CartItem struct {
	MenuItemID string
	Quantity   int32
}

// OrderDetail is an order with its line items.
type OrderDetail struct {
	Order database.Order
	Items []database.OrderItem
	// Names maps menu item ids to their display name at order time.
	Names map[uuid.UUID]string
}

// ListOrdersFilter narrows staff order listings.
type ListOrdersFilter struct {
	Statuses []database.OrderStatus
	Limit    int32
	Offset   int32
}

// ActiveStatuses are the statuses shown on the staff order board.
var ActiveStatuses = []database.OrderStatus{
	database.OrderStatusAwaitingPayment,
	database.OrderStatusInPreparation,
	database.OrderStatusReadyForDelivery,
}

// maxActiveOrders caps the staff board. Older active orders stay reachable
// through ListOrders with an offset.
const maxActiveOrders = 200

// Counters is the dashboard summary.
type Counters struct {
	ByStatus     map[database.OrderStatus]int64 `json:"by_status"`
	RevenueToday string                         `json:"revenue_today"`
}

// OrderService handles order business logic.
type OrderService struct {
	store    OrderStore
	settings SettingsLoader
	logger   *zap.Logger

	// shortIDSuffix returns the random 3-digit part of a short id.
	shortIDSuffix func() int
	now           func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(store OrderStore, settings SettingsLoader, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:         store,
		settings:      settings,
		logger:        logger.Named("orders"),
		shortIDSuffix: func() int { return rand.IntN(1000) },
		now:           time.Now,
	}
}

// pricedLine holds a validated cart line.
type pricedLine struct {
	params database.CreateOrderItemParams
	name   string
}

// CreateOrder validates the cart, prices it from the live menu and persists
// the order then its items. The initial status is decided by the channel.
//
// Item insertion is not atomic with the order row: if it fails the order is
// returned with no items together with ErrItemsNotPersisted.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderDetail, error) {
	if !req.Channel.Valid() {
		return nil, ErrInvalidChannel
	}
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !settings.OrdersEnabled {
		return nil, ErrOrderingDisabled
	}
	if (req.PaymentMethod == database.PaymentMethodCard && !settings.CardEnabled) ||
		(req.PaymentMethod == database.PaymentMethodCash && !settings.CashEnabled) {
		return nil, ErrPaymentMethodDisabled
	}

	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if req.Channel == database.OrderChannelSelfService && req.TableID <= 0 {
		return nil, ErrMissingTable
	}
	if req.Channel == database.OrderChannelTill {
		req.TableID = 0
	}

	// --- Validate items ---
	ids := make([]uuid.UUID, 0, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		id, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidMenuItemID)
		}
		ids = append(ids, id)
	}

	menu, err := s.store.GetAvailableMenuItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get menu items: %w", err)
	}
	byID := make(map[uuid.UUID]database.MenuItem, len(menu))
	for _, m := range menu {
		byID[m.ID] = m
	}

	// --- Price lines: total = sum(price * qty) ---
	total := decimal.Zero
	lines := make([]pricedLine, 0, len(req.Items))
	for i, item := range req.Items {
		m, ok := byID[ids[i]]
		if !ok {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrMenuItemUnavailable)
		}
		price := numericToDecimal(m.Price)
		total = total.Add(price.Mul(decimal.NewFromInt32(item.Quantity)))
		lines = append(lines, pricedLine{
			params: database.CreateOrderItemParams{
				MenuItemID: m.ID,
				Quantity:   item.Quantity,
				Price:      decimalToNumeric(price),
			},
			name: m.Name,
		})
	}

	customer := req.Customer
	if customer == "" {
		customer = defaultCustomerLabel(req.Channel, req.TableID)
	}

	// Retry loop: the random short id can collide with an existing one.
	var order database.Order
	for attempt := 0; ; attempt++ {
		order, err = s.store.CreateOrder(ctx, database.CreateOrderParams{
			ShortID:       s.newShortID(req.Channel, req.TableID),
			Customer:      customer,
			TableID:       req.TableID,
			Total:         decimalToNumeric(total),
			Status:        initialStatus(req.Channel),
			PaymentMethod: req.PaymentMethod,
			Channel:       req.Channel,
		})
		if err == nil {
			break
		}
		if isShortIDConflict(err) && attempt+1 < maxShortIDRetries {
			continue
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	metrics.RecordOrderCreated(string(order.Channel), string(order.PaymentMethod))

	detail := &OrderDetail{Order: order, Names: make(map[uuid.UUID]string, len(lines))}
	params := make([]database.CreateOrderItemParams, 0, len(lines))
	for _, l := range lines {
		params = append(params, l.params)
		detail.Names[l.params.MenuItemID] = l.name
	}

	items, err := s.store.CreateOrderItems(ctx, order.ID, params)
	if err != nil {
		s.logger.Error("order items not persisted",
			zap.String("order_id", order.ID.String()),
			zap.String("short_id", order.ShortID),
			zap.Error(err))
		return detail, fmt.Errorf("%w: %w", ErrItemsNotPersisted, err)
	}
	detail.Items = items

	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("short_id", order.ShortID),
		zap.String("status", string(order.Status)),
		zap.String("channel", string(order.Channel)))
	return detail, nil
}

// UpdateStatus moves an order to a new status on behalf of actor. The write
// is conditional on the status read here; if another writer got there first
// ErrStaleStatus is returned and nothing is changed.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, to database.OrderStatus, actor enum.Actor) (database.Order, error) {
	if !to.Valid() {
		return database.Order{}, ErrInvalidStatus
	}
	current, err := s.getOrder(ctx, orderID)
	if err != nil {
		return database.Order{}, err
	}
	return s.transition(ctx, current, to, actor)
}

func (s *OrderService) transition(ctx context.Context, current database.Order, to database.OrderStatus, actor enum.Actor) (database.Order, error) {
	if !CanTransition(current.Status, to, actor) {
		return database.Order{}, fmt.Errorf("%w: %s to %s by %s", ErrInvalidTransition, current.Status, to, actor)
	}

	updated, err := s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:   current.ID,
		From: current.Status,
		To:   to,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrStaleStatus
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}

	metrics.RecordTransition(string(current.Status), string(to), string(actor))
	s.logger.Info("order status changed",
		zap.String("order_id", current.ID.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
		zap.String("actor", string(actor)))
	return updated, nil
}

func (s *OrderService) getOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrder returns an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*OrderDetail, error) {
	o, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListOrderItemsByOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	names := make(map[uuid.UUID]string, len(items))
	if len(items) > 0 {
		ids := make([]uuid.UUID, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.MenuItemID)
		}
		menu, err := s.store.GetMenuItemsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("get item names: %w", err)
		}
		for _, m := range menu {
			names[m.ID] = m.Name
		}
	}
	return &OrderDetail{Order: o, Items: items, Names: names}, nil
}

func (s *OrderService) ListOrders(ctx context.Context, f ListOrdersFilter) ([]database.Order, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, ErrInvalidStatus
		}
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	orders, err := s.store.ListOrders(ctx, database.ListOrdersParams{
		Statuses: f.Statuses,
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ActiveOrders lists the orders that still need staff attention, newest
// first. The board shows at most maxActiveOrders of them.
func (s *OrderService) ActiveOrders(ctx context.Context) ([]database.Order, error) {
	return s.ListOrders(ctx, ListOrdersFilter{Statuses: ActiveStatuses, Limit: maxActiveOrders})
}

// Counters returns order counts per status and revenue since local midnight.
func (s *OrderService) Counters(ctx context.Context) (Counters, error) {
	rows, err := s.store.CountOrdersByStatus(ctx)
	if err != nil {
		return Counters{}, fmt.Errorf("count orders: %w", err)
	}
	out := Counters{ByStatus: make(map[database.OrderStatus]int64, len(database.AllOrderStatuses))}
	for _, st := range database.AllOrderStatuses {
		out.ByStatus[st] = 0
	}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.Count
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	revenue, err := s.store.SumRevenueSince(ctx, midnight)
	if err != nil {
		return Counters{}, fmt.Errorf("sum revenue: %w", err)
	}
	out.RevenueToday = numericToDecimal(revenue).StringFixed(2)
	return out, nil
}

// --- Helpers ---

func (s *OrderService) newShortID(channel database.OrderChannel, tableID int32) string {
	n := s.shortIDSuffix() % 1000
	if channel == database.OrderChannelTill {
		return fmt.Sprintf("POS-%03d", n)
	}
	return fmt.Sprintf("TABLE-%d-%03d", tableID, n)
}

func defaultCustomerLabel(channel database.OrderChannel, tableID int32) string {
	if channel == database.OrderChannelTill {
		return "Comptoir"
	}
	return fmt.Sprintf("Table %d", tableID)
}

// isShortIDConflict checks if the error is a unique constraint violation
// on the short id (pgconn error code 23505).
func isShortIDConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_short_id_key"
	}
	return false
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
