package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, short_id, customer, table_id, total, status, payment_method, channel,
	created_at, updated_at, external_session_ref, external_payment_ref`

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.ShortID,
		&o.Customer,
		&o.TableID,
		&o.Total,
		&o.Status,
		&o.PaymentMethod,
		&o.Channel,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.ExternalSessionRef,
		&o.ExternalPaymentRef,
	)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

type CreateOrderParams struct {
	ShortID       string
	Customer      string
	TableID       int32
	Total         pgtype.Numeric
	Status        OrderStatus
	PaymentMethod PaymentMethod
	Channel       OrderChannel
}

const createOrder = `INSERT INTO orders (short_id, customer, table_id, total, status, payment_method, channel)
VALUES ($1, $2, $3, $4, $5::order_status, $6::payment_method, $7::order_channel)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.ShortID,
		arg.Customer,
		arg.TableID,
		arg.Total,
		string(arg.Status),
		string(arg.PaymentMethod),
		string(arg.Channel),
	)
	return scanOrder(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderByPaymentRef = `SELECT ` + orderColumns + ` FROM orders WHERE external_payment_ref = $1
ORDER BY created_at DESC LIMIT 1`

func (q *Queries) GetOrderByPaymentRef(ctx context.Context, ref string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByPaymentRef, ref))
}

type ListOrdersParams struct {
	// Statuses filters on status when non-empty.
	Statuses []OrderStatus
	Limit    int32
	Offset   int32
}

const listOrders = `SELECT ` + orderColumns + ` FROM orders
WHERE (cardinality($1::text[]) = 0 OR status::text = ANY($1::text[]))
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	statuses := make([]string, len(arg.Statuses))
	for i, s := range arg.Statuses {
		statuses[i] = string(s)
	}
	rows, err := q.db.Query(ctx, listOrders, statuses, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

type UpdateOrderStatusParams struct {
	ID   uuid.UUID
	From OrderStatus
	To   OrderStatus
}

// UpdateOrderStatus is a compare-and-swap on status: it returns pgx.ErrNoRows
// when the row no longer holds From.
const updateOrderStatus = `UPDATE orders SET status = $3::order_status, updated_at = now()
WHERE id = $1 AND status = $2::order_status
RETURNING ` + orderColumns

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, string(arg.From), string(arg.To)))
}

// SetOrderSessionRef records the checkout session only if none is stored yet.
const setOrderSessionRef = `UPDATE orders SET external_session_ref = $2, updated_at = now()
WHERE id = $1 AND external_session_ref IS NULL
RETURNING ` + orderColumns

func (q *Queries) SetOrderSessionRef(ctx context.Context, id uuid.UUID, ref string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, setOrderSessionRef, id, ref))
}

const setOrderPaymentRef = `UPDATE orders SET external_payment_ref = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

func (q *Queries) SetOrderPaymentRef(ctx context.Context, id uuid.UUID, ref string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, setOrderPaymentRef, id, ref))
}

const countOrdersByStatus = `SELECT status, count(*) FROM orders GROUP BY status`

func (q *Queries) CountOrdersByStatus(ctx context.Context) ([]OrderStatusCount, error) {
	rows, err := q.db.Query(ctx, countOrdersByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderStatusCount
	for rows.Next() {
		var c OrderStatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const sumRevenueSince = `SELECT COALESCE(SUM(total), 0)::numeric FROM orders
WHERE created_at >= $1 AND status NOT IN ('awaiting_payment', 'cancelled')`

func (q *Queries) SumRevenueSince(ctx context.Context, since time.Time) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	err := q.db.QueryRow(ctx, sumRevenueSince, since).Scan(&n)
	return n, err
}

// --- order_items ---

type CreateOrderItemParams struct {
	MenuItemID uuid.UUID
	Quantity   int32
	Price      pgtype.Numeric
}

const createOrderItem = `INSERT INTO order_items (order_id, menu_item_id, quantity, price)
VALUES ($1, $2, $3, $4)
RETURNING id, order_id, menu_item_id, quantity, price`

// CreateOrderItems inserts all lines for one order in a single batch round trip.
func (q *Queries) CreateOrderItems(ctx context.Context, orderID uuid.UUID, items []CreateOrderItemParams) ([]OrderItem, error) {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(createOrderItem, orderID, it.MenuItemID, it.Quantity, it.Price)
	}

	br := q.db.SendBatch(ctx, batch)
	defer br.Close()

	out := make([]OrderItem, 0, len(items))
	for range items {
		var i OrderItem
		if err := br.QueryRow().Scan(&i.ID, &i.OrderID, &i.MenuItemID, &i.Quantity, &i.Price); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

const listOrderItemsByOrder = `SELECT id, order_id, menu_item_id, quantity, price
FROM order_items WHERE order_id = $1 ORDER BY id`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(&i.ID, &i.OrderID, &i.MenuItemID, &i.Quantity, &i.Price); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
