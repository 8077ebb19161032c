package views

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/service"
	"github.com/shopspring/decimal"
)

// OrderView is the JSON shape of an order shared by the REST and websocket
// surfaces.
type OrderView struct {
	ID            uuid.UUID `json:"id"`
	ShortID       string    `json:"short_id"`
	Customer      string    `json:"customer"`
	TableID       int32     `json:"table_id"`
	Total         string    `json:"total"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method"`
	Channel       string    `json:"channel"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OrderDetailView adds the line items. An order whose items failed to
// persist shows an empty list.
type OrderDetailView struct {
	OrderView
	Items []OrderItemView `json:"items"`
}

type OrderItemView struct {
	ID         uuid.UUID `json:"id"`
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	Quantity   int32     `json:"quantity"`
	Price      string    `json:"price"`
}

func NewOrderView(o database.Order) OrderView {
	return OrderView{
		ID:            o.ID,
		ShortID:       o.ShortID,
		Customer:      o.Customer,
		TableID:       o.TableID,
		Total:         FormatAmount(o.Total),
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		Channel:       string(o.Channel),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func NewOrderDetailView(d *service.OrderDetail) OrderDetailView {
	v := OrderDetailView{OrderView: NewOrderView(d.Order)}
	v.Items = make([]OrderItemView, len(d.Items))
	for i, it := range d.Items {
		v.Items[i] = OrderItemView{
			ID:         it.ID,
			MenuItemID: it.MenuItemID,
			Name:       d.Names[it.MenuItemID],
			Quantity:   it.Quantity,
			Price:      FormatAmount(it.Price),
		}
	}
	return v
}

func NewOrderViews(orders []database.Order) []OrderView {
	out := make([]OrderView, len(orders))
	for i, o := range orders {
		out[i] = NewOrderView(o)
	}
	return out
}

// FormatAmount renders a NUMERIC(10,2) column with two decimals.
func FormatAmount(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
