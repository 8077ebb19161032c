package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/scanorder/api/internal/enum"
)

type OrderStatus string

const (
	OrderStatusAwaitingPayment  OrderStatus = enum.OrderStatusAwaitingPayment
	OrderStatusInPreparation    OrderStatus = enum.OrderStatusInPreparation
	OrderStatusReadyForDelivery OrderStatus = enum.OrderStatusReadyForDelivery
	OrderStatusDelivered        OrderStatus = enum.OrderStatusDelivered
	OrderStatusCancelled        OrderStatus = enum.OrderStatusCancelled
)

// AllOrderStatuses lists every order_status value in lifecycle order.
var AllOrderStatuses = []OrderStatus{
	OrderStatusAwaitingPayment,
	OrderStatusInPreparation,
	OrderStatusReadyForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, v := range AllOrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = enum.PaymentMethodCard
	PaymentMethodCash PaymentMethod = enum.PaymentMethodCash
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCard || m == PaymentMethodCash
}

type OrderChannel string

const (
	OrderChannelSelfService OrderChannel = enum.ChannelSelfService
	OrderChannelTill        OrderChannel = enum.ChannelTill
)

func (c OrderChannel) Valid() bool {
	return c == OrderChannelSelfService || c == OrderChannelTill
}

type Order struct {
	ID                 uuid.UUID      `json:"id"`
	ShortID            string         `json:"short_id"`
	Customer           string         `json:"customer"`
	TableID            int32          `json:"table_id"`
	Total              pgtype.Numeric `json:"total"`
	Status             OrderStatus    `json:"status"`
	PaymentMethod      PaymentMethod  `json:"payment_method"`
	Channel            OrderChannel   `json:"channel"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	ExternalSessionRef pgtype.Text    `json:"external_session_ref"`
	ExternalPaymentRef pgtype.Text    `json:"external_payment_ref"`
}

type OrderItem struct {
	ID         uuid.UUID      `json:"id"`
	OrderID    uuid.UUID      `json:"order_id"`
	MenuItemID uuid.UUID      `json:"menu_item_id"`
	Quantity   int32          `json:"quantity"`
	Price      pgtype.Numeric `json:"price"`
}

type MenuItem struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Price       pgtype.Numeric `json:"price"`
	Category    string         `json:"category"`
	Available   bool           `json:"available"`
}

type BellNotification struct {
	ID        uuid.UUID `json:"id"`
	TableID   int32     `json:"table_id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type Setting struct {
	OrdersEnabled bool      `json:"orders_enabled"`
	CardEnabled   bool      `json:"card_enabled"`
	CashEnabled   bool      `json:"cash_enabled"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type OrderStatusCount struct {
	Status OrderStatus `json:"status"`
	Count  int64       `json:"count"`
}
