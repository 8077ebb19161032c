package enum

// ── Group A: State machines (enum types in DB) ──

const (
	OrderStatusAwaitingPayment  = "awaiting_payment"
	OrderStatusInPreparation    = "in_preparation"
	OrderStatusReadyForDelivery = "ready_for_delivery"
	OrderStatusDelivered        = "delivered"
	OrderStatusCancelled        = "cancelled"
)

// ── Group B: Order attributes (enum types in DB) ──

const (
	PaymentMethodCard = "card"
	PaymentMethodCash = "cash"
)

// Channel is the entry point an order was placed through. It decides the
// initial status: till orders are paid at the counter, self-service orders wait.
const (
	ChannelSelfService = "self_service"
	ChannelTill        = "till"
)

// ── Group C: Labels (no DB constraint) ──

// Actor identifies who triggers a status transition.
type Actor string

const (
	ActorStaff   Actor = "staff"
	ActorGateway Actor = "gateway"
)

// Change feed operations, as emitted by the notify_change() trigger.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Tables published on the change feed.
const (
	TableOrders            = "orders"
	TableOrderItems        = "order_items"
	TableBellNotifications = "bell_notifications"
)

// Notification kinds double as the audio cue keys on the client.
const (
	NotificationNewOrder        = "new_order"
	NotificationOrderUpdate     = "order_update"
	NotificationOrderReady      = "order_ready"
	NotificationPaymentReceived = "payment_received"
)
