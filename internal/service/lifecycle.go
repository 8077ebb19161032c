package service

import (
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/enum"
)

// allowedTransitions defines valid status transitions and who may trigger them.
// Key is current status, then target status, then the actors allowed.
var allowedTransitions = map[database.OrderStatus]map[database.OrderStatus][]enum.Actor{
	database.OrderStatusAwaitingPayment: {
		database.OrderStatusInPreparation: {enum.ActorStaff, enum.ActorGateway},
		database.OrderStatusCancelled:     {enum.ActorStaff, enum.ActorGateway},
	},
	database.OrderStatusInPreparation: {
		database.OrderStatusReadyForDelivery: {enum.ActorStaff},
		database.OrderStatusDelivered:        {enum.ActorStaff},
		database.OrderStatusCancelled:        {enum.ActorStaff},
	},
	database.OrderStatusReadyForDelivery: {
		database.OrderStatusDelivered: {enum.ActorStaff},
		database.OrderStatusCancelled: {enum.ActorStaff},
	},
}

// CanTransition reports whether actor may move an order from one status to another.
func CanTransition(from, to database.OrderStatus, actor enum.Actor) bool {
	for _, a := range allowedTransitions[from][to] {
		if a == actor {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s database.OrderStatus) bool {
	return s == database.OrderStatusDelivered || s == database.OrderStatusCancelled
}

// initialStatus is decided by the entry point, never inferred from the payment method.
func initialStatus(channel database.OrderChannel) database.OrderStatus {
	if channel == database.OrderChannelTill {
		return database.OrderStatusInPreparation
	}
	return database.OrderStatusAwaitingPayment
}
