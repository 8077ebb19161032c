// Package notify turns order status transitions into user-facing signals
// and fans them out to sinks. Nothing here is authoritative: a lost
// notification never loses the transition itself.
package notify

import (
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/enum"
)

// Audience is who a notification is addressed to.
type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceStaff    Audience = "staff"
)

// Spec describes one user-facing signal. Sound is the audio cue key and
// Browser asks the client for a native notification when permitted.
type Spec struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Sound       string `json:"sound"`
	Browser     bool   `json:"browser"`
}

// Classify maps a status change to the signal shown to audience. An empty
// from status means the order was just created. It reports false when the
// change is not worth a signal for that audience.
func Classify(from, to database.OrderStatus, audience Audience) (Spec, bool) {
	if from == to {
		return Spec{}, false
	}
	switch audience {
	case AudienceStaff:
		return classifyStaff(from, to)
	case AudienceCustomer:
		return classifyCustomer(from, to)
	}
	return Spec{}, false
}

func classifyStaff(from, to database.OrderStatus) (Spec, bool) {
	switch {
	case from == "":
		return Spec{
			Kind:        enum.NotificationNewOrder,
			Title:       "Nouvelle commande",
			Description: "Une nouvelle commande vient d'arriver",
			Sound:       enum.NotificationNewOrder,
			Browser:     true,
		}, true
	case from == database.OrderStatusAwaitingPayment && to == database.OrderStatusInPreparation:
		return Spec{
			Kind:        enum.NotificationPaymentReceived,
			Title:       "Paiement reçu",
			Description: "La commande peut être préparée",
			Sound:       enum.NotificationPaymentReceived,
			Browser:     true,
		}, true
	case from == database.OrderStatusAwaitingPayment && to == database.OrderStatusCancelled:
		return Spec{
			Kind:        enum.NotificationOrderUpdate,
			Title:       "Paiement abandonné",
			Description: "La commande a été annulée",
			Sound:       enum.NotificationOrderUpdate,
		}, true
	}
	return Spec{
		Kind:        enum.NotificationOrderUpdate,
		Title:       "Commande mise à jour",
		Description: "Nouveau statut : " + statusLabel(to),
		Sound:       enum.NotificationOrderUpdate,
	}, true
}

func classifyCustomer(from, to database.OrderStatus) (Spec, bool) {
	if from == "" {
		return Spec{}, false
	}
	switch to {
	case database.OrderStatusInPreparation:
		if from == database.OrderStatusAwaitingPayment {
			return Spec{
				Kind:        enum.NotificationPaymentReceived,
				Title:       "Paiement confirmé",
				Description: "Votre commande est en préparation",
				Sound:       enum.NotificationPaymentReceived,
			}, true
		}
	case database.OrderStatusReadyForDelivery:
		return Spec{
			Kind:        enum.NotificationOrderReady,
			Title:       "Commande prête !",
			Description: "Votre commande arrive à votre table",
			Sound:       enum.NotificationOrderReady,
			Browser:     true,
		}, true
	case database.OrderStatusDelivered:
		return Spec{
			Kind:        enum.NotificationOrderUpdate,
			Title:       "Commande livrée",
			Description: "Bon appétit !",
			Sound:       enum.NotificationOrderUpdate,
		}, true
	case database.OrderStatusCancelled:
		return Spec{
			Kind:        enum.NotificationOrderUpdate,
			Title:       "Commande annulée",
			Description: "Votre commande a été annulée",
			Sound:       enum.NotificationOrderUpdate,
			Browser:     true,
		}, true
	}
	return Spec{
		Kind:        enum.NotificationOrderUpdate,
		Title:       "Commande mise à jour",
		Description: "Nouveau statut : " + statusLabel(to),
		Sound:       enum.NotificationOrderUpdate,
	}, true
}

var statusLabels = map[database.OrderStatus]string{
	database.OrderStatusAwaitingPayment:  "en attente de paiement",
	database.OrderStatusInPreparation:    "en préparation",
	database.OrderStatusReadyForDelivery: "prête",
	database.OrderStatusDelivered:        "livrée",
	database.OrderStatusCancelled:        "annulée",
}

func statusLabel(s database.OrderStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}
