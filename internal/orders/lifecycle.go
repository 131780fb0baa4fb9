package orders

import (
	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"
)

// Actor is who asks for a cancellation.
type Actor int

const (
	ActorOwner Actor = iota
	ActorAdmin
)

func (a Actor) String() string {
	if a == ActorAdmin {
		return "admin"
	}
	return "owner"
}

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderProcessing: {models.OrderShipped, models.OrderDelivered, models.OrderCancelled},
	models.OrderShipped:    {models.OrderDelivered, models.OrderCancelled},
	models.OrderDelivered:  nil,
	models.OrderCancelled:  nil,
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to models.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s models.OrderStatus) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// cancellableFrom lists, per actor, the states a cancel may start from.
var cancellableFrom = map[Actor][]models.OrderStatus{
	ActorOwner: {models.OrderProcessing},
	ActorAdmin: {models.OrderProcessing, models.OrderShipped},
}

// CancelGuard returns nil when actor may cancel an order currently in from,
// otherwise an InvalidTransition error with the message shown to the caller.
func CancelGuard(actor Actor, from models.OrderStatus) error {
	for _, s := range cancellableFrom[actor] {
		if s == from && CanTransition(from, models.OrderCancelled) {
			return nil
		}
	}
	switch from {
	case models.OrderCancelled:
		return apperr.InvalidTransition("order is already cancelled")
	case models.OrderShipped:
		return apperr.InvalidTransition("order has already shipped; please contact support to cancel")
	case models.OrderDelivered:
		if actor == ActorAdmin {
			return apperr.InvalidTransition("order has been delivered; process a return instead")
		}
		return apperr.InvalidTransition("order has been delivered and can no longer be cancelled")
	default:
		return apperr.InvalidTransition("order cannot be cancelled from status %q", from)
	}
}
