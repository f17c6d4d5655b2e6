package domain

import "errors"

var (
	// ErrUnknownStatus indicates a status outside the known lifecycle.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrSameStatus indicates a self-transition, which is rejected rather than
	// treated as a no-op.
	ErrSameStatus = errors.New("order already in requested status")
	// ErrTerminalStatus indicates the order reached a terminal state and cannot
	// move again.
	ErrTerminalStatus = errors.New("order status is terminal")
	// ErrInvalidTransition indicates a jump outside the linear lifecycle.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// nextStatus maps each non-terminal state to its single forward successor.
var nextStatus = map[OrderStatus]OrderStatus{
	OrderStatusSubmitted:     OrderStatusInPreparation,
	OrderStatusInPreparation: OrderStatusShipped,
	OrderStatusShipped:       OrderStatusDelivered,
}

func (s OrderStatus) known() bool {
	switch s {
	case OrderStatusSubmitted, OrderStatusInPreparation, OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled:
		return true
	}
	return false
}

// ValidateTransition checks whether from → to is a legal lifecycle move.
// The lifecycle is linear; cancellation is reachable from any non-terminal
// state.
func ValidateTransition(from, to OrderStatus) error {
	if !from.known() || !to.known() {
		return ErrUnknownStatus
	}
	if from == to {
		return ErrSameStatus
	}
	if from.IsTerminal() {
		return ErrTerminalStatus
	}
	if to == OrderStatusCanceled {
		return nil
	}
	if nextStatus[from] != to {
		return ErrInvalidTransition
	}
	return nil
}
