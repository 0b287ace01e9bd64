package order

import (
	"slices"

	"griff_shop/internal/apperr"
	"griff_shop/internal/model"
)

// transitions 订单状态机：pending → paid → shipping → delivered，
// cancelled 可从 pending/paid/shipping 进入；delivered、cancelled 为终态。
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending:   {model.OrderPaid, model.OrderCancelled},
	model.OrderPaid:      {model.OrderShipping, model.OrderCancelled},
	model.OrderShipping:  {model.OrderDelivered, model.OrderCancelled},
	model.OrderDelivered: {},
	model.OrderCancelled: {},
}

// Allowed returns the legal next states. Terminal states yield an empty,
// non-nil slice.
func Allowed(from model.OrderStatus) []model.OrderStatus {
	next, ok := transitions[from]
	if !ok {
		return []model.OrderStatus{}
	}
	return slices.Clone(next)
}

// CanTransition reports whether from → to is an edge of the lifecycle.
func CanTransition(from, to model.OrderStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Check returns an illegal_transition error naming the attempted pair and
// the allowed set when from → to is not an edge.
func Check(from, to model.OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return apperr.Newf(apperr.CodeIllegalTransition, "transition %s -> %s is not allowed", from, to).
		WithDetails(map[string]any{
			"from":    from,
			"to":      to,
			"allowed": Allowed(from),
		})
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status model.OrderStatus) bool {
	return len(transitions[status]) == 0
}

// RestoresStock reports whether entering to requires compensating the
// reserved stock. Stock is reserved at creation, so every cancel restores it.
func RestoresStock(to model.OrderStatus) bool {
	return to == model.OrderCancelled
}
