package payment

import "griff_shop/internal/model"

// EventPaymentStatusChanged is the only webhook event type acted on.
const EventPaymentStatusChanged = "PAYMENT_STATUS_CHANGED"

// Gateway status vocabulary.
const (
	GatewayDone            = "DONE"
	GatewayCanceled        = "CANCELED"
	GatewayPartialCanceled = "PARTIAL_CANCELED"
	GatewayAborted         = "ABORTED"
	GatewayExpired         = "EXPIRED"
)

// PaymentStatusFor maps a gateway status onto the local payment status.
// Any other value is unknown and reported with ok=false.
func PaymentStatusFor(gateway string) (status model.PaymentStatus, ok bool) {
	switch gateway {
	case GatewayDone:
		return model.PaymentDone, true
	case GatewayCanceled, GatewayPartialCanceled:
		return model.PaymentCancelled, true
	case GatewayAborted, GatewayExpired:
		return model.PaymentFailed, true
	default:
		return "", false
	}
}

// OrderStatusFor maps a payment status onto the order status it implies.
func OrderStatusFor(ps model.PaymentStatus) (status model.OrderStatus, ok bool) {
	switch ps {
	case model.PaymentDone:
		return model.OrderPaid, true
	case model.PaymentCancelled, model.PaymentFailed:
		return model.OrderCancelled, true
	default:
		return "", false
	}
}
