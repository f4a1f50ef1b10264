package enums

import "fmt"

// OrderState is the lifecycle position of an order. An order starts life as
// the user's basket and never returns to it once placed.
type OrderState string

const (
	OrderStateBasket    OrderState = "basket"
	OrderStateNew       OrderState = "new"
	OrderStateConfirmed OrderState = "confirmed"
	OrderStateAssembled OrderState = "assembled"
	OrderStateSent      OrderState = "sent"
	OrderStateDelivered OrderState = "delivered"
	OrderStateCanceled  OrderState = "canceled"
)

var validOrderStates = []OrderState{
	OrderStateBasket,
	OrderStateNew,
	OrderStateConfirmed,
	OrderStateAssembled,
	OrderStateSent,
	OrderStateDelivered,
	OrderStateCanceled,
}

var orderStateLabels = map[OrderState]string{
	OrderStateBasket:    "Basket",
	OrderStateNew:       "New",
	OrderStateConfirmed: "Confirmed",
	OrderStateAssembled: "Assembled",
	OrderStateSent:      "Sent",
	OrderStateDelivered: "Delivered",
	OrderStateCanceled:  "Canceled",
}

// String implements fmt.Stringer.
func (s OrderState) String() string {
	return string(s)
}

// Label returns the human readable state name used in notifications.
func (s OrderState) Label() string {
	if label, ok := orderStateLabels[s]; ok {
		return label
	}
	return string(s)
}

// IsValid reports whether the value is a known OrderState.
func (s OrderState) IsValid() bool {
	for _, candidate := range validOrderStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsPlaced reports whether the order has left the basket.
func (s OrderState) IsPlaced() bool {
	return s.IsValid() && s != OrderStateBasket
}

// ParseOrderState converts raw input into an OrderState.
func ParseOrderState(value string) (OrderState, error) {
	for _, candidate := range validOrderStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order state %q", value)
}
