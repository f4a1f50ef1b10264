package notifications

import (
	"fmt"
	"time"

	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/payloads"
)

// Message is a notification ready for a Dispatcher.
type Message struct {
	Title      string
	Body       string
	Recipients []string
}

func compose(decoded any) (Message, bool) {
	switch event := decoded.(type) {
	case *payloads.UserRegisteredEvent:
		return Message{
			Title:      "Confirm your email",
			Body:       fmt.Sprintf("Use this token to confirm your registration: %s", event.ConfirmKey),
			Recipients: recipients(event.Email),
		}, true
	case *payloads.PasswordResetRequestedEvent:
		return Message{
			Title: "Password reset",
			Body: fmt.Sprintf("Use this token to set a new password: %s\nThe token expires at %s.",
				event.ResetKey, event.ExpiresAt.UTC().Format(time.RFC3339)),
			Recipients: recipients(event.Email),
		}, true
	case *payloads.OrderPlacedEvent:
		return Message{
			Title: fmt.Sprintf("Order %d placed", event.OrderID),
			Body: fmt.Sprintf("Thank you for your order. Order %d with %d item(s) totalling %s has been placed.",
				event.OrderID, event.ItemCount, event.TotalSum),
			Recipients: recipients(event.Email),
		}, true
	case *payloads.OrderStateChangedEvent:
		label := event.StateLabel
		if label == "" {
			label = event.State
		}
		return Message{
			Title:      fmt.Sprintf("Order %d status changed to %s", event.OrderID, label),
			Body:       fmt.Sprintf("Order %d status changed to %s.", event.OrderID, label),
			Recipients: recipients(event.Email),
		}, true
	default:
		return Message{}, false
	}
}

func recipients(email string) []string {
	if email == "" {
		return nil
	}
	return []string{email}
}
