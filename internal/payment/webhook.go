package payment

import (
	"encoding/json"
	"fmt"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Notification is a provider event reduced to what orders care about.
// Handled is false for event types that carry no payment outcome.
type Notification struct {
	EventType string
	IntentID  string
	Status    models.PaymentStatus
	Amount    int64
	Handled   bool
}

// ParseWebhook decodes a provider event. When secret is set the signature
// header is verified first; without it the payload is trusted as is, which
// is only meant for local development. Callers decide whether an empty
// secret is acceptable.
func ParseWebhook(payload []byte, signature, secret string) (Notification, error) {
	var event stripe.Event
	if secret != "" {
		ev, err := webhook.ConstructEventWithOptions(payload, signature, secret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			return Notification{}, apperr.Validation("invalid webhook signature")
		}
		event = ev
	} else if err := json.Unmarshal(payload, &event); err != nil {
		return Notification{}, apperr.Validation("invalid webhook payload")
	}

	n := Notification{EventType: string(event.Type)}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		n.Status = models.PaymentPaid
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		n.Status = models.PaymentFailed
	default:
		return n, nil
	}
	if event.Data == nil {
		return Notification{}, apperr.Validation("webhook event has no data")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return Notification{}, apperr.Wrap(apperr.KindValidation, err, "decode payment intent: %v", err)
	}
	if pi.ID == "" {
		return Notification{}, apperr.Validation("webhook payment intent has no id")
	}
	n.IntentID = pi.ID
	n.Amount = pi.Amount
	n.Handled = true
	return n, nil
}

func (n Notification) String() string {
	return fmt.Sprintf("%s intent=%s status=%s amount=%d", n.EventType, n.IntentID, n.Status, n.Amount)
}
