// Package payment talks to the card payment provider. Orders only need to
// know whether an intent has been paid and for how much; the client
// confirms the intent directly with the provider using the client secret.
package payment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// Authorization is what the storefront client needs to confirm a payment.
type Authorization struct {
	IntentID     string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Intent is the provider's view of one payment intent. Amount is in minor
// units.
type Intent struct {
	ID     string
	Status models.PaymentStatus
	Amount int64
}

type Gateway interface {
	Authorize(ctx context.Context, amount float64, metadata map[string]string) (Authorization, error)
	LookupIntent(ctx context.Context, intentID string) (Intent, error)
}

// ToMinorUnits converts a decimal amount to the provider's integer unit (cents).
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// StatusFromIntent maps a provider intent status onto the order payment status.
func StatusFromIntent(s stripe.PaymentIntentStatus) models.PaymentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentPaid
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentFailed
	default:
		return models.PaymentPending
	}
}

type Stripe struct {
	api      *client.API
	currency string
}

func NewStripe(secretKey, currency string) *Stripe {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &Stripe{api: client.New(secretKey, nil), currency: strings.ToLower(currency)}
}

func (s *Stripe) Authorize(ctx context.Context, amount float64, metadata map[string]string) (Authorization, error) {
	minor := ToMinorUnits(amount)
	if minor <= 0 {
		return Authorization{}, apperr.Validation("amount must be greater than zero")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minor),
		Currency: stripe.String(s.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Authorization{}, apperr.Wrap(apperr.KindUnavailable, err, "payment provider rejected the request")
	}
	return Authorization{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

func (s *Stripe) LookupIntent(ctx context.Context, intentID string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return Intent{}, fmt.Errorf("get payment intent %s: %w", intentID, err)
	}
	if !strings.EqualFold(string(pi.Currency), s.currency) {
		return Intent{}, apperr.Validation("payment intent %s is in %s, expected %s", intentID, pi.Currency, s.currency)
	}
	return Intent{ID: pi.ID, Status: StatusFromIntent(pi.Status), Amount: pi.Amount}, nil
}

// Disabled is used when no provider key is configured.
type Disabled struct{}

func (Disabled) Authorize(context.Context, float64, map[string]string) (Authorization, error) {
	return Authorization{}, apperr.Unavailable("payments are not configured")
}

func (Disabled) LookupIntent(context.Context, string) (Intent, error) {
	return Intent{}, apperr.Unavailable("payments are not configured")
}
