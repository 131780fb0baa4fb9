// Package notify sends transactional email.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"solestore-backend/internal/models"
	"solestore-backend/pkg/logkey"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

const senderName = "SoleStore"

type SendGrid struct {
	client *sendgrid.Client
	from   string
	log    *logrus.Logger
}

func NewSendGrid(apiKey, from string, log *logrus.Logger) *SendGrid {
	return &SendGrid{client: sendgrid.NewSendClient(apiKey), from: from, log: log}
}

func (s *SendGrid) SendOrderConfirmation(ctx context.Context, o models.Order) error {
	to := o.ShippingInfo.Email
	if to == "" {
		return fmt.Errorf("order %s has no email address", o.OrderNumber)
	}
	subject, text, htmlBody := ConfirmationMessage(o)
	message := mail.NewSingleEmail(
		mail.NewEmail(senderName, s.from),
		subject,
		mail.NewEmail(o.ShippingInfo.FullName, to),
		text,
		htmlBody,
	)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d body=%s", resp.StatusCode, resp.Body)
	}
	s.log.WithFields(logrus.Fields{
		logkey.OrderNum: o.OrderNumber,
		logkey.Status:   resp.StatusCode,
	}).Info("order confirmation sent")
	return nil
}

// ConfirmationMessage renders the subject, plain text and HTML bodies.
func ConfirmationMessage(o models.Order) (subject, text, htmlBody string) {
	subject = fmt.Sprintf("Your order %s is confirmed", o.OrderNumber)

	var t, h strings.Builder
	fmt.Fprintf(&t, "Hi %s,\n\nThanks for your order %s.\n\n", o.ShippingInfo.FullName, o.OrderNumber)
	fmt.Fprintf(&h, "<p>Hi %s,</p><p>Thanks for your order <strong>%s</strong>.</p><ul>",
		html.EscapeString(o.ShippingInfo.FullName), html.EscapeString(o.OrderNumber))
	for _, it := range o.Items {
		fmt.Fprintf(&t, "  %d x %s (size %g)  %.2f\n", it.Quantity, it.Name, it.Size, it.Price*float64(it.Quantity))
		fmt.Fprintf(&h, "<li>%d &times; %s (size %g) %.2f</li>",
			it.Quantity, html.EscapeString(it.Name), it.Size, it.Price*float64(it.Quantity))
	}
	fmt.Fprintf(&t, "\nSubtotal %.2f\nShipping %.2f\nTax %.2f\nTotal %.2f\n",
		o.Pricing.Subtotal, o.Pricing.Shipping, o.Pricing.Tax, o.Pricing.Total)
	fmt.Fprintf(&h, "</ul><p>Total: <strong>%.2f</strong></p>", o.Pricing.Total)
	return subject, t.String(), h.String()
}

// Nop drops every message.
type Nop struct{}

func (Nop) SendOrderConfirmation(context.Context, models.Order) error { return nil }
