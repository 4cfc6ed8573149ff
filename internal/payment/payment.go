package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	appLog "staycal/internal/log"
)

// ErrDisabled is returned when no payment provider is configured.
var ErrDisabled = errors.New("payments are disabled")

// Request describes a single-charge checkout for one booking.
type Request struct {
	BookingID   string
	AmountCents int64
	Currency    string
	Email       string
	Description string
}

// Checkout is the provider session the guest is redirected to.
type Checkout struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Provider creates hosted checkout sessions.
type Provider interface {
	CreateCheckout(ctx context.Context, req Request) (Checkout, error)
}

// Disabled is the provider used when no secret key is configured.
type Disabled struct{}

func (Disabled) CreateCheckout(context.Context, Request) (Checkout, error) {
	return Checkout{}, ErrDisabled
}

// StripeProvider creates Stripe Checkout Sessions in payment mode.
type StripeProvider struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewStripeProvider builds a provider for secretKey. backends may be nil;
// tests pass one pointing at a local server.
func NewStripeProvider(secretKey, successURL, cancelURL string, backends *stripe.Backends) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeProvider{api: api, successURL: successURL, cancelURL: cancelURL}
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, req Request) (Checkout, error) {
	if req.AmountCents <= 0 {
		return Checkout{}, fmt.Errorf("invalid amount %d", req.AmountCents)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(req.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(req.BookingID),
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.AddMetadata("booking_id", req.BookingID)
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return Checkout{}, fmt.Errorf("create checkout session: %w", err)
	}

	appLog.Info("checkout session created", "booking_id", req.BookingID, "session", sess.ID, "amount_cents", req.AmountCents)
	return Checkout{ID: sess.ID, URL: sess.URL}, nil
}
