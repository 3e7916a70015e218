// AngelaMos | 2026
// stripe.go

package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/carterperez-dev/templates/imagegate/internal/config"
)

// StripeProvider creates one-time Stripe Checkout sessions and verifies
// their webhooks.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider talks to api.stripe.com unless cfg.StripeAPIURL points
// somewhere else, such as stripe-mock.
func NewStripeProvider(cfg config.PaymentConfig) *StripeProvider {
	backendCfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.StripeAPIURL != "" {
		backendCfg.URL = stripe.String(cfg.StripeAPIURL)
	}

	api := &client.API{}
	api.Init(cfg.StripeSecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}
}

func (p *StripeProvider) CreateSession(
	ctx context.Context,
	req SessionRequest,
) (*ProviderSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}

	return &ProviderSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) IsPaid(ctx context.Context, sessionID string) (bool, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return false, fmt.Errorf("stripe get checkout session: %w", err)
	}

	return sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid, nil
}

// Expire closes an open Checkout session. Stripe refuses to expire a
// session that is not open, so a refusal is resolved by reading the
// session back.
func (p *StripeProvider) Expire(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	_, err := p.api.CheckoutSessions.Expire(sessionID, params)
	if err == nil {
		return nil
	}

	getParams := &stripe.CheckoutSessionParams{}
	getParams.Context = ctx

	sess, getErr := p.api.CheckoutSessions.Get(sessionID, getParams)
	if getErr != nil {
		return fmt.Errorf("stripe expire checkout session: %w", err)
	}

	switch sess.Status {
	case stripe.CheckoutSessionStatusExpired:
		return nil
	case stripe.CheckoutSessionStatusComplete:
		return ErrSessionCompleted
	}

	return fmt.Errorf("stripe expire checkout session: %w", err)
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	return parseStripeEvent(payload, signature, p.webhookSecret)
}

func parseStripeEvent(payload []byte, signature, secret string) (*Event, error) {
	if secret == "" {
		return nil, fmt.Errorf("parse webhook: %w", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		secret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("parse webhook: %w: %w", ErrInvalidSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type), Kind: EventIgnored}

	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.expired",
		"checkout.session.async_payment_failed":
	default:
		return out, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("parse webhook: missing data")
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("parse webhook session: %w", err)
	}

	out.Reference = sess.ClientReferenceID
	out.SessionID = sess.ID

	switch event.Type {
	case "checkout.session.completed":
		// delayed payment methods complete the session before funds arrive
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			out.Kind = EventPaid
		}
	case "checkout.session.async_payment_succeeded":
		out.Kind = EventPaid
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		out.Kind = EventCanceled
	}

	return out, nil
}
