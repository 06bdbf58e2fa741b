package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/service"
)

// Ensure StripeGateway implements service.PaymentGateway.
var _ service.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway places manual-capture PaymentIntents on a rider's saved card.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a gateway for the given secret key.
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

// Authorize creates and confirms an off-session PaymentIntent that is only
// captured later.
func (g *StripeGateway) Authorize(ctx context.Context, req service.AuthorizeRequest) (domain.GatewayResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(MinorUnits(req.Amount)),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerRef),
		PaymentMethod: stripe.String(req.MethodRef),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata("ride_id", req.RideID)
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return domain.GatewayResult{}, classify(err)
	}
	return domain.GatewayResult{HoldRef: pi.ID, Status: StatusOf(pi.Status)}, nil
}

// Capture settles a held PaymentIntent for its full amount.
func (g *StripeGateway) Capture(ctx context.Context, holdRef, idempotencyKey string) (domain.GatewayResult, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.api.PaymentIntents.Capture(holdRef, params)
	if err != nil {
		return domain.GatewayResult{}, classify(err)
	}
	return domain.GatewayResult{HoldRef: pi.ID, Status: StatusOf(pi.Status)}, nil
}

// Cancel releases a held PaymentIntent.
func (g *StripeGateway) Cancel(ctx context.Context, holdRef, idempotencyKey string) (domain.GatewayResult, error) {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.api.PaymentIntents.Cancel(holdRef, params)
	if err != nil {
		return domain.GatewayResult{}, classify(err)
	}
	return domain.GatewayResult{HoldRef: pi.ID, Status: StatusOf(pi.Status)}, nil
}

// VerifyWebhook checks the Stripe-Signature header against the endpoint
// secret and extracts the PaymentIntent the event is about.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*domain.GatewayEvent, error) {
	return ParseWebhook(payload, signature, g.webhookSecret)
}

// EnsureCustomer returns existingRef, or creates a customer for the account.
func (g *StripeGateway) EnsureCustomer(ctx context.Context, accountID, email, existingRef string) (string, error) {
	if existingRef != "" {
		return existingRef, nil
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata("account_id", accountID)
	params.SetIdempotencyKey("customer-" + accountID)

	customer, err := g.api.Customers.New(params)
	if err != nil {
		return "", classify(err)
	}
	return customer.ID, nil
}

// AttachPaymentMethod attaches methodRef to the customer and makes it the
// default for invoices.
func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, customerRef, methodRef string) error {
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerRef)}
	attach.Context = ctx
	if _, err := g.api.PaymentMethods.Attach(methodRef, attach); err != nil {
		return classify(err)
	}

	update := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(methodRef),
		},
	}
	update.Context = ctx
	if _, err := g.api.Customers.Update(customerRef, update); err != nil {
		return classify(err)
	}
	return nil
}

// DetachPaymentMethod detaches methodRef from its customer.
func (g *StripeGateway) DetachPaymentMethod(ctx context.Context, methodRef string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	if _, err := g.api.PaymentMethods.Detach(methodRef, params); err != nil {
		return classify(err)
	}
	return nil
}

// GetPaymentMethod fetches the card details of a saved method.
func (g *StripeGateway) GetPaymentMethod(ctx context.Context, methodRef string) (*domain.CardSummary, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := g.api.PaymentMethods.Get(methodRef, params)
	if err != nil {
		return nil, classify(err)
	}
	return CardOf(pm), nil
}

// CardOf reduces a PaymentMethod to its card summary.
func CardOf(pm *stripe.PaymentMethod) *domain.CardSummary {
	summary := &domain.CardSummary{ID: pm.ID}
	if pm.Card != nil {
		summary.Brand = string(pm.Card.Brand)
		summary.Last4 = pm.Card.Last4
		summary.ExpMonth = pm.Card.ExpMonth
		summary.ExpYear = pm.Card.ExpYear
	}
	return summary
}

// ParseWebhook verifies a signed Stripe payload. PaymentIntent events carry
// the intent id as HoldRef; charge events carry the id of the intent the
// charge belongs to. Other events come back with an empty HoldRef.
func ParseWebhook(payload []byte, signature, secret string) (*domain.GatewayEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidSignature, err)
	}

	result := &domain.GatewayEvent{
		ID:   event.ID,
		Type: domain.GatewayEventType(event.Type),
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return result, nil
	}

	var object struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return result, nil
	}

	switch object.Object {
	case "payment_intent":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err == nil {
			result.HoldRef = pi.ID
		}
	case "charge":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err == nil && charge.PaymentIntent != nil {
			result.HoldRef = charge.PaymentIntent.ID
		}
	}
	return result, nil
}

// MinorUnits converts a fare to the smallest currency unit.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// StatusOf normalizes a PaymentIntent status.
func StatusOf(status stripe.PaymentIntentStatus) domain.GatewayStatus {
	switch status {
	case stripe.PaymentIntentStatusRequiresCapture:
		return domain.GatewayStatusHeld
	case stripe.PaymentIntentStatusSucceeded:
		return domain.GatewayStatusSettled
	case stripe.PaymentIntentStatusCanceled:
		return domain.GatewayStatusCancelled
	case stripe.PaymentIntentStatusProcessing:
		return domain.GatewayStatusPending
	default:
		return domain.GatewayStatusFailed
	}
}

// classify maps card errors to service.ErrPaymentDeclined and everything
// else to service.ErrGateway.
func classify(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return fmt.Errorf("%w: %s", service.ErrPaymentDeclined, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %v", service.ErrGateway, err)
}
