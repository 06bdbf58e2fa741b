package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/repository"
)

// Idempotency key prefixes sent to the gateway. The ride id is appended.
const (
	authKeyPrefix    = "ride-auth-"
	captureKeyPrefix = "ride-capture-"
	cancelKeyPrefix  = "ride-cancel-"
)

// AuthorizeRequest describes a hold to place on a rider's instrument.
type AuthorizeRequest struct {
	RideID         string
	Amount         float64
	Currency       string
	CustomerRef    string
	MethodRef      string
	IdempotencyKey string
}

// PaymentGateway is the external payment provider.
type PaymentGateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (domain.GatewayResult, error)
	Capture(ctx context.Context, holdRef, idempotencyKey string) (domain.GatewayResult, error)
	Cancel(ctx context.Context, holdRef, idempotencyKey string) (domain.GatewayResult, error)
	VerifyWebhook(payload []byte, signature string) (*domain.GatewayEvent, error)
	EnsureCustomer(ctx context.Context, accountID, email, existingRef string) (string, error)
	AttachPaymentMethod(ctx context.Context, customerRef, methodRef string) error
	DetachPaymentMethod(ctx context.Context, methodRef string) error
	GetPaymentMethod(ctx context.Context, methodRef string) (*domain.CardSummary, error)
}

// PaymentOrchestrator is the contract the ride service uses for payments.
type PaymentOrchestrator interface {
	Authorize(ctx context.Context, riderID, rideID string, amount float64) (string, error)
	AuthorizedInvoice(rideID, payerID string, amount float64, holdRef string) (*domain.Invoice, error)
	Capture(ctx context.Context, rideID string) (*domain.Invoice, error)
	Cancel(ctx context.Context, rideID string)
	ReleaseHold(ctx context.Context, rideID, holdRef string)
}

// Ensure PaymentService implements PaymentOrchestrator.
var _ PaymentOrchestrator = (*PaymentService)(nil)

// PaymentService binds gateway holds, captures and cancellations to rides
// and reconciles gateway webhooks.
type PaymentService struct {
	invoices repository.InvoiceRepository
	accounts repository.AccountRepository
	gateway  PaymentGateway
	currency string
	log      *slog.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	invoices repository.InvoiceRepository,
	accounts repository.AccountRepository,
	gateway PaymentGateway,
	currency string,
	log *slog.Logger,
) *PaymentService {
	return &PaymentService{
		invoices: invoices,
		accounts: accounts,
		gateway:  gateway,
		currency: currency,
		log:      log,
	}
}

// Authorize places a hold for the ride's price and returns the hold
// reference. A ride that already has a held invoice gets its existing
// reference back.
func (s *PaymentService) Authorize(ctx context.Context, riderID, rideID string, amount float64) (string, error) {
	if riderID == "" {
		return "", ErrInvalidRiderID
	}
	if rideID == "" {
		return "", ErrInvalidRideID
	}
	if amount <= 0 {
		return "", ErrInvalidPaymentAmount
	}

	existing, err := s.invoices.GetByRideID(ctx, rideID)
	switch {
	case err == nil && existing.HoldRef != "":
		return existing.HoldRef, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return "", err
	}

	account, err := s.accounts.GetByID(ctx, riderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNoPaymentMethod
		}
		return "", err
	}

	customer, method, ok := account.PaymentInstrument()
	if !ok {
		return "", ErrNoPaymentMethod
	}

	result, err := s.gateway.Authorize(ctx, AuthorizeRequest{
		RideID:         rideID,
		Amount:         amount,
		Currency:       s.currency,
		CustomerRef:    customer,
		MethodRef:      method,
		IdempotencyKey: authKeyPrefix + rideID,
	})
	if err != nil {
		s.log.Warn("payment_authorize_failed",
			"action", "authorize",
			"ride_id", rideID,
			"rider_id", riderID,
			"error", err,
		)
		return "", err
	}

	switch result.Status {
	case domain.GatewayStatusHeld, domain.GatewayStatusSettled:
	default:
		s.log.Warn("payment_authorize_declined",
			"action", "authorize",
			"ride_id", rideID,
			"status", result.Status,
		)
		return "", fmt.Errorf("%w: card declined (status %s)", ErrPaymentDeclined, result.Status)
	}

	s.log.Info("payment_authorized",
		"action", "authorize",
		"ride_id", rideID,
		"hold_ref", result.HoldRef,
		"amount", amount,
	)
	return result.HoldRef, nil
}

// AuthorizedInvoice builds the AUTHORIZED invoice of a ride. The caller stores
// it in the same transaction as the ride row.
func (s *PaymentService) AuthorizedInvoice(rideID, payerID string, amount float64, holdRef string) (*domain.Invoice, error) {
	invoice := &domain.Invoice{
		ID:        uuid.New().String(),
		RideID:    rideID,
		PayerID:   payerID,
		Amount:    amount,
		Currency:  s.currency,
		Status:    domain.InvoiceStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := invoice.MarkAuthorized(holdRef); err != nil {
		return nil, err
	}
	return invoice, nil
}

// Capture settles the ride's hold. A gateway failure marks the invoice
// FAILED and is not returned; only storage errors are. A FAILED invoice is
// retried under the same idempotency key. A capture the gateway reports as
// still processing leaves the invoice AUTHORIZED for the webhook to settle.
func (s *PaymentService) Capture(ctx context.Context, rideID string) (*domain.Invoice, error) {
	invoice, err := s.invoices.GetByRideID(ctx, rideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoHold
		}
		return nil, err
	}

	if invoice.Status == domain.InvoiceStatusPaid {
		return invoice, nil
	}
	if invoice.HoldRef == "" {
		return nil, ErrNoHold
	}
	if invoice.Status.Terminal() {
		return invoice, fmt.Errorf("%w: invoice is %s", ErrInvalidStateTransition, invoice.Status)
	}

	result, err := s.gateway.Capture(ctx, invoice.HoldRef, captureKeyPrefix+rideID)
	switch {
	case err == nil && result.Status == domain.GatewayStatusPending:
		s.log.Info("payment_capture_pending",
			"action", "capture",
			"ride_id", rideID,
			"hold_ref", invoice.HoldRef,
		)
		return invoice, nil
	case err != nil || result.Status != domain.GatewayStatusSettled:
		s.log.Error("payment_capture_failed",
			"action", "capture",
			"ride_id", rideID,
			"hold_ref", invoice.HoldRef,
			"status", result.Status,
			"error", err,
		)
		if markErr := invoice.MarkFailed(); markErr != nil {
			return invoice, markErr
		}
	default:
		if markErr := invoice.MarkPaid(time.Now().UTC()); markErr != nil {
			return invoice, markErr
		}
		s.log.Info("payment_captured",
			"action", "capture",
			"ride_id", rideID,
			"amount", invoice.Amount,
		)
	}

	if err := s.invoices.Save(ctx, invoice); err != nil {
		return invoice, err
	}
	return invoice, nil
}

// Cancel releases the ride's hold. Best effort: every failure is logged. A
// FAILED invoice still holds funds on the card and is released too.
func (s *PaymentService) Cancel(ctx context.Context, rideID string) {
	invoice, err := s.invoices.GetByRideID(ctx, rideID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Error("payment_cancel_lookup_failed",
				"action", "cancel_hold",
				"ride_id", rideID,
				"error", err,
			)
		}
		return
	}

	if invoice.HoldRef == "" || invoice.Status == domain.InvoiceStatusPaid || invoice.Status.Terminal() {
		s.log.Debug("payment_cancel_skipped",
			"action", "cancel_hold",
			"ride_id", rideID,
			"status", invoice.Status,
		)
		return
	}

	result, err := s.gateway.Cancel(ctx, invoice.HoldRef, cancelKeyPrefix+rideID)
	if err != nil {
		s.log.Error("payment_cancel_failed",
			"action", "cancel_hold",
			"ride_id", rideID,
			"hold_ref", invoice.HoldRef,
			"error", err,
		)
		return
	}
	if result.Status != domain.GatewayStatusCancelled {
		s.log.Warn("payment_cancel_unexpected_status",
			"action", "cancel_hold",
			"ride_id", rideID,
			"status", result.Status,
		)
		return
	}

	if err := invoice.MarkCancelled(); err != nil {
		return
	}
	if err := s.invoices.Save(ctx, invoice); err != nil {
		s.log.Error("payment_cancel_save_failed",
			"action", "cancel_hold",
			"ride_id", rideID,
			"error", err,
		)
	}
}

// ReleaseHold cancels a hold that has no invoice yet.
func (s *PaymentService) ReleaseHold(ctx context.Context, rideID, holdRef string) {
	if holdRef == "" {
		return
	}
	if _, err := s.gateway.Cancel(ctx, holdRef, cancelKeyPrefix+rideID); err != nil {
		s.log.Error("payment_release_failed",
			"action", "release_hold",
			"ride_id", rideID,
			"hold_ref", holdRef,
			"error", err,
		)
	}
}

// HandleWebhook verifies and applies a gateway event exactly once. The event
// id is recorded only after the invoice change is stored.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	processed, err := s.invoices.IsEventProcessed(ctx, event.ID)
	if err != nil {
		return err
	}
	if processed {
		s.log.Info("webhook_duplicate",
			"action", "webhook",
			"event_id", event.ID,
		)
		return nil
	}

	if err := s.applyEvent(ctx, event); err != nil {
		return err
	}

	return s.invoices.MarkEventProcessed(ctx, event.ID, string(event.Type))
}

func (s *PaymentService) applyEvent(ctx context.Context, event *domain.GatewayEvent) error {
	var mark func(*domain.Invoice) error
	switch event.Type {
	case domain.GatewayEventPaymentSucceeded:
		mark = func(i *domain.Invoice) error { return i.MarkPaid(time.Now().UTC()) }
	case domain.GatewayEventPaymentFailed:
		mark = (*domain.Invoice).MarkFailed
	case domain.GatewayEventPaymentCancelled:
		mark = (*domain.Invoice).MarkCancelled
	case domain.GatewayEventChargeRefunded:
		mark = (*domain.Invoice).MarkRefunded
	default:
		s.log.Info("webhook_ignored",
			"action", "webhook",
			"event_id", event.ID,
			"type", event.Type,
		)
		return nil
	}

	invoice, err := s.invoices.GetByHoldRef(ctx, event.HoldRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("webhook_unknown_hold",
				"action", "webhook",
				"event_id", event.ID,
				"hold_ref", event.HoldRef,
			)
			return nil
		}
		return err
	}

	before := invoice.Status
	if err := mark(invoice); err != nil {
		s.log.Warn("webhook_transition_rejected",
			"action", "webhook",
			"event_id", event.ID,
			"ride_id", invoice.RideID,
			"from", before,
			"type", event.Type,
		)
		return nil
	}
	if invoice.Status == before {
		return nil
	}

	if err := s.invoices.Save(ctx, invoice); err != nil {
		return err
	}

	s.log.Info("webhook_applied",
		"action", "webhook",
		"event_id", event.ID,
		"ride_id", invoice.RideID,
		"from", before,
		"to", invoice.Status,
	)
	return nil
}

// ListInvoices returns a payer's invoices.
func (s *PaymentService) ListInvoices(ctx context.Context, payerID string) ([]*domain.Invoice, error) {
	if payerID == "" {
		return nil, ErrInvalidUserID
	}
	return s.invoices.ListByPayer(ctx, payerID)
}

// AddPaymentMethod creates the rider's gateway customer if needed, attaches
// the method and makes it the default instrument. It returns the saved card.
func (s *PaymentService) AddPaymentMethod(ctx context.Context, riderID, methodRef string) (*domain.CardSummary, error) {
	if methodRef == "" {
		return nil, ErrInvalidPaymentMethod
	}

	account, err := s.rider(ctx, riderID)
	if err != nil {
		return nil, err
	}

	customer, err := s.gateway.EnsureCustomer(ctx, account.ID, account.Email, account.Rider.PaymentCustomer)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.AttachPaymentMethod(ctx, customer, methodRef); err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateRiderPayment(ctx, account.ID, customer, methodRef); err != nil {
		return nil, err
	}

	s.log.Info("payment_method_added",
		"action", "add_payment_method",
		"rider_id", riderID,
	)
	return s.gateway.GetPaymentMethod(ctx, methodRef)
}

// GetPaymentMethod returns the rider's default card, or nil when none is
// saved.
func (s *PaymentService) GetPaymentMethod(ctx context.Context, riderID string) (*domain.CardSummary, error) {
	account, err := s.rider(ctx, riderID)
	if err != nil {
		return nil, err
	}
	if account.Rider.PaymentMethodRef == "" {
		return nil, nil
	}
	return s.gateway.GetPaymentMethod(ctx, account.Rider.PaymentMethodRef)
}

// RemovePaymentMethod detaches the rider's default instrument. The gateway
// customer is kept.
func (s *PaymentService) RemovePaymentMethod(ctx context.Context, riderID string) error {
	account, err := s.rider(ctx, riderID)
	if err != nil {
		return err
	}
	if account.Rider.PaymentMethodRef == "" {
		return nil
	}

	if err := s.gateway.DetachPaymentMethod(ctx, account.Rider.PaymentMethodRef); err != nil {
		return err
	}
	return s.accounts.UpdateRiderPayment(ctx, account.ID, account.Rider.PaymentCustomer, "")
}

func (s *PaymentService) rider(ctx context.Context, riderID string) (*domain.Account, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}
	account, err := s.accounts.GetByID(ctx, riderID)
	if err != nil {
		return nil, err
	}
	switch account.Role {
	case domain.RoleRider:
		if account.Rider == nil {
			account.Rider = &domain.RiderProfile{}
		}
		return account, nil
	default:
		return nil, ErrNotRider
	}
}
