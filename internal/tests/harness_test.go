package tests

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/logger"
	"github.com/StefanPetk0vic/Locus/internal/service"
)

const (
	testRider   = "rider-1"
	testTimeout = 20 * time.Millisecond
)

var testPickup = domain.Coordinate{Lat: 44.8125, Lng: 20.4612}

// destinationKmNorth returns a point km kilometers due north of testPickup.
func destinationKmNorth(km float64) domain.Coordinate {
	return domain.Coordinate{
		Lat: testPickup.Lat + (km/6371.0)*(180/math.Pi),
		Lng: testPickup.Lng,
	}
}

type harness struct {
	rides     *MockRideRepository
	invoices  *MockInvoiceRepository
	tx        *MockTransactor
	accounts  *MockAccountRepository
	gateway   *MockGateway
	notifier  *MockNotifier
	publisher *MockPublisher
	locations *MockLocationStore
	batches   *MockBatchStore
	throttle  *MockThrottleStore

	dispatch *service.DispatchService
	payments *service.PaymentService
	rideSvc  *service.RideService
	location *service.LocationService
}

type harnessOption func(*service.DispatchConfig, *service.PricingPolicy)

func withCascadeTimeout(d time.Duration) harnessOption {
	return func(c *service.DispatchConfig, _ *service.PricingPolicy) { c.CascadeTimeout = d }
}

func withPriceOverride() harnessOption {
	return func(_ *service.DispatchConfig, p *service.PricingPolicy) { p.AllowOverride = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := service.DefaultDispatchConfig()
	cfg.CascadeTimeout = testTimeout
	pricing := service.PricingPolicy{Fares: domain.DefaultFareModel()}
	for _, opt := range opts {
		opt(&cfg, &pricing)
	}

	log := logger.Discard()
	h := &harness{
		rides:     NewMockRideRepository(),
		invoices:  NewMockInvoiceRepository(),
		accounts:  NewMockAccountRepository(),
		gateway:   NewMockGateway(),
		notifier:  NewMockNotifier(),
		publisher: NewMockPublisher(),
		locations: NewMockLocationStore(),
		batches:   NewMockBatchStore(),
		throttle:  NewMockThrottleStore(),
	}
	h.tx = NewMockTransactor(h.rides, h.invoices)
	h.accounts.AddRider(testRider, "cus_1", "pm_card_visa")

	notifications := service.NewNotificationService(h.notifier, log)
	h.dispatch = service.NewDispatchService(h.locations, h.batches, h.rides, notifications, nil, log, cfg)
	h.payments = service.NewPaymentService(h.invoices, h.accounts, h.gateway, "eur", log)
	h.rideSvc = service.NewRideService(h.rides, h.tx, h.payments, h.dispatch, notifications, h.publisher, pricing, log)
	h.location = service.NewLocationService(h.locations, h.throttle, h.rides, notifications, log)

	t.Cleanup(h.dispatch.Close)
	return h
}

// request creates a ride 5 km long for testRider.
func (h *harness) request(t *testing.T) *domain.Ride {
	t.Helper()
	ride, err := h.rideSvc.RequestRide(context.Background(), service.RequestRideInput{
		RiderID:     testRider,
		Pickup:      testPickup,
		Destination: destinationKmNorth(5),
	})
	if err != nil {
		t.Fatalf("request ride: %v", err)
	}
	return ride
}

// inProgress drives a fresh ride to IN_PROGRESS with driverID.
func (h *harness) inProgress(t *testing.T, driverID string) *domain.Ride {
	t.Helper()
	ctx := context.Background()
	ride := h.request(t)
	if _, err := h.rideSvc.AcceptRide(ctx, ride.ID, driverID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	started, err := h.rideSvc.StartRide(ctx, ride.ID, driverID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return started
}

func driverIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "driver-" + string(rune('a'+i))
	}
	return ids
}

// waitFor polls cond until it holds or a deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
