package tests

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/repository"
	"github.com/StefanPetk0vic/Locus/internal/service"
)

func TestLifecycle_HappyPath(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.notifier.Connect(testRider)
	ctx := context.Background()

	ride := h.request(t)

	accepted, err := h.rideSvc.AcceptRide(ctx, ride.ID, "driver-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.RideStatusAccepted || accepted.DriverID != "driver-1" {
		t.Fatalf("unexpected accepted ride %+v", accepted)
	}

	started, err := h.rideSvc.StartRide(ctx, ride.ID, "driver-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.RideStatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", started.Status)
	}

	completed, payment, err := h.rideSvc.CompleteRide(ctx, ride.ID, "driver-1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.RideStatusCompleted || completed.DriverID != "driver-1" {
		t.Fatalf("unexpected completed ride %+v", completed)
	}
	if payment != domain.InvoiceStatusPaid {
		t.Errorf("expected PAID, got %s", payment)
	}

	invoice := h.invoices.GetInvoice(ride.ID)
	if invoice.Status != domain.InvoiceStatusPaid || invoice.PaidAt == nil {
		t.Errorf("expected paid invoice with timestamp, got %+v", invoice)
	}

	wantTopics := []string{
		domain.TopicRideRequested,
		domain.TopicRideAccepted,
		domain.TopicRideStarted,
		domain.TopicRideCompleted,
	}
	topics := h.publisher.Topics()
	if len(topics) != len(wantTopics) {
		t.Fatalf("expected topics %v, got %v", wantTopics, topics)
	}
	for i := range wantTopics {
		if topics[i] != wantTopics[i] {
			t.Errorf("topic %d: expected %s, got %s", i, wantTopics[i], topics[i])
		}
	}

	last, _ := h.publisher.Last(domain.TopicRideCompleted)
	if event := last.Payload.(domain.RideEvent); event.PaymentStatus != domain.InvoiceStatusPaid {
		t.Errorf("ride.completed should carry PAID, got %s", event.PaymentStatus)
	}

	for _, event := range []string{domain.TopicRideAccepted, domain.TopicRideStarted, domain.TopicRideCompleted} {
		if got := h.notifier.Recipients(event); len(got) != 1 || got[0] != testRider {
			t.Errorf("expected rider to be notified of %s, got %v", event, got)
		}
	}

	keys := h.gateway.IdempotencyKeys()
	if len(keys) != 2 || keys[1] != "ride-capture-"+ride.ID {
		t.Errorf("expected capture with ride-capture key, got %v", keys)
	}
}

func TestLifecycle_DriverInvariantHoldsAtEveryStep(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	check := func(id string) {
		t.Helper()
		ride := h.rides.GetRide(id)
		if !ride.Consistent() {
			t.Fatalf("driver/status invariant violated: status=%s driver=%q", ride.Status, ride.DriverID)
		}
	}

	ride := h.request(t)
	check(ride.ID)
	if _, err := h.rideSvc.AcceptRide(ctx, ride.ID, "driver-1"); err != nil {
		t.Fatal(err)
	}
	check(ride.ID)
	if _, err := h.rideSvc.StartRide(ctx, ride.ID, "driver-1"); err != nil {
		t.Fatal(err)
	}
	check(ride.ID)
	if _, _, err := h.rideSvc.CompleteRide(ctx, ride.ID, "driver-1"); err != nil {
		t.Fatal(err)
	}
	check(ride.ID)

	other := h.request(t)
	if _, err := h.rideSvc.AcceptRide(ctx, other.ID, "driver-2"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.rideSvc.CancelRide(ctx, other.ID, testRider); err != nil {
		t.Fatal(err)
	}
	check(other.ID)
}

func TestCompleteRide_OnlyFromInProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	setups := map[string]func(t *testing.T, h *harness) *domain.Ride{
		"requested": func(t *testing.T, h *harness) *domain.Ride { return h.request(t) },
		"accepted": func(t *testing.T, h *harness) *domain.Ride {
			ride := h.request(t)
			accepted, _ := h.rideSvc.AcceptRide(ctx, ride.ID, "driver-1")
			return accepted
		},
		"cancelled": func(t *testing.T, h *harness) *domain.Ride {
			ride := h.request(t)
			cancelled, _ := h.rideSvc.CancelRide(ctx, ride.ID, testRider)
			return cancelled
		},
		"completed": func(t *testing.T, h *harness) *domain.Ride {
			ride := h.inProgress(t, "driver-1")
			completed, _, _ := h.rideSvc.CompleteRide(ctx, ride.ID, "driver-1")
			return completed
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			ride := setup(t, h)
			before := h.rides.GetRide(ride.ID)
			captures := h.gateway.CaptureCallCount

			_, _, err := h.rideSvc.CompleteRide(ctx, ride.ID, "driver-1")
			if !errors.Is(err, service.ErrInvalidStateTransition) {
				t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
			}

			after := h.rides.GetRide(ride.ID)
			if after.Status != before.Status || after.DriverID != before.DriverID {
				t.Errorf("ride changed: before %+v after %+v", before, after)
			}
			if h.gateway.CaptureCallCount != captures {
				t.Error("no capture may happen on a rejected completion")
			}
		})
	}
}

func TestCompleteRide_WrongDriverIsUnauthorized(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ride := h.inProgress(t, "driver-1")

	_, _, err := h.rideSvc.CompleteRide(context.Background(), ride.ID, "driver-2")
	if !errors.Is(err, service.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if h.rides.GetRide(ride.ID).Status != domain.RideStatusInProgress {
		t.Error("ride must stay IN_PROGRESS")
	}
}

func TestCompleteRide_CaptureFailureStillCompletes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ride := h.inProgress(t, "driver-1")
	h.gateway.CaptureError = ErrMockGateway

	completed, payment, err := h.rideSvc.CompleteRide(context.Background(), ride.ID, "driver-1")
	if err != nil {
		t.Fatalf("capture failure must not fail completion: %v", err)
	}
	if completed.Status != domain.RideStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", completed.Status)
	}
	if payment != domain.InvoiceStatusFailed {
		t.Errorf("expected FAILED payment, got %s", payment)
	}
	if h.invoices.GetInvoice(ride.ID).Status != domain.InvoiceStatusFailed {
		t.Error("invoice must be stored as FAILED")
	}

	last, ok := h.publisher.Last(domain.TopicRideCompleted)
	if !ok || last.Payload.(domain.RideEvent).PaymentStatus != domain.InvoiceStatusFailed {
		t.Error("ride.completed must carry the FAILED payment status")
	}
}

func TestStartRide_Guards(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	ride := h.request(t)

	if _, err := h.rideSvc.StartRide(ctx, ride.ID, "driver-1"); !errors.Is(err, service.ErrInvalidStateTransition) {
		t.Errorf("starting a REQUESTED ride: expected ErrInvalidStateTransition, got %v", err)
	}

	if _, err := h.rideSvc.AcceptRide(ctx, ride.ID, "driver-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.rideSvc.StartRide(ctx, ride.ID, "driver-2"); !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("starting as another driver: expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.rideSvc.StartRide(ctx, "missing", "driver-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("starting a missing ride: expected ErrNotFound, got %v", err)
	}
}

func TestAcceptRide_Guards(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.rideSvc.AcceptRide(ctx, "missing", "driver-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	ride := h.request(t)
	if _, err := h.rideSvc.AcceptRide(ctx, ride.ID, ""); !errors.Is(err, service.ErrInvalidDriverID) {
		t.Errorf("expected ErrInvalidDriverID, got %v", err)
	}
	if _, err := h.rideSvc.AcceptRide(ctx, ride.ID, "driver-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.rideSvc.AcceptRide(ctx, ride.ID, "driver-2"); !errors.Is(err, service.ErrInvalidStateTransition) {
		t.Errorf("second accept: expected ErrInvalidStateTransition, got %v", err)
	}
	if got := h.rides.GetRide(ride.ID).DriverID; got != "driver-1" {
		t.Errorf("driver must remain driver-1, got %s", got)
	}
}

func TestAcceptRide_ConcurrentExactlyOneWins(t *testing.T) {
	t.Parallel()

	for round := 0; round < 20; round++ {
		h := newHarness(t)
		ride := h.request(t)

		drivers := []string{"driver-1", "driver-2"}
		errs := make([]error, len(drivers))
		start := make(chan struct{})
		var wg sync.WaitGroup

		for i, driverID := range drivers {
			wg.Add(1)
			go func(i int, driverID string) {
				defer wg.Done()
				<-start
				_, errs[i] = h.rideSvc.AcceptRide(context.Background(), ride.ID, driverID)
			}(i, driverID)
		}
		close(start)
		wg.Wait()

		winners := 0
		winner := ""
		for i, err := range errs {
			switch {
			case err == nil:
				winners++
				winner = drivers[i]
			case !errors.Is(err, service.ErrInvalidStateTransition):
				t.Fatalf("loser must get ErrInvalidStateTransition, got %v", err)
			}
		}
		if winners != 1 {
			t.Fatalf("expected exactly one winner, got %d", winners)
		}

		stored := h.rides.GetRide(ride.ID)
		if stored.Status != domain.RideStatusAccepted || stored.DriverID != winner {
			t.Fatalf("stored ride does not match winner %s: %+v", winner, stored)
		}
	}
}

func TestCancelRide_InProgressFailsWithoutGatewayCall(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ride := h.inProgress(t, "driver-1")
	callsBefore := h.gateway.TotalCalls()

	for _, caller := range []string{testRider, "driver-1"} {
		_, err := h.rideSvc.CancelRide(context.Background(), ride.ID, caller)
		if !errors.Is(err, service.ErrInvalidStateTransition) {
			t.Errorf("cancel by %s: expected ErrInvalidStateTransition, got %v", caller, err)
		}
	}

	if h.rides.GetRide(ride.ID).Status != domain.RideStatusInProgress {
		t.Error("ride status must be unchanged")
	}
	if h.gateway.TotalCalls() != callsBefore {
		t.Error("no gateway call may happen")
	}
}

func TestCancelRide_TerminalFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	ride := h.request(t)

	if _, err := h.rideSvc.CancelRide(ctx, ride.ID, testRider); err != nil {
		t.Fatal(err)
	}
	if _, err := h.rideSvc.CancelRide(ctx, ride.ID, testRider); !errors.Is(err, service.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
	if h.gateway.CancelCallCount != 1 {
		t.Errorf("expected one cancel call, got %d", h.gateway.CancelCallCount)
	}
}

func TestCancelRide_NonParticipantUnauthorized(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ride := h.request(t)

	_, err := h.rideSvc.CancelRide(context.Background(), ride.ID, "stranger")
	if !errors.Is(err, service.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if h.rides.GetRide(ride.ID).Status != domain.RideStatusRequested {
		t.Error("ride must stay REQUESTED")
	}
}

func TestCancelRide_AcceptedByRiderReleasesHoldAndNotifiesDriver(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.notifier.Connect("driver-1")
	ctx := context.Background()

	ride := h.request(t)
	if _, err := h.rideSvc.AcceptRide(ctx, ride.ID, "driver-1"); err != nil {
		t.Fatal(err)
	}

	cancelled, err := h.rideSvc.CancelRide(ctx, ride.ID, testRider)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.RideStatusCancelled || cancelled.DriverID != "" {
		t.Errorf("expected cancelled ride without driver, got %+v", cancelled)
	}

	if h.invoices.GetInvoice(ride.ID).Status != domain.InvoiceStatusCancelled {
		t.Error("invoice must be CANCELLED")
	}
	keys := h.gateway.IdempotencyKeys()
	if keys[len(keys)-1] != "ride-cancel-"+ride.ID {
		t.Errorf("expected ride-cancel key, got %v", keys)
	}

	msgs := h.notifier.Sent(domain.TopicRideCancelled)
	if len(msgs) != 1 || msgs[0].UserID != "driver-1" {
		t.Fatalf("expected the driver to be told, got %+v", msgs)
	}
	if event := msgs[0].Payload.(domain.RideEvent); event.CancelledBy != testRider {
		t.Errorf("expected cancelled_by rider, got %s", event.CancelledBy)
	}
}

func TestCancelRide_GatewayFailureStillCancels(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ride := h.request(t)
	h.gateway.CancelError = ErrMockGateway

	cancelled, err := h.rideSvc.CancelRide(context.Background(), ride.ID, testRider)
	if err != nil {
		t.Fatalf("cancellation must succeed despite gateway failure: %v", err)
	}
	if cancelled.Status != domain.RideStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}
	if h.invoices.GetInvoice(ride.ID).Status != domain.InvoiceStatusAuthorized {
		t.Error("invoice should remain AUTHORIZED when the gateway cancel failed")
	}
}

func TestListCompleted_ByRole(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	ride := h.inProgress(t, "driver-1")
	if _, _, err := h.rideSvc.CompleteRide(ctx, ride.ID, "driver-1"); err != nil {
		t.Fatal(err)
	}
	h.request(t)

	asRider, err := h.rideSvc.ListCompleted(ctx, domain.RoleRider, testRider)
	if err != nil || len(asRider) != 1 {
		t.Errorf("expected one completed ride for rider, got %d (%v)", len(asRider), err)
	}
	asDriver, _ := h.rideSvc.ListCompleted(ctx, domain.RoleDriver, "driver-1")
	if len(asDriver) != 1 {
		t.Errorf("expected one completed ride for driver, got %d", len(asDriver))
	}
	if _, err := h.rideSvc.ListCompleted(ctx, "ADMIN", "x"); !errors.Is(err, service.ErrInvalidRole) {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestRebroadcast(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	ride := h.request(t)

	if _, err := h.rideSvc.Rebroadcast(ctx, ride.ID, "someone-else"); !errors.Is(err, service.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if _, err := h.rideSvc.Rebroadcast(ctx, ride.ID, testRider); err != nil {
		t.Fatalf("rebroadcast: %v", err)
	}
	msgs := h.notifier.Sent(domain.TopicRideRequested)
	if len(msgs) != 1 || msgs[0].Room != service.RoomDrivers {
		t.Errorf("expected one broadcast to the drivers room, got %+v", msgs)
	}

	if _, err := h.rideSvc.AcceptRide(ctx, ride.ID, "driver-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.rideSvc.Rebroadcast(ctx, ride.ID, testRider); !errors.Is(err, service.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
}
