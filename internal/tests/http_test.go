package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/StefanPetk0vic/Locus/internal/app"
	"github.com/StefanPetk0vic/Locus/internal/auth"
	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/handler"
	"github.com/StefanPetk0vic/Locus/internal/logger"
	"github.com/StefanPetk0vic/Locus/internal/notify"
	"github.com/StefanPetk0vic/Locus/internal/service"
)

type apiEnv struct {
	*harness
	router *gin.Engine
	tokens *auth.Manager
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := newHarness(t, withCascadeTimeout(time.Hour))
	tokens := auth.NewManager("test-secret", time.Hour)
	log := logger.Discard()

	hub := notify.NewHub(tokens, nil, log)
	t.Cleanup(hub.Close)

	driverHandler := handler.NewDriverHandler(h.location)
	hub.SetMessageHandler(driverHandler.HandleSocketMessage)

	router := app.NewRouter(app.RouterDeps{
		RideHandler:    handler.NewRideHandler(h.rideSvc),
		DriverHandler:  driverHandler,
		PaymentHandler: handler.NewPaymentHandler(h.payments),
		Socket:         hub,
		Tokens:         tokens,
		RedisClient:    client,
		Log:            log,
	})

	return &apiEnv{harness: h, router: router, tokens: tokens}
}

func (e *apiEnv) do(t *testing.T, method, path, userID string, role domain.Role, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := e.tokens.Issue(userID, role)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func rideBody() handler.RequestRideRequest {
	dest := destinationKmNorth(5)
	pickup := testPickup
	return handler.RequestRideRequest{Pickup: &pickup, Destination: &dest}
}

func TestAPI_Health(t *testing.T) {
	env := newAPIEnv(t)
	if w := env.do(t, http.MethodGet, "/health", "", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	env := newAPIEnv(t)
	w := env.do(t, http.MethodPost, "/v1/rides", "", "", rideBody())
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if env.rides.CountRides() != 0 {
		t.Error("no ride should be created")
	}
}

func TestAPI_RideLifecycle(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/v1/rides", testRider, domain.RoleRider, rideBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("request: expected 201, got %d %s", w.Code, w.Body.String())
	}
	ride := decode[handler.RideResponse](t, w)
	if ride.Status != string(domain.RideStatusRequested) || ride.Price != 650 || ride.DriverID != "" {
		t.Fatalf("unexpected ride %+v", ride)
	}

	base := "/v1/rides/" + ride.ID
	if w := env.do(t, http.MethodPost, base+"/accept", "driver-a", domain.RoleDriver, nil); w.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodPost, base+"/accept", "driver-b", domain.RoleDriver, nil); w.Code != http.StatusConflict {
		t.Errorf("second accept: expected 409, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, base+"/start", "driver-b", domain.RoleDriver, nil); w.Code != http.StatusForbidden {
		t.Errorf("start by other driver: expected 403, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, base+"/start", "driver-a", domain.RoleDriver, nil); w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, base+"/complete", "driver-a", domain.RoleDriver, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d %s", w.Code, w.Body.String())
	}
	done := decode[handler.RideResponse](t, w)
	if done.Status != string(domain.RideStatusCompleted) || done.PaymentStatus != string(domain.InvoiceStatusPaid) {
		t.Errorf("unexpected completion %+v", done)
	}

	w = env.do(t, http.MethodGet, "/v1/rides/completed", testRider, domain.RoleRider, nil)
	if list := decode[[]handler.RideResponse](t, w); len(list) != 1 || list[0].ID != ride.ID {
		t.Errorf("completed list: %s", w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/v1/payments/invoices", testRider, domain.RoleRider, nil)
	if invoices := decode[[]handler.InvoiceResponse](t, w); len(invoices) != 1 || invoices[0].Status != string(domain.InvoiceStatusPaid) {
		t.Errorf("invoices: %s", w.Body.String())
	}
}

func TestAPI_RoleGuards(t *testing.T) {
	env := newAPIEnv(t)

	if w := env.do(t, http.MethodPost, "/v1/rides", "driver-a", domain.RoleDriver, rideBody()); w.Code != http.StatusForbidden {
		t.Errorf("driver requesting a ride: expected 403, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/v1/drivers/location", testRider, domain.RoleRider, testPickup); w.Code != http.StatusForbidden {
		t.Errorf("rider posting location: expected 403, got %d", w.Code)
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	env := newAPIEnv(t)
	env.accounts.AddRider("rider-nocard", "", "")

	tests := []struct {
		name   string
		setup  func()
		method string
		path   string
		user   string
		role   domain.Role
		body   any
		code   int
		reason string
	}{
		{
			name: "unknown ride", method: http.MethodGet, path: "/v1/rides/missing",
			user: testRider, role: domain.RoleRider, code: http.StatusNotFound,
		},
		{
			name: "missing pickup", method: http.MethodPost, path: "/v1/rides",
			user: testRider, role: domain.RoleRider, body: map[string]any{"destination": testPickup},
			code: http.StatusBadRequest,
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/v1/rides",
			user: testRider, role: domain.RoleRider, body: "nope", code: http.StatusBadRequest,
		},
		{
			name: "no payment method", method: http.MethodPost, path: "/v1/rides",
			user: "rider-nocard", role: domain.RoleRider, body: rideBody(),
			code: http.StatusPaymentRequired, reason: "no payment method on file",
		},
		{
			name:   "card declined",
			setup:  func() { env.gateway.AuthorizeStatus = domain.GatewayStatusFailed },
			method: http.MethodPost, path: "/v1/rides",
			user: testRider, role: domain.RoleRider, body: rideBody(),
			code: http.StatusPaymentRequired, reason: "card declined",
		},
		{
			name: "gateway down",
			setup: func() {
				env.gateway.AuthorizeStatus = domain.GatewayStatusHeld
				env.gateway.AuthorizeError = fmt.Errorf("%w: timeout", service.ErrGateway)
			},
			method: http.MethodPost, path: "/v1/rides",
			user: testRider, role: domain.RoleRider, body: rideBody(),
			code: http.StatusBadGateway,
		},
		{
			name: "invalid status filter", method: http.MethodGet, path: "/v1/rides?status=FLYING",
			user: "driver-a", role: domain.RoleDriver, code: http.StatusBadRequest,
		},
		{
			name: "invalid coordinates", method: http.MethodPost, path: "/v1/drivers/location",
			user: "driver-a", role: domain.RoleDriver, body: domain.Coordinate{Lat: 120, Lng: 0},
			code: http.StatusBadRequest,
		},
		{
			name: "webhook without signature", method: http.MethodPost, path: "/v1/payments/webhook",
			body: map[string]string{"type": "payment_intent.succeeded"}, code: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			w := env.do(t, tt.method, tt.path, tt.user, tt.role, tt.body)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d %s", tt.code, w.Code, w.Body.String())
			}
			if tt.reason != "" {
				if got := decode[handler.ErrorResponse](t, w); got.Reason != tt.reason {
					t.Errorf("reason: expected %q, got %q", tt.reason, got.Reason)
				}
			}
		})
	}

	if env.rides.CountRides() != 0 {
		t.Errorf("failed requests must not create rides, got %d", env.rides.CountRides())
	}
}

func TestAPI_IdempotentRideRequest(t *testing.T) {
	env := newAPIEnv(t)

	first := env.do(t, http.MethodPost, "/v1/rides", testRider, domain.RoleRider, rideBody(), "Idempotency-Key", "req-1")
	second := env.do(t, http.MethodPost, "/v1/rides", testRider, domain.RoleRider, rideBody(), "Idempotency-Key", "req-1")

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("second response should be a replay")
	}
	if decode[handler.RideResponse](t, first).ID != decode[handler.RideResponse](t, second).ID {
		t.Error("replay must return the same ride")
	}
	if env.rides.CountRides() != 1 {
		t.Errorf("expected one ride, got %d", env.rides.CountRides())
	}
}

func TestAPI_DriverLocationAndOffline(t *testing.T) {
	env := newAPIEnv(t)

	if w := env.do(t, http.MethodPost, "/v1/drivers/location", "driver-a", domain.RoleDriver, testPickup); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d %s", w.Code, w.Body.String())
	}
	if _, ok := env.locations.Position("driver-a"); !ok {
		t.Fatal("driver should be indexed")
	}

	if w := env.do(t, http.MethodPost, "/v1/drivers/offline", "driver-a", domain.RoleDriver, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if _, ok := env.locations.Position("driver-a"); ok {
		t.Error("offline driver should leave the index")
	}
}

func TestAPI_PaymentMethods(t *testing.T) {
	env := newAPIEnv(t)
	env.accounts.AddRider("rider-new", "", "")

	w := env.do(t, http.MethodGet, "/v1/payments/methods", "rider-new", domain.RoleRider, nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "null" {
		t.Fatalf("get without card: expected 200 null, got %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/v1/payments/methods", "rider-new", domain.RoleRider,
		handler.AddPaymentMethodRequest{PaymentMethod: "pm_card_visa"})
	if w.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d %s", w.Code, w.Body.String())
	}
	if added := decode[domain.CardSummary](t, w); added.ID != "pm_card_visa" || added.Last4 != "4242" {
		t.Errorf("add: unexpected card %+v", added)
	}

	w = env.do(t, http.MethodGet, "/v1/payments/methods", "rider-new", domain.RoleRider, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d %s", w.Code, w.Body.String())
	}
	if card := decode[domain.CardSummary](t, w); card.Brand != "visa" || card.ExpYear != 2030 {
		t.Errorf("get: unexpected card %+v", card)
	}
	if w := env.do(t, http.MethodGet, "/v1/payments/methods", "driver-a", domain.RoleDriver, nil); w.Code != http.StatusForbidden {
		t.Errorf("driver reading a card: expected 403, got %d", w.Code)
	}

	if w := env.do(t, http.MethodDelete, "/v1/payments/methods", "rider-new", domain.RoleRider, nil); w.Code != http.StatusNoContent {
		t.Fatalf("remove: expected 204, got %d %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodDelete, "/v1/payments/methods", "driver-a", domain.RoleDriver, nil); w.Code != http.StatusForbidden {
		t.Errorf("driver removing a card: expected 403, got %d", w.Code)
	}
}

func TestDriverHandler_SocketMessage(t *testing.T) {
	h := newHarness(t)
	dh := handler.NewDriverHandler(h.location)
	ctx := context.Background()

	data, _ := json.Marshal(testPickup)
	if err := dh.HandleSocketMessage(ctx, "driver-a", domain.RoleDriver, handler.EventLocationUpdate, data); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.locations.Position("driver-a"); !ok {
		t.Error("socket update should index the driver")
	}

	if err := dh.HandleSocketMessage(ctx, testRider, domain.RoleRider, handler.EventLocationUpdate, data); err != service.ErrUnauthorized {
		t.Errorf("rider update: expected ErrUnauthorized, got %v", err)
	}
	if err := dh.HandleSocketMessage(ctx, "driver-a", domain.RoleDriver, handler.EventLocationUpdate, []byte("{")); err == nil {
		t.Error("malformed payload should fail")
	}
	if err := dh.HandleSocketMessage(ctx, "driver-a", domain.RoleDriver, "chat", nil); err != nil {
		t.Errorf("unknown events are ignored, got %v", err)
	}
}
