package tests

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/redis"
	"github.com/StefanPetk0vic/Locus/internal/repository"
	"github.com/StefanPetk0vic/Locus/internal/service"
)

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is an in-memory RideRepository. Transition holds the
// write lock for the whole compare-and-set, like the conditional UPDATE.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride

	// Counters for verification
	CreateCallCount     int32
	TransitionCallCount int32

	// Error injection
	CreateError     error
	TransitionError error
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{
		rides: make(map[string]*domain.Ride),
	}
}

// AddRide adds a ride to the mock repository.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *ride
	m.rides[ride.ID] = &copy
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *ride
	m.rides[ride.ID] = &copy
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *ride
	return &copy, nil
}

func (m *MockRideRepository) GetByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error) {
	return m.filter(func(r *domain.Ride) bool { return r.Status == status }), nil
}

func (m *MockRideRepository) GetActiveForDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	active := m.filter(func(r *domain.Ride) bool {
		return r.DriverID == driverID &&
			(r.Status == domain.RideStatusAccepted || r.Status == domain.RideStatusInProgress)
	})
	if len(active) == 0 {
		return nil, repository.ErrNotFound
	}
	return active[0], nil
}

func (m *MockRideRepository) GetCompletedFor(ctx context.Context, role domain.Role, userID string) ([]*domain.Ride, error) {
	return m.filter(func(r *domain.Ride) bool {
		if r.Status != domain.RideStatusCompleted {
			return false
		}
		switch role {
		case domain.RoleDriver:
			return r.DriverID == userID
		case domain.RoleRider:
			return r.RiderID == userID
		}
		return false
	}), nil
}

func (m *MockRideRepository) Transition(ctx context.Context, update repository.StatusUpdate) (*domain.Ride, error) {
	atomic.AddInt32(&m.TransitionCallCount, 1)
	if m.TransitionError != nil {
		return nil, m.TransitionError
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ride, ok := m.rides[update.RideID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	matched := false
	for _, from := range update.From {
		if ride.Status == from {
			matched = true
			break
		}
	}
	if !matched {
		return nil, repository.ErrStatusConflict
	}

	if err := ride.Apply(update.To, update.DriverID); err != nil {
		return nil, err
	}
	copy := *ride
	return &copy, nil
}

// GetRide returns the stored ride (for test assertions).
func (m *MockRideRepository) GetRide(id string) *domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil
	}
	copy := *ride
	return &copy
}

// CountRides returns the number of rides.
func (m *MockRideRepository) CountRides() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rides)
}

func (m *MockRideRepository) remove(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.rides, id)
	}
}

func (m *MockRideRepository) filter(keep func(*domain.Ride) bool) []*domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Ride
	for _, r := range m.rides {
		if keep(r) {
			copy := *r
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

// ──────────────────────────────────────────────
// MOCK INVOICE REPOSITORY
// ──────────────────────────────────────────────

// MockInvoiceRepository is an in-memory InvoiceRepository.
type MockInvoiceRepository struct {
	mu       sync.RWMutex
	invoices map[string]*domain.Invoice // by ride id
	ledger   map[string]string          // event id -> type

	// Counters
	SaveCallCount int32

	// Error injection
	SaveError error
}

// NewMockInvoiceRepository creates a new mock invoice repository.
func NewMockInvoiceRepository() *MockInvoiceRepository {
	return &MockInvoiceRepository{
		invoices: make(map[string]*domain.Invoice),
		ledger:   make(map[string]string),
	}
}

// AddInvoice adds an invoice to the mock repository.
func (m *MockInvoiceRepository) AddInvoice(invoice *domain.Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *invoice
	m.invoices[invoice.RideID] = &copy
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *domain.Invoice) error {
	atomic.AddInt32(&m.SaveCallCount, 1)
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *invoice
	m.invoices[invoice.RideID] = &copy
	return nil
}

func (m *MockInvoiceRepository) GetByRideID(ctx context.Context, rideID string) (*domain.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	invoice, ok := m.invoices[rideID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *invoice
	return &copy, nil
}

func (m *MockInvoiceRepository) GetByHoldRef(ctx context.Context, holdRef string) (*domain.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, invoice := range m.invoices {
		if invoice.HoldRef == holdRef {
			copy := *invoice
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockInvoiceRepository) ListByPayer(ctx context.Context, payerID string) ([]*domain.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Invoice
	for _, invoice := range m.invoices {
		if invoice.PayerID == payerID {
			copy := *invoice
			result = append(result, &copy)
		}
	}
	return result, nil
}

func (m *MockInvoiceRepository) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ledger[eventID]
	return ok, nil
}

func (m *MockInvoiceRepository) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger[eventID] = eventType
	return nil
}

// GetInvoice returns the invoice of a ride (for assertions).
func (m *MockInvoiceRepository) GetInvoice(rideID string) *domain.Invoice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	invoice, ok := m.invoices[rideID]
	if !ok {
		return nil
	}
	copy := *invoice
	return &copy
}

// LedgerSize returns the number of processed events.
func (m *MockInvoiceRepository) LedgerSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ledger)
}

func (m *MockInvoiceRepository) has(rideID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.invoices[rideID]
	return ok
}

func (m *MockInvoiceRepository) remove(rideIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range rideIDs {
		delete(m.invoices, id)
	}
}

// ──────────────────────────────────────────────
// MOCK TRANSACTOR
// ──────────────────────────────────────────────

// MockTransactor runs work against the mock repositories and undoes the
// rides and invoices it created when the work fails.
type MockTransactor struct {
	rides    *MockRideRepository
	invoices *MockInvoiceRepository

	// Counters
	TxCallCount   int32
	RollbackCount int32
}

// NewMockTransactor creates a transactor over the given mocks.
func NewMockTransactor(rides *MockRideRepository, invoices *MockInvoiceRepository) *MockTransactor {
	return &MockTransactor{rides: rides, invoices: invoices}
}

func (m *MockTransactor) WithinTx(ctx context.Context, fn func(rides repository.RideRepository, invoices repository.InvoiceRepository) error) error {
	atomic.AddInt32(&m.TxCallCount, 1)

	rides := &txRideRepository{MockRideRepository: m.rides}
	invoices := &txInvoiceRepository{MockInvoiceRepository: m.invoices}
	if err := fn(rides, invoices); err != nil {
		atomic.AddInt32(&m.RollbackCount, 1)
		m.rides.remove(rides.created...)
		m.invoices.remove(invoices.created...)
		return err
	}
	return nil
}

type txRideRepository struct {
	*MockRideRepository
	created []string
}

func (r *txRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	if err := r.MockRideRepository.Create(ctx, ride); err != nil {
		return err
	}
	r.created = append(r.created, ride.ID)
	return nil
}

type txInvoiceRepository struct {
	*MockInvoiceRepository
	created []string
}

func (r *txInvoiceRepository) Save(ctx context.Context, invoice *domain.Invoice) error {
	existed := r.MockInvoiceRepository.has(invoice.RideID)
	if err := r.MockInvoiceRepository.Save(ctx, invoice); err != nil {
		return err
	}
	if !existed {
		r.created = append(r.created, invoice.RideID)
	}
	return nil
}

// ──────────────────────────────────────────────
// MOCK ACCOUNT REPOSITORY
// ──────────────────────────────────────────────

// MockAccountRepository is an in-memory AccountRepository.
type MockAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

// NewMockAccountRepository creates a new mock account repository.
func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[string]*domain.Account),
	}
}

// AddRider adds a rider; empty refs leave the rider without an instrument.
func (m *MockAccountRepository) AddRider(id, customerRef, methodRef string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id] = &domain.Account{
		ID:    id,
		Email: id + "@example.com",
		Role:  domain.RoleRider,
		Rider: &domain.RiderProfile{
			PaymentCustomer:  customerRef,
			PaymentMethodRef: methodRef,
		},
	}
}

// AddDriver adds a verified driver.
func (m *MockAccountRepository) AddDriver(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id] = &domain.Account{
		ID:     id,
		Email:  id + "@example.com",
		Role:   domain.RoleDriver,
		Driver: &domain.DriverProfile{LicensePlate: "BG-" + id, Verified: true},
	}
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *account
	if account.Rider != nil {
		rider := *account.Rider
		copy.Rider = &rider
	}
	if account.Driver != nil {
		driver := *account.Driver
		copy.Driver = &driver
	}
	return &copy, nil
}

func (m *MockAccountRepository) UpdateRiderPayment(ctx context.Context, riderID, customerRef, methodRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[riderID]
	if !ok || account.Role != domain.RoleRider {
		return repository.ErrNotFound
	}
	account.Rider.PaymentCustomer = customerRef
	account.Rider.PaymentMethodRef = methodRef
	return nil
}

// ──────────────────────────────────────────────
// MOCK PAYMENT GATEWAY
// ──────────────────────────────────────────────

// ErrMockGateway is returned by the mock gateway when failure is injected.
var ErrMockGateway = errors.New("mock gateway unavailable")

// MockGateway records calls and answers with configurable statuses.
type MockGateway struct {
	mu   sync.Mutex
	keys []string

	AuthorizeCallCount int32
	CaptureCallCount   int32
	CancelCallCount    int32
	AttachCallCount    int32
	DetachCallCount    int32

	AuthorizeStatus domain.GatewayStatus
	CaptureStatus   domain.GatewayStatus
	AuthorizeError  error
	CaptureError    error
	CancelError     error
	GetMethodError  error

	// Webhook verification result, keyed by signature.
	Events map[string]*domain.GatewayEvent
}

// NewMockGateway creates a gateway that holds, settles and cancels.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		AuthorizeStatus: domain.GatewayStatusHeld,
		CaptureStatus:   domain.GatewayStatusSettled,
		Events:          make(map[string]*domain.GatewayEvent),
	}
}

func (g *MockGateway) Authorize(ctx context.Context, req service.AuthorizeRequest) (domain.GatewayResult, error) {
	atomic.AddInt32(&g.AuthorizeCallCount, 1)
	g.record(req.IdempotencyKey)
	if g.AuthorizeError != nil {
		return domain.GatewayResult{}, g.AuthorizeError
	}
	return domain.GatewayResult{HoldRef: "pi_" + req.RideID, Status: g.AuthorizeStatus}, nil
}

func (g *MockGateway) Capture(ctx context.Context, holdRef, idempotencyKey string) (domain.GatewayResult, error) {
	atomic.AddInt32(&g.CaptureCallCount, 1)
	g.record(idempotencyKey)
	if g.CaptureError != nil {
		return domain.GatewayResult{}, g.CaptureError
	}
	return domain.GatewayResult{HoldRef: holdRef, Status: g.CaptureStatus}, nil
}

func (g *MockGateway) Cancel(ctx context.Context, holdRef, idempotencyKey string) (domain.GatewayResult, error) {
	atomic.AddInt32(&g.CancelCallCount, 1)
	g.record(idempotencyKey)
	if g.CancelError != nil {
		return domain.GatewayResult{}, g.CancelError
	}
	return domain.GatewayResult{HoldRef: holdRef, Status: domain.GatewayStatusCancelled}, nil
}

func (g *MockGateway) VerifyWebhook(payload []byte, signature string) (*domain.GatewayEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	event, ok := g.Events[signature]
	if !ok {
		return nil, service.ErrInvalidSignature
	}
	copy := *event
	return &copy, nil
}

func (g *MockGateway) EnsureCustomer(ctx context.Context, accountID, email, existingRef string) (string, error) {
	if existingRef != "" {
		return existingRef, nil
	}
	return "cus_" + accountID, nil
}

func (g *MockGateway) AttachPaymentMethod(ctx context.Context, customerRef, methodRef string) error {
	atomic.AddInt32(&g.AttachCallCount, 1)
	return nil
}

func (g *MockGateway) DetachPaymentMethod(ctx context.Context, methodRef string) error {
	atomic.AddInt32(&g.DetachCallCount, 1)
	return nil
}

func (g *MockGateway) GetPaymentMethod(ctx context.Context, methodRef string) (*domain.CardSummary, error) {
	if g.GetMethodError != nil {
		return nil, g.GetMethodError
	}
	return &domain.CardSummary{ID: methodRef, Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}, nil
}

// SignEvent registers an event that VerifyWebhook accepts for signature.
func (g *MockGateway) SignEvent(signature string, event domain.GatewayEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Events[signature] = &event
}

// IdempotencyKeys returns every key sent to the gateway, in call order.
func (g *MockGateway) IdempotencyKeys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.keys...)
}

// TotalCalls returns the number of authorize, capture and cancel calls.
func (g *MockGateway) TotalCalls() int32 {
	return atomic.LoadInt32(&g.AuthorizeCallCount) +
		atomic.LoadInt32(&g.CaptureCallCount) +
		atomic.LoadInt32(&g.CancelCallCount)
}

func (g *MockGateway) record(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys = append(g.keys, key)
}

// ──────────────────────────────────────────────
// MOCK NOTIFIER / PUBLISHER
// ──────────────────────────────────────────────

// SentMessage is a push recorded by MockNotifier.
type SentMessage struct {
	UserID  string
	Room    string
	Event   string
	Payload any
}

// MockNotifier records pushes. Only users marked connected receive them.
type MockNotifier struct {
	mu        sync.Mutex
	connected map[string]bool
	sent      []SentMessage

	// OnSend, if set, runs before every SendToUser, outside the lock.
	OnSend func(userID, event string)
}

// NewMockNotifier creates a notifier with the given users connected.
func NewMockNotifier(connected ...string) *MockNotifier {
	n := &MockNotifier{connected: make(map[string]bool)}
	for _, id := range connected {
		n.connected[id] = true
	}
	return n
}

// Connect marks users as connected.
func (n *MockNotifier) Connect(ids ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range ids {
		n.connected[id] = true
	}
}

func (n *MockNotifier) SendToUser(userID, event string, payload any) bool {
	if n.OnSend != nil {
		n.OnSend(userID, event)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.connected[userID] {
		return false
	}
	n.sent = append(n.sent, SentMessage{UserID: userID, Event: event, Payload: payload})
	return true
}

func (n *MockNotifier) BroadcastToRoom(room, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, SentMessage{Room: room, Event: event, Payload: payload})
}

func (n *MockNotifier) IsConnected(userID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected[userID]
}

// Sent returns the recorded pushes matching event ("" for all).
func (n *MockNotifier) Sent(event string) []SentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var result []SentMessage
	for _, msg := range n.sent {
		if event == "" || msg.Event == event {
			result = append(result, msg)
		}
	}
	return result
}

// Recipients returns the user ids that received event, in order.
func (n *MockNotifier) Recipients(event string) []string {
	var ids []string
	for _, msg := range n.Sent(event) {
		if msg.UserID != "" {
			ids = append(ids, msg.UserID)
		}
	}
	return ids
}

// PublishedEvent is a broker message recorded by MockPublisher.
type PublishedEvent struct {
	Topic   string
	Payload any
}

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) Publish(ctx context.Context, topic string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Topic: topic, Payload: payload})
}

// Topics returns the published topics in order.
func (p *MockPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, len(p.events))
	for i, e := range p.events {
		topics[i] = e.Topic
	}
	return topics
}

// Last returns the most recent event for topic.
func (p *MockPublisher) Last(topic string) (PublishedEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Topic == topic {
			return p.events[i], true
		}
	}
	return PublishedEvent{}, false
}

// ──────────────────────────────────────────────
// MOCK REDIS STORES
// ──────────────────────────────────────────────

// MockLocationStore returns a fixed, pre-sorted list of nearby drivers.
type MockLocationStore struct {
	mu        sync.RWMutex
	nearby    []string
	positions map[string]domain.Coordinate

	NearbyError error
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{positions: make(map[string]domain.Coordinate)}
}

// SetNearby sets the driver ids Nearby returns, nearest first.
func (m *MockLocationStore) SetNearby(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nearby = ids
}

func (m *MockLocationStore) Add(ctx context.Context, driverID string, at domain.Coordinate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[driverID] = at
	return nil
}

func (m *MockLocationStore) Nearby(ctx context.Context, at domain.Coordinate, radiusKm float64, limit int) ([]string, error) {
	if m.NearbyError != nil {
		return nil, m.NearbyError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.nearby
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return append([]string(nil), ids...), nil
}

func (m *MockLocationStore) Remove(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, driverID)
	return nil
}

// Position returns a driver's stored position.
func (m *MockLocationStore) Position(driverID string) (domain.Coordinate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.positions[driverID]
	return at, ok
}

// MockBatchStore is an in-memory BatchStore without expiry.
type MockBatchStore struct {
	mu      sync.Mutex
	batches map[string][][]string
	index   map[string]int

	SaveCallCount int32
}

// NewMockBatchStore creates a new mock batch store.
func NewMockBatchStore() *MockBatchStore {
	return &MockBatchStore{
		batches: make(map[string][][]string),
		index:   make(map[string]int),
	}
}

func (m *MockBatchStore) Save(ctx context.Context, rideID string, batches [][]string, ttl time.Duration) error {
	atomic.AddInt32(&m.SaveCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[rideID] = batches
	m.index[rideID] = 0
	return nil
}

func (m *MockBatchStore) Batches(ctx context.Context, rideID string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches[rideID], nil
}

func (m *MockBatchStore) Index(ctx context.Context, rideID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index[rideID], nil
}

func (m *MockBatchStore) SetIndex(ctx context.Context, rideID string, idx int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index[rideID] = idx
	return nil
}

func (m *MockBatchStore) Delete(ctx context.Context, rideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.batches, rideID)
	delete(m.index, rideID)
	return nil
}

// HasState reports whether any batch state exists for the ride.
func (m *MockBatchStore) HasState(rideID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.batches[rideID]
	return ok
}

// MockThrottleStore allows the first call per key and refuses the rest.
type MockThrottleStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewMockThrottleStore creates a new mock throttle store.
func NewMockThrottleStore() *MockThrottleStore {
	return &MockThrottleStore{seen: make(map[string]bool)}
}

func (m *MockThrottleStore) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *MockThrottleStore) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

// Ensure mocks implement interfaces.
var (
	_ repository.RideRepository    = (*MockRideRepository)(nil)
	_ repository.InvoiceRepository = (*MockInvoiceRepository)(nil)
	_ repository.AccountRepository = (*MockAccountRepository)(nil)
	_ repository.Transactor        = (*MockTransactor)(nil)
	_ service.PaymentGateway       = (*MockGateway)(nil)
	_ service.Notifier             = (*MockNotifier)(nil)
	_ service.Publisher            = (*MockPublisher)(nil)
	_ redis.LocationStoreInterface = (*MockLocationStore)(nil)
	_ redis.BatchStoreInterface    = (*MockBatchStore)(nil)
	_ redis.ThrottleStoreInterface = (*MockThrottleStore)(nil)
)
