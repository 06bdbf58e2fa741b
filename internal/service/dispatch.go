package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/redis"
	"github.com/StefanPetk0vic/Locus/internal/repository"
)

const (
	defaultMaxDrivers     = 15
	defaultNearbyRadiusKm = 10.0
	defaultBatchSize      = 5
	defaultBatchTTL       = 300 * time.Second
	defaultCascadeTimeout = 15 * time.Second
)

// DispatchConfig tunes the cascade.
type DispatchConfig struct {
	MaxDrivers     int
	NearbyRadiusKm float64
	BatchSize      int
	BatchTTL       time.Duration
	CascadeTimeout time.Duration
}

// DefaultDispatchConfig returns the production constants.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		MaxDrivers:     defaultMaxDrivers,
		NearbyRadiusKm: defaultNearbyRadiusKm,
		BatchSize:      defaultBatchSize,
		BatchTTL:       defaultBatchTTL,
		CascadeTimeout: defaultCascadeTimeout,
	}
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	d := DefaultDispatchConfig()
	if c.MaxDrivers <= 0 {
		c.MaxDrivers = d.MaxDrivers
	}
	if c.NearbyRadiusKm <= 0 {
		c.NearbyRadiusKm = d.NearbyRadiusKm
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchTTL <= 0 {
		c.BatchTTL = d.BatchTTL
	}
	if c.CascadeTimeout <= 0 {
		c.CascadeTimeout = d.CascadeTimeout
	}
	return c
}

// Dispatcher is the contract the ride service uses to drive matching.
type Dispatcher interface {
	Start(ctx context.Context, ride *domain.Ride) error
	Cancel(ctx context.Context, rideID string)
}

// Ensure DispatchService implements Dispatcher.
var _ Dispatcher = (*DispatchService)(nil)

// cascade is the in-process state of one ride's dispatch. gen changes every
// time a timer is armed so a timer that lost a race with a newer one, or with
// Cancel, recognizes itself as stale.
type cascade struct {
	index int
	total int
	timer *time.Timer
	gen   uint64
}

// DispatchService notifies nearby drivers in batches until one accepts or
// candidates run out. Cascade state is process-local.
type DispatchService struct {
	locations     redis.LocationStoreInterface
	batches       redis.BatchStoreInterface
	rides         repository.RideRepository
	notifications *NotificationService
	nrApp         *newrelic.Application
	log           *slog.Logger
	cfg           DispatchConfig

	mu       sync.Mutex
	cascades map[string]*cascade
}

// NewDispatchService creates a new DispatchService. nrApp may be nil.
func NewDispatchService(
	locations redis.LocationStoreInterface,
	batches redis.BatchStoreInterface,
	rides repository.RideRepository,
	notifications *NotificationService,
	nrApp *newrelic.Application,
	log *slog.Logger,
	cfg DispatchConfig,
) *DispatchService {
	return &DispatchService{
		locations:     locations,
		batches:       batches,
		rides:         rides,
		notifications: notifications,
		nrApp:         nrApp,
		log:           log,
		cfg:           cfg.withDefaults(),
		cascades:      make(map[string]*cascade),
	}
}

// Partition splits ids into consecutive groups of at most size elements.
func Partition(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batch := make([]string, end-start)
		copy(batch, ids[start:end])
		batches = append(batches, batch)
	}
	return batches
}

// Start finds nearby drivers for a freshly requested ride and notifies the
// first reachable batch.
func (s *DispatchService) Start(ctx context.Context, ride *domain.Ride) error {
	ids, err := s.locations.Nearby(ctx, ride.Pickup, s.cfg.NearbyRadiusKm, s.cfg.MaxDrivers)
	if err != nil {
		return fmt.Errorf("find nearby drivers: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info("dispatch_no_drivers",
			"action", "dispatch_start",
			"ride_id", ride.ID,
		)
		return nil
	}

	batches := Partition(ids, s.cfg.BatchSize)
	if err := s.batches.Save(ctx, ride.ID, batches, s.cfg.BatchTTL); err != nil {
		return fmt.Errorf("store dispatch batches: %w", err)
	}

	s.mu.Lock()
	if old, ok := s.cascades[ride.ID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	c := &cascade{total: len(batches)}
	s.cascades[ride.ID] = c
	gen := c.gen
	s.mu.Unlock()

	s.log.Info("dispatch_started",
		"action", "dispatch_start",
		"ride_id", ride.ID,
		"drivers", len(ids),
		"batches", len(batches),
	)

	s.notifyFrom(ctx, ride, batches, 0, gen)
	return nil
}

// Cancel stops the ride's cascade and deletes its batch state. Safe to call
// for rides without a cascade and more than once.
func (s *DispatchService) Cancel(ctx context.Context, rideID string) {
	s.mu.Lock()
	c, ok := s.cascades[rideID]
	if ok {
		if c.timer != nil {
			c.timer.Stop()
		}
		delete(s.cascades, rideID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	if err := s.batches.Delete(ctx, rideID); err != nil {
		s.log.Warn("dispatch_cleanup_failed",
			"action", "dispatch_cancel",
			"ride_id", rideID,
			"error", err,
		)
	}
}

// Active reports whether a cascade is in flight for the ride.
func (s *DispatchService) Active(rideID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cascades[rideID]
	return ok
}

// Close stops every live timer. Batch state is left to expire.
func (s *DispatchService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.cascades {
		if c.timer != nil {
			c.timer.Stop()
		}
		delete(s.cascades, id)
	}
}

// notifyFrom offers the ride to batches starting at idx until a batch has at
// least one reachable driver, in which case a timeout is armed, or batches
// run out. Every batch after the first, and the exhaustion notice, waits on a
// fresh read showing the ride still REQUESTED.
func (s *DispatchService) notifyFrom(ctx context.Context, ride *domain.Ride, batches [][]string, idx int, gen uint64) {
	for ; idx < len(batches); idx++ {
		if !s.isCurrent(ride.ID, gen) {
			return
		}

		if idx > 0 {
			if !s.stillRequested(ctx, ride.ID) {
				s.finish(ctx, ride.ID, gen)
				return
			}
			if err := s.batches.SetIndex(ctx, ride.ID, idx, s.cfg.BatchTTL); err != nil {
				s.log.Warn("dispatch_index_write_failed",
					"action", "dispatch_advance",
					"ride_id", ride.ID,
					"index", idx,
					"error", err,
				)
			}
		}

		reached := 0
		for _, driverID := range batches[idx] {
			if s.notifications.OfferRide(ride, driverID, idx) {
				reached++
			}
		}

		s.log.Info("dispatch_batch_notified",
			"action", "dispatch_notify",
			"ride_id", ride.ID,
			"index", idx,
			"size", len(batches[idx]),
			"reached", reached,
		)

		if reached > 0 {
			s.arm(ride.ID, idx, gen)
			return
		}
	}

	if idx > 0 && !s.stillRequested(ctx, ride.ID) {
		s.finish(ctx, ride.ID, gen)
		return
	}
	s.exhaust(ctx, ride, gen)
}

// arm replaces any live timer for the ride with a new one for batch idx.
func (s *DispatchService) arm(rideID string, idx int, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cascades[rideID]
	if !ok || c.gen != gen {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.index = idx
	c.gen++
	next := c.gen
	c.timer = time.AfterFunc(s.cfg.CascadeTimeout, func() {
		s.onTimeout(rideID, next)
	})
}

// onTimeout advances a cascade whose batch went unanswered.
func (s *DispatchService) onTimeout(rideID string, gen uint64) {
	if !s.isCurrent(rideID, gen) {
		return
	}

	txn := s.nrApp.StartTransaction("dispatch/cascade-timeout")
	defer txn.End()
	txn.AddAttribute("ride_id", rideID)

	ctx := newrelic.NewContext(context.Background(), txn)

	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		txn.NoticeError(err)
		s.log.Error("dispatch_ride_lookup_failed",
			"action", "dispatch_timeout",
			"ride_id", rideID,
			"error", err,
		)
		s.finish(ctx, rideID, gen)
		return
	}

	batches, err := s.batches.Batches(ctx, rideID)
	if err != nil {
		txn.NoticeError(err)
		s.log.Error("dispatch_batches_read_failed",
			"action", "dispatch_timeout",
			"ride_id", rideID,
			"error", err,
		)
		s.finish(ctx, rideID, gen)
		return
	}

	idx, err := s.batches.Index(ctx, rideID)
	if err != nil {
		txn.NoticeError(err)
		s.finish(ctx, rideID, gen)
		return
	}

	s.notifyFrom(ctx, ride, batches, idx+1, gen)
}

// stillRequested re-reads the ride right before a later batch is offered it.
// A failed lookup counts as no.
func (s *DispatchService) stillRequested(ctx context.Context, rideID string) bool {
	ride, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		s.log.Error("dispatch_ride_lookup_failed",
			"action", "dispatch_advance",
			"ride_id", rideID,
			"error", err,
		)
		return false
	}
	if ride.Status != domain.RideStatusRequested {
		s.log.Info("dispatch_ride_left_requested",
			"action", "dispatch_advance",
			"ride_id", rideID,
			"status", ride.Status,
		)
		return false
	}
	return true
}

// exhaust ends a cascade that ran out of batches. The ride stays REQUESTED.
func (s *DispatchService) exhaust(ctx context.Context, ride *domain.Ride, gen uint64) {
	if !s.finish(ctx, ride.ID, gen) {
		return
	}

	s.log.Info("dispatch_exhausted",
		"action", "dispatch_exhausted",
		"ride_id", ride.ID,
	)
	s.notifications.NotifyRideUnmatched(ride)
}

// finish removes the cascade if gen is still current and deletes its batch
// state. Returns false if the cascade was already gone or superseded.
func (s *DispatchService) finish(ctx context.Context, rideID string, gen uint64) bool {
	s.mu.Lock()
	c, ok := s.cascades[rideID]
	if !ok || c.gen != gen {
		s.mu.Unlock()
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	delete(s.cascades, rideID)
	s.mu.Unlock()

	if err := s.batches.Delete(ctx, rideID); err != nil {
		s.log.Warn("dispatch_cleanup_failed",
			"action", "dispatch_finish",
			"ride_id", rideID,
			"error", err,
		)
	}
	return true
}

func (s *DispatchService) isCurrent(rideID string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cascades[rideID]
	return ok && c.gen == gen
}
