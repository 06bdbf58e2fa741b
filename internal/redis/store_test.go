package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/StefanPetk0vic/Locus/internal/domain"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// ────────────────────────────────────────────────────────────────────────────
// LocationStore
// ────────────────────────────────────────────────────────────────────────────

func TestLocationStore_NearbyOrdersByDistance(t *testing.T) {
	t.Parallel()

	_, client := newTestClient(t)
	store := NewLocationStore(client)
	ctx := context.Background()

	origin := domain.Coordinate{Lat: 44.8125, Lng: 20.4612}
	drivers := map[string]domain.Coordinate{
		"far":  {Lat: 44.8525, Lng: 20.4612},
		"near": {Lat: 44.8135, Lng: 20.4612},
		"mid":  {Lat: 44.8325, Lng: 20.4612},
		"out":  {Lat: 45.8125, Lng: 20.4612},
	}
	for id, at := range drivers {
		if err := store.Add(ctx, id, at); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	ids, err := store.Nearby(ctx, origin, 10, 15)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}

	want := []string{"near", "mid", "far"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], ids[i])
		}
	}
}

func TestLocationStore_NearbyRespectsLimit(t *testing.T) {
	t.Parallel()

	_, client := newTestClient(t)
	store := NewLocationStore(client)
	ctx := context.Background()

	origin := domain.Coordinate{Lat: 44.8125, Lng: 20.4612}
	for i, id := range []string{"d1", "d2", "d3", "d4"} {
		at := domain.Coordinate{Lat: origin.Lat + float64(i+1)*0.001, Lng: origin.Lng}
		if err := store.Add(ctx, id, at); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	ids, err := store.Nearby(ctx, origin, 10, 2)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(ids) != 2 || ids[0] != "d1" || ids[1] != "d2" {
		t.Errorf("expected [d1 d2], got %v", ids)
	}
}

func TestLocationStore_Remove(t *testing.T) {
	t.Parallel()

	_, client := newTestClient(t)
	store := NewLocationStore(client)
	ctx := context.Background()

	at := domain.Coordinate{Lat: 44.8125, Lng: 20.4612}
	if err := store.Add(ctx, "driver-1", at); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Remove(ctx, "driver-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	ids, err := store.Nearby(ctx, at, 10, 15)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no drivers, got %v", ids)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// BatchStore
// ────────────────────────────────────────────────────────────────────────────

func TestBatchStore_SaveAndAdvance(t *testing.T) {
	t.Parallel()

	mr, client := newTestClient(t)
	store := NewBatchStore(client)
	ctx := context.Background()

	batches := [][]string{{"a", "b"}, {"c"}}
	if err := store.Save(ctx, "ride-1", batches, 300*time.Second); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Batches(ctx, "ride-1")
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if len(got) != 2 || len(got[0]) != 2 || got[1][0] != "c" {
		t.Errorf("unexpected batches %v", got)
	}

	idx, err := store.Index(ctx, "ride-1")
	if err != nil || idx != 0 {
		t.Fatalf("expected index 0, got %d (%v)", idx, err)
	}

	if err := store.SetIndex(ctx, "ride-1", 1, 300*time.Second); err != nil {
		t.Fatalf("set index: %v", err)
	}
	idx, _ = store.Index(ctx, "ride-1")
	if idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}

	if ttl := mr.TTL(batchesPrefix + "ride-1"); ttl != 300*time.Second {
		t.Errorf("expected 300s TTL on batches, got %v", ttl)
	}
}

func TestBatchStore_ExpiresAndDeletes(t *testing.T) {
	t.Parallel()

	mr, client := newTestClient(t)
	store := NewBatchStore(client)
	ctx := context.Background()

	if err := store.Save(ctx, "ride-1", [][]string{{"a"}}, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, "ride-2", [][]string{{"b"}}, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	got, err := store.Batches(ctx, "ride-1")
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if got != nil {
		t.Errorf("expected expired batches, got %v", got)
	}

	if err := store.Save(ctx, "ride-2", [][]string{{"b"}}, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Delete(ctx, "ride-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(batchesPrefix+"ride-2") || mr.Exists(batchIndexPrefix+"ride-2") {
		t.Error("expected batch keys to be deleted")
	}
}

// ────────────────────────────────────────────────────────────────────────────
// ThrottleStore / PresenceStore
// ────────────────────────────────────────────────────────────────────────────

func TestThrottleStore_Window(t *testing.T) {
	t.Parallel()

	mr, client := newTestClient(t)
	store := NewThrottleStore(client)
	ctx := context.Background()

	ok, err := store.Allow(ctx, "relay:driver-1", 2*time.Second)
	if err != nil || !ok {
		t.Fatalf("first call should pass, got %v (%v)", ok, err)
	}

	ok, _ = store.Allow(ctx, "relay:driver-1", 2*time.Second)
	if ok {
		t.Error("second call inside the window should be throttled")
	}

	ok, _ = store.Allow(ctx, "relay:driver-2", 2*time.Second)
	if !ok {
		t.Error("other keys should not be throttled")
	}

	mr.FastForward(3 * time.Second)
	ok, _ = store.Allow(ctx, "relay:driver-1", 2*time.Second)
	if !ok {
		t.Error("call after the window should pass")
	}
}

func TestThrottleStore_Reset(t *testing.T) {
	t.Parallel()

	mr, client := newTestClient(t)
	store := NewThrottleStore(client)
	ctx := context.Background()

	if ok, _ := store.Allow(ctx, "relay:driver-1", time.Minute); !ok {
		t.Fatal("first call should pass")
	}
	if err := store.Reset(ctx, "relay:driver-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if mr.Exists("throttle:relay:driver-1") {
		t.Error("expected the marker to be cleared")
	}
	if ok, _ := store.Allow(ctx, "relay:driver-1", time.Minute); !ok {
		t.Error("call after reset should pass")
	}
}

func TestPresenceStore(t *testing.T) {
	t.Parallel()

	mr, client := newTestClient(t)
	store := NewPresenceStore(client)
	ctx := context.Background()

	if err := store.MarkOnline(ctx, "user-1", "drivers"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	if room, err := mr.Get(presencePrefix + "user-1"); err != nil || room != "drivers" {
		t.Fatalf("expected drivers marker, got %q (%v)", room, err)
	}
	if ttl := mr.TTL(presencePrefix + "user-1"); ttl != PresenceTTL {
		t.Errorf("expected ttl %v, got %v", PresenceTTL, ttl)
	}

	if err := store.MarkOffline(ctx, "user-1"); err != nil {
		t.Fatalf("mark offline: %v", err)
	}
	if mr.Exists(presencePrefix + "user-1") {
		t.Error("expected offline")
	}
}
