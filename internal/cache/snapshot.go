// Package cache maintains a read-only Redis snapshot of each doctor-date's
// slot availability and waiting-list depth, serving read-mostly gateway
// queries without hitting Postgres on every poll. Adapted from
// internal/portfolio/manager.go's Redis cache-aside pattern: an in-process
// map checked first, then Redis, with a bounded TTL instead of the
// teacher's TTL-less Set (spec §8 S8 — the cache has a bounded staleness
// window and is never the system of record).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
)

// StaleAfter bounds how long a snapshot may be served before it must be
// refreshed from storage (spec §8 S8).
const StaleAfter = 5 * time.Second

// SlotSnapshot is the read projection of one slot's current occupancy.
type SlotSnapshot struct {
	SlotID      uuid.UUID `json:"slot_id"`
	DisplayID   string    `json:"display_id"`
	Capacity    int       `json:"capacity"`
	Allocated   int       `json:"allocated"`
	PaidCount   int       `json:"paid_count"`
	FollowUp    int       `json:"follow_up_count"`
	IsImminent  bool      `json:"is_imminent"`
}

// DoctorDateSnapshot is the read projection served to the gateway and the
// live feed for a doctor's full day.
type DoctorDateSnapshot struct {
	DoctorID     uuid.UUID      `json:"doctor_id"`
	Date         string         `json:"date"`
	Slots        []SlotSnapshot `json:"slots"`
	WaitingCount int            `json:"waiting_count"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// Loader rebuilds a snapshot from the system of record when the cache
// misses or has gone stale. internal/engine supplies the storage-backed
// implementation.
type Loader interface {
	Load(ctx context.Context, doctorID uuid.UUID, date civildate.Date) (*DoctorDateSnapshot, error)
}

// Store is the Redis-backed, in-process-fronted snapshot cache.
type Store struct {
	redis *redis.Client
	ttl   time.Duration

	mu    sync.RWMutex
	local map[string]*entry
}

type entry struct {
	snapshot *DoctorDateSnapshot
	cachedAt time.Time
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{
		redis: redisClient,
		ttl:   StaleAfter,
		local: make(map[string]*entry),
	}
}

func key(doctorID uuid.UUID, date civildate.Date) string {
	return "opd:snapshot:" + doctorID.String() + ":" + date.String()
}

// Get returns a cached snapshot, loading and populating the cache via
// loader on a miss or once the cached entry exceeds StaleAfter.
func (s *Store) Get(ctx context.Context, doctorID uuid.UUID, date civildate.Date, loader Loader) (*DoctorDateSnapshot, error) {
	k := key(doctorID, date)

	s.mu.RLock()
	if e, ok := s.local[k]; ok && time.Since(e.cachedAt) < s.ttl {
		s.mu.RUnlock()
		return e.snapshot, nil
	}
	s.mu.RUnlock()

	if raw, err := s.redis.Get(ctx, k).Result(); err == nil {
		var snap DoctorDateSnapshot
		if json.Unmarshal([]byte(raw), &snap) == nil && time.Since(snap.GeneratedAt) < s.ttl {
			s.store(k, &snap)
			return &snap, nil
		}
	}

	snap, err := loader.Load(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("cache: load: %w", err)
	}
	snap.GeneratedAt = time.Now()
	s.store(k, snap)

	if payload, err := json.Marshal(snap); err == nil {
		s.redis.Set(ctx, k, payload, s.ttl)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot for (doctorID, date) so the next
// Get forces a fresh load, used after any allocation/reallocation write.
func (s *Store) Invalidate(ctx context.Context, doctorID uuid.UUID, date civildate.Date) {
	k := key(doctorID, date)
	s.mu.Lock()
	delete(s.local, k)
	s.mu.Unlock()
	s.redis.Del(ctx, k)
}

func (s *Store) store(k string, snap *DoctorDateSnapshot) {
	s.mu.Lock()
	s.local[k] = &entry{snapshot: snap, cachedAt: time.Now()}
	s.mu.Unlock()
}
