package presence

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"neargo/config"
	"neargo/internal/domain"
	"neargo/internal/index"
	"neargo/internal/models"
)

// Registry is the source of truth for live users. It owns the profile
// snapshot and last-known position per user; the spatial index is a
// lookup structure the registry keeps in sync on every applied report,
// expiry and purge.
//
// Entries are sharded by userId with one RWMutex per shard, so reports
// for different users proceed concurrently while two reports for the
// same user serialize on the owning shard. Grid calls are made while
// the shard lock is held, which keeps registry and index atomic with
// respect to that user; the grid takes no registry locks so the order
// cannot cycle.
type Registry struct {
	cfg    config.PresenceConfig
	grid   *index.Grid
	shards []*shard

	// Now is the registry clock; tests substitute it to drive expiry.
	Now func() time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	snapshot  models.ProfileSnapshot
	position  models.UserPosition
	lastSeen  time.Time
	state     string
	expiredAt time.Time
}

const numShards = 64

func NewRegistry(cfg config.PresenceConfig, grid *index.Grid) *Registry {
	r := &Registry{
		cfg:    cfg,
		grid:   grid,
		shards: make([]*shard, numShards),
		Now:    time.Now,
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(userID); i++ {
		h ^= uint64(userID[i])
		h *= 1099511628211
	}
	return r.shards[h%numShards]
}

// Register creates a PENDING entry for the snapshot. The entry carries
// no position until the first location report arrives.
func (r *Registry) Register(snap models.ProfileSnapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}
	s := r.shardFor(snap.UserID)
	s.mu.Lock()
	s.entries[snap.UserID] = &entry{
		snapshot: snap,
		lastSeen: r.Now(),
		state:    domain.StatePending,
	}
	s.mu.Unlock()
	return nil
}

func validateSnapshot(snap models.ProfileSnapshot) error {
	if snap.UserID == "" {
		return fmt.Errorf("%w: missing user id", domain.ErrValidation)
	}
	name := strings.TrimSpace(snap.DisplayName)
	if name == "" || len(name) > domain.MaxDisplayNameLen {
		return fmt.Errorf("%w: display name must be 1-%d characters", domain.ErrValidation, domain.MaxDisplayNameLen)
	}
	if snap.Age < domain.MinAge || snap.Age > domain.MaxAge {
		return fmt.Errorf("%w: age must be between %d and %d", domain.ErrValidation, domain.MinAge, domain.MaxAge)
	}
	if !domain.ValidGender(snap.Gender) {
		return fmt.Errorf("%w: unrecognized gender category %q", domain.ErrValidation, snap.Gender)
	}
	return nil
}

// ReportLocation applies a location report: position and lastSeen are
// updated and the spatial index re-slotted. A report whose timestamp is
// older than the last applied one is dropped with ErrStaleReport. A
// report arriving for an EXPIRED entry still inside the grace period
// revives it.
func (r *Registry) ReportLocation(userID string, lat, lng float64, reportedAt time.Time, accuracyM float64) error {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return domain.ErrNotRegistered
	}
	if e.state != domain.StatePending && reportedAt.Before(e.position.ReportedAt) {
		return domain.ErrStaleReport
	}
	e.position = models.UserPosition{
		UserID:         userID,
		Latitude:       lat,
		Longitude:      lng,
		AccuracyMeters: accuracyM,
		ReportedAt:     reportedAt,
	}
	e.lastSeen = r.Now()
	e.state = domain.StateActive
	e.expiredAt = time.Time{}
	r.grid.InsertOrUpdate(userID, lat, lng)
	return nil
}

// GetSnapshot returns the current entry for userID.
func (r *Registry) GetSnapshot(userID string) (models.PresenceEntry, error) {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[userID]
	if !ok {
		return models.PresenceEntry{}, domain.ErrNotFound
	}
	return e.view(), nil
}

// GetActive returns the entry only if it is currently ACTIVE. Query
// joins use it so users expired between index read and join are simply
// skipped.
func (r *Registry) GetActive(userID string) (models.PresenceEntry, bool) {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[userID]
	if !ok || e.state != domain.StateActive {
		return models.PresenceEntry{}, false
	}
	return e.view(), true
}

func (e *entry) view() models.PresenceEntry {
	return models.PresenceEntry{
		Snapshot: e.snapshot,
		Position: e.position,
		LastSeen: e.lastSeen,
		State:    e.state,
	}
}

// Remove drops the entry and its index slot. Used when an invariant
// violation leaves an entry unusable; the next valid report rebuilds it.
func (r *Registry) Remove(userID string) {
	s := r.shardFor(userID)
	s.mu.Lock()
	delete(s.entries, userID)
	s.mu.Unlock()
	r.grid.Remove(userID)
}

// ExpireStale walks the registry one shard at a time, transitioning
// ACTIVE entries past TTL to EXPIRED (and dropping them from the index)
// and purging EXPIRED entries past the grace period. Locking per shard
// bounds how long any single lock is held so ingestion is never starved.
func (r *Registry) ExpireStale() (expired, purged int) {
	now := r.Now()
	for _, s := range r.shards {
		var toRemove []string
		s.mu.Lock()
		for id, e := range s.entries {
			switch e.state {
			case domain.StateActive:
				if now.Sub(e.lastSeen) > r.cfg.TTL {
					e.state = domain.StateExpired
					e.expiredAt = now
					toRemove = append(toRemove, id)
					expired++
				}
			case domain.StateExpired:
				if now.Sub(e.expiredAt) > r.cfg.GracePeriod {
					delete(s.entries, id)
					purged++
				}
			case domain.StatePending:
				// registered but never reported; reap with the same grace
				if now.Sub(e.lastSeen) > r.cfg.TTL+r.cfg.GracePeriod {
					delete(s.entries, id)
					purged++
				}
			}
		}
		s.mu.Unlock()
		// index removals happen outside the shard lock; the entries are
		// already EXPIRED so queries joining against the registry skip them
		for _, id := range toRemove {
			r.grid.Remove(id)
		}
	}
	return expired, purged
}

// Reconcile repairs registry<->index divergence: indexed users without
// an ACTIVE entry are dropped from the index, and ACTIVE entries missing
// from the index are re-inserted at their last position.
func (r *Registry) Reconcile() {
	for _, id := range r.grid.UserIDs() {
		if _, ok := r.GetActive(id); !ok {
			log.Printf("[presence] reconcile: dropping orphan index entry %s", id)
			r.grid.Remove(id)
		}
	}
	for _, s := range r.shards {
		var fix []models.UserPosition
		s.mu.RLock()
		for id, e := range s.entries {
			if e.state == domain.StateActive && !r.grid.Contains(id) {
				fix = append(fix, e.position)
			}
		}
		s.mu.RUnlock()
		for _, p := range fix {
			log.Printf("[presence] reconcile: re-indexing %s", p.UserID)
			r.grid.InsertOrUpdate(p.UserID, p.Latitude, p.Longitude)
		}
	}
}

// ActiveCount returns the number of ACTIVE entries.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			if e.state == domain.StateActive {
				n++
			}
		}
		s.mu.RUnlock()
	}
	return n
}
