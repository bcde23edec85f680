package watch

import (
	"errors"
	"sync"
	"time"

	"neargo/config"
	"neargo/internal/domain"
	"neargo/internal/metrics"
	"neargo/internal/models"
	"neargo/internal/query"

	"github.com/google/uuid"
)

// Event is one incremental change inside a watched region.
type Event struct {
	Type      string   `json:"type"`
	UserID    string   `json:"user_id"`
	DistanceM *float64 `json:"distance_m,omitempty"`
}

// Watch is a client's standing interest in a region. Events diffed on
// each recomputation cycle are pushed to Events; the channel is buffered
// and slow consumers lose events rather than blocking the hub.
type Watch struct {
	ID      string
	OwnerID string
	Lat     float64
	Lng     float64
	RadiusM float64

	Events chan Event

	// prev is the last delivered set: userId -> position/distance at
	// delivery time. Owned by the hub's recompute loop.
	prev    map[string]seen
	lastRun time.Time

	mu     sync.Mutex
	closed bool
}

type seen struct {
	pos  models.UserPosition
	dist float64
}

// Hub owns every open watch and the single recompute loop. Ingestion
// kicks the loop after applied reports; a periodic tick at the debounce
// interval catches expiry-driven leaves even when nobody is reporting.
// Each watch recomputes at most once per debounce interval.
type Hub struct {
	cfg        config.WatchConfig
	engine     *query.Engine
	maxResults int

	mu      sync.Mutex
	watches map[string]*Watch

	kick chan struct{}
	done chan struct{}

	// Now is the hub clock; tests substitute it.
	Now func() time.Time
}

var ErrTooManyWatches = errors.New("watch limit reached")

func NewHub(cfg config.WatchConfig, engine *query.Engine, maxResults int) *Hub {
	if maxResults <= 0 {
		maxResults = 200
	}
	return &Hub{
		cfg:        cfg,
		engine:     engine,
		maxResults: maxResults,
		watches:    make(map[string]*Watch),
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		Now:        time.Now,
	}
}

// Add registers a watch and schedules an immediate recompute so the
// client receives JOINED events for users already inside the region.
func (h *Hub) Add(ownerID string, lat, lng, radiusM float64) (*Watch, error) {
	w := &Watch{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Lat:     lat,
		Lng:     lng,
		RadiusM: radiusM,
		Events:  make(chan Event, h.cfg.SendBuffer),
		prev:    make(map[string]seen),
	}
	h.mu.Lock()
	if len(h.watches) >= h.cfg.MaxWatchers {
		h.mu.Unlock()
		return nil, ErrTooManyWatches
	}
	h.watches[w.ID] = w
	h.mu.Unlock()
	metrics.ActiveWatches.Inc()
	h.Kick()
	return w, nil
}

// Remove releases a watch. Idempotent; safe to call from a disconnect
// path that races the recompute loop.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	w, ok := h.watches[id]
	if ok {
		delete(h.watches, id)
	}
	h.mu.Unlock()
	if ok {
		w.mu.Lock()
		w.closed = true
		close(w.Events)
		w.mu.Unlock()
		metrics.ActiveWatches.Dec()
	}
}

// Kick wakes the recompute loop. Coalesced: kicks during an in-flight
// cycle collapse into one follow-up cycle.
func (h *Hub) Kick() {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

func (h *Hub) Start() {
	go h.run()
}

func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) run() {
	ticker := time.NewTicker(h.cfg.Debounce)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-h.kick:
		case <-ticker.C:
		}
		h.Recompute()
	}
}

// Recompute diffs every due watch against its previously delivered set
// and emits JOINED / MOVED / LEFT events. Exported for tests; the run
// loop is the only production caller.
func (h *Hub) Recompute() {
	now := h.Now()
	h.mu.Lock()
	due := make([]*Watch, 0, len(h.watches))
	for _, w := range h.watches {
		if now.Sub(w.lastRun) >= h.cfg.Debounce || w.lastRun.IsZero() {
			w.lastRun = now
			due = append(due, w)
		}
	}
	h.mu.Unlock()

	for _, w := range due {
		h.recomputeWatch(w)
	}
}

func (h *Hub) recomputeWatch(w *Watch) {
	results := h.engine.FindNearby(w.Lat, w.Lng, w.RadiusM, h.maxResults, w.OwnerID)
	cur := make(map[string]seen, len(results))
	for _, r := range results {
		cur[r.Snapshot.UserID] = seen{pos: r.Position, dist: r.DistanceM}
	}

	for id, s := range cur {
		old, ok := w.prev[id]
		if !ok {
			h.deliver(w, Event{Type: domain.EventJoined, UserID: id, DistanceM: distPtr(s.dist)})
			continue
		}
		if old.pos.Latitude != s.pos.Latitude || old.pos.Longitude != s.pos.Longitude {
			h.deliver(w, Event{Type: domain.EventMoved, UserID: id, DistanceM: distPtr(s.dist)})
		}
	}
	for id := range w.prev {
		if _, ok := cur[id]; !ok {
			h.deliver(w, Event{Type: domain.EventLeft, UserID: id})
		}
	}
	w.prev = cur
}

// deliver pushes an event without blocking. The per-watch closed guard
// makes delivery safe against a concurrent Remove from a disconnecting
// client.
func (h *Hub) deliver(w *Watch, ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.Events <- ev:
		metrics.WatchEventsTotal.WithLabelValues(ev.Type).Inc()
	default:
	}
}

func distPtr(d float64) *float64 { return &d }

// Count returns the number of open watches.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watches)
}
