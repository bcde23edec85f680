package query

import (
	"sort"
	"time"

	"neargo/config"
	"neargo/internal/index"
	"neargo/internal/metrics"
	"neargo/internal/models"
	"neargo/internal/presence"
)

// Result is one nearby user: the profile snapshot joined from the
// registry plus the exact distance from the requester.
type Result struct {
	Snapshot  models.ProfileSnapshot
	Position  models.UserPosition
	DistanceM float64
}

// Engine answers "who is near me" against the spatial index, joining
// candidates back through the registry so only ACTIVE users are
// returned.
type Engine struct {
	cfg  config.GeoConfig
	grid *index.Grid
	reg  *presence.Registry
}

func NewEngine(cfg config.GeoConfig, grid *index.Grid, reg *presence.Registry) *Engine {
	return &Engine{cfg: cfg, grid: grid, reg: reg}
}

// ClampRadius applies the configured default and maximum.
func (e *Engine) ClampRadius(radiusM float64) float64 {
	if radiusM <= 0 {
		return e.cfg.DefaultRadiusM
	}
	if radiusM > e.cfg.MaxRadiusM {
		return e.cfg.MaxRadiusM
	}
	return radiusM
}

// ClampLimit applies the configured default and maximum.
func (e *Engine) ClampLimit(limit int) int {
	if limit <= 0 {
		return e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		return e.cfg.MaxLimit
	}
	return limit
}

// FindNearby returns up to limit ACTIVE users within radiusM meters of
// (lat, lng), nearest first, excluding excludeID. Ties are broken by
// userId so repeated queries over the same state are deterministic.
// Users expired between the index scan and the registry join are
// silently skipped.
func (e *Engine) FindNearby(lat, lng, radiusM float64, limit int, excludeID string) []Result {
	start := time.Now()
	metrics.QueriesTotal.Inc()

	radiusM = e.ClampRadius(radiusM)
	limit = e.ClampLimit(limit)

	candidates := e.grid.QueryRadius(lat, lng, radiusM, excludeID)
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		entry, ok := e.reg.GetActive(c.UserID)
		if !ok {
			continue
		}
		results = append(results, Result{Snapshot: entry.Snapshot, Position: entry.Position, DistanceM: c.DistanceM})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceM != results[j].DistanceM {
			return results[i].DistanceM < results[j].DistanceM
		}
		return results[i].Snapshot.UserID < results[j].Snapshot.UserID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	metrics.QueryDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	return results
}
