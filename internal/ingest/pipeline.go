package ingest

import (
	"errors"
	"sync"
	"time"

	"neargo/config"
	"neargo/internal/domain"
	"neargo/internal/metrics"
	"neargo/internal/presence"
	"neargo/pkg/location"
)

// Outcome is the non-fatal result of a location report. Rejected and
// duplicate reports are signalled back to the caller, never silently
// dropped.
type Outcome struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Pipeline validates incoming location reports and enforces the
// per-user minimum report interval before delegating to the registry.
type Pipeline struct {
	cfg config.IngestConfig
	reg *presence.Registry

	// watch is kicked after every applied report so region watches
	// recompute; nil when the subscription layer is disabled.
	watch interface{ Kick() }

	mu       sync.Mutex
	lastSeen map[string]time.Time

	// Now is the pipeline clock; tests substitute it.
	Now func() time.Time
}

func NewPipeline(cfg config.IngestConfig, reg *presence.Registry, watch interface{ Kick() }) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		reg:      reg,
		watch:    watch,
		lastSeen: make(map[string]time.Time),
		Now:      time.Now,
	}
	go p.cleanup()
	return p
}

// Report runs a single location report through validation, rate
// limiting and the registry. The returned Outcome is what the transport
// layer hands back to the client; err is only set alongside it for
// status mapping.
func (p *Pipeline) Report(userID string, lat, lng float64, reportedAt time.Time, accuracyM float64) (Outcome, error) {
	if !location.ValidCoords(lat, lng) {
		metrics.ReportsRejected.WithLabelValues(domain.ReasonInvalidCoords).Inc()
		return Outcome{Reason: domain.ReasonInvalidCoords}, domain.ErrValidation
	}
	if !p.allow(userID) {
		metrics.ReportsRejected.WithLabelValues(domain.ReasonRateLimited).Inc()
		return Outcome{Reason: domain.ReasonRateLimited}, domain.ErrRateLimited
	}
	if err := p.reg.ReportLocation(userID, lat, lng, reportedAt, accuracyM); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotRegistered):
			metrics.ReportsRejected.WithLabelValues(domain.ReasonNotRegistered).Inc()
			return Outcome{Reason: domain.ReasonNotRegistered}, err
		case errors.Is(err, domain.ErrStaleReport):
			metrics.ReportsRejected.WithLabelValues(domain.ReasonStale).Inc()
			return Outcome{Reason: domain.ReasonStale}, err
		default:
			metrics.ReportsRejected.WithLabelValues(domain.ReasonInternal).Inc()
			return Outcome{Reason: domain.ReasonInternal}, domain.ErrInternal
		}
	}
	metrics.ReportsAccepted.Inc()
	if p.watch != nil {
		p.watch.Kick()
	}
	return Outcome{Accepted: true}, nil
}

// allow enforces at most one accepted report per user per
// MinReportInterval. A rejected report does not reset the window.
func (p *Pipeline) allow(userID string) bool {
	if p.cfg.MinReportInterval <= 0 {
		return true
	}
	now := p.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[userID]; ok && now.Sub(last) < p.cfg.MinReportInterval {
		return false
	}
	p.lastSeen[userID] = now
	return true
}

// cleanup drops rate-limit bookkeeping for users that stopped
// reporting, mirroring the registry's own TTL-driven purge.
func (p *Pipeline) cleanup() {
	tick := time.NewTicker(time.Minute)
	for range tick.C {
		cutoff := p.Now().Add(-5 * time.Minute)
		p.mu.Lock()
		for id, t := range p.lastSeen {
			if t.Before(cutoff) {
				delete(p.lastSeen, id)
			}
		}
		p.mu.Unlock()
	}
}
