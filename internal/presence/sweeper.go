package presence

import (
	"log"
	"time"

	"neargo/internal/metrics"
)

// Sweeper drives the registry lifecycle in the background: periodic
// expiry/purge plus a less frequent reconciliation pass.
type Sweeper struct {
	reg      *Registry
	interval time.Duration
	done     chan struct{}
}

func NewSweeper(reg *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sweeper{reg: reg, interval: interval, done: make(chan struct{})}
}

func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) Stop() {
	close(s.done)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	reconcileEvery := 4
	n := 0
	for {
		select {
		case <-ticker.C:
			expired, purged := s.reg.ExpireStale()
			if expired > 0 || purged > 0 {
				log.Printf("[presence] sweep: expired=%d purged=%d", expired, purged)
			}
			metrics.ActiveUsers.Set(float64(s.reg.ActiveCount()))
			n++
			if n%reconcileEvery == 0 {
				s.reg.Reconcile()
			}
		case <-s.done:
			return
		}
	}
}
