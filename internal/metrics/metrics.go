package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReportsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "neargo_reports_accepted_total",
		Help: "Location reports applied to the presence registry",
	})
	ReportsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "neargo_reports_rejected_total",
		Help: "Location reports rejected, by reason",
	}, []string{"reason"})
	QueriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "neargo_nearby_queries_total",
		Help: "Total findNearby queries",
	})
	QueryDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "neargo_nearby_query_duration_ms",
		Help:    "findNearby duration in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 50, 100, 200},
	})
	ActiveUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "neargo_active_users",
		Help: "Users with an ACTIVE presence entry",
	})
	ActiveWatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "neargo_active_watches",
		Help: "Open region watches",
	})
	WatchEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "neargo_watch_events_total",
		Help: "Watch events delivered, by type",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(ReportsAccepted)
	prometheus.MustRegister(ReportsRejected)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDurationMs)
	prometheus.MustRegister(ActiveUsers)
	prometheus.MustRegister(ActiveWatches)
	prometheus.MustRegister(WatchEventsTotal)
}

// Handler exposes the registered metrics for Prometheus scraping;
// mounted at /metrics in the router.
func Handler() http.Handler { return promhttp.Handler() }
