package forgewire

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the dispatcher's Prometheus collectors. With a nil
// registerer the collectors work but are not exported.
type metrics struct {
	dispatches        *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	snapshotsRejected prometheus.Counter
	sharedWrites      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forgewire",
			Name:      "dispatches_total",
			Help:      "Action requests handled, by component and outcome code.",
		}, []string{"component", "code"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "forgewire",
			Name:      "dispatch_duration_seconds",
			Help:      "Action request handling time in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),

		snapshotsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "forgewire",
			Name:      "snapshots_rejected_total",
			Help:      "Snapshots that failed verification.",
		}),

		sharedWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forgewire",
			Name:      "shared_writes_total",
			Help:      "Shared-state write-backs, by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *metrics) observe(component string, err error, d time.Duration) {
	code := "ok"
	if err != nil {
		code = errorCode(err)
	}
	m.dispatches.WithLabelValues(component, code).Inc()
	m.dispatchDuration.WithLabelValues(component).Observe(d.Seconds())
}
