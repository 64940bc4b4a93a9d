// Package metrics counts the events the engine's design is judged by:
// remote round trips (the cost being minimized), cache hit rate, and
// reconciliation outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the engine's counters. A nil *Recorder is valid and
// records nothing, so tests and zero-config runs need no registry.
type Recorder struct {
	remoteCalls     *prometheus.CounterVec
	cacheReads      *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
}

// NewRecorder registers the counters with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		remoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_remote_calls_total",
			Help: "Round trips to the remote authoritative store.",
		}, []string{"family", "op"}),
		cacheReads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_cache_reads_total",
			Help: "Cache collection reads by result (hit or miss).",
		}, []string{"family", "result"}),
		reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_reconciliations_total",
			Help: "Reconciliation passes by outcome.",
		}, []string{"family", "outcome"}),
	}
}

// RemoteCall counts one round trip to the remote store.
func (r *Recorder) RemoteCall(family, op string) {
	if r == nil {
		return
	}
	r.remoteCalls.WithLabelValues(family, op).Inc()
}

// CacheRead counts one cache collection read.
func (r *Recorder) CacheRead(family string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheReads.WithLabelValues(family, result).Inc()
}

// Reconciliation counts one reconciliation pass.
func (r *Recorder) Reconciliation(family, outcome string) {
	if r == nil {
		return
	}
	r.reconciliations.WithLabelValues(family, outcome).Inc()
}
