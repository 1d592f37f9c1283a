// Package promhook exports cache events as Prometheus counters.
package promhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/transcache"
)

type Hooks struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	selfHeals     *prometheus.CounterVec
	setRejected   prometheus.Counter
	genErrors     *prometheus.CounterVec
	outages       prometheus.Counter
	trackErrors   *prometheus.CounterVec
	sweepFailures prometheus.Counter
	dupRaces      prometheus.Counter
}

var _ transcache.Hooks = (*Hooks)(nil)

// New registers the transcache_* counters with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func New(reg prometheus.Registerer) *Hooks {
	f := promauto.With(reg)
	return &Hooks{
		hits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcache_cache_hits_total",
			Help: "Reads served from the cache.",
		}, []string{"namespace"}),
		misses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcache_cache_misses_total",
			Help: "Reads that ran the store query.",
		}, []string{"namespace"}),
		selfHeals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcache_self_heals_total",
			Help: "Entries deleted on read.",
		}, []string{"reason"}),
		setRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "transcache_provider_set_rejected_total",
			Help: "Writes the cache provider refused.",
		}),
		genErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcache_genstore_errors_total",
			Help: "Generation store failures.",
		}, []string{"op"}),
		outages: f.NewCounter(prometheus.CounterOpts{
			Name: "transcache_invalidate_outages_total",
			Help: "Forgets where both the bump and the delete failed.",
		}),
		trackErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcache_track_errors_total",
			Help: "Key registry failures.",
		}, []string{"namespace"}),
		sweepFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "transcache_sweep_failures_total",
			Help: "Invalidation sweeps after a write that did not fully succeed.",
		}),
		dupRaces: f.NewCounter(prometheus.CounterOpts{
			Name: "transcache_duplicate_races_total",
			Help: "Inserts rejected by the unique constraint after the existence check passed.",
		}),
	}
}

func (h *Hooks) CacheHit(ns string)                    { h.hits.WithLabelValues(ns).Inc() }
func (h *Hooks) CacheMiss(ns string)                   { h.misses.WithLabelValues(ns).Inc() }
func (h *Hooks) SelfHeal(_, reason string)             { h.selfHeals.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string)            { h.setRejected.Inc() }
func (h *Hooks) GenSnapshotError(string, error)        { h.genErrors.WithLabelValues("snapshot").Inc() }
func (h *Hooks) GenBumpError(string, error)            { h.genErrors.WithLabelValues("bump").Inc() }
func (h *Hooks) InvalidateOutage(string, error, error) { h.outages.Inc() }
func (h *Hooks) TrackError(ns string, _ error)         { h.trackErrors.WithLabelValues(ns).Inc() }
func (h *Hooks) SweepFailed(error)                     { h.sweepFailures.Inc() }
func (h *Hooks) DuplicateRace(string, string)          { h.dupRaces.Inc() }
