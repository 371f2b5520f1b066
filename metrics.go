package hotrun

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one supervisor. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	RawEvents       *prometheus.CounterVec
	Changes         prometheus.Counter
	Coalesced       prometheus.Counter
	Spurious        prometheus.Counter
	FilesRemoved    prometheus.Counter
	Restarts        prometheus.Counter
	ForcedKills     prometheus.Counter
	ChildExits      prometheus.Counter
	Generation      prometheus.Gauge
	RestartDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is not nil
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RawEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotrun",
			Name:      "raw_events_total",
			Help:      "Filesystem notifications received for the entry file, by kind.",
		}, []string{"kind"}),
		Changes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotrun",
			Name:      "change_events_total",
			Help:      "Coalesced content changes emitted.",
		}),
		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotrun",
			Name:      "coalesced_changes_total",
			Help:      "Changes merged into an already pending reload trigger.",
		}),
		Spurious: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotrun",
			Name:      "spurious_events_total",
			Help:      "Settle checks that found an unchanged fingerprint.",
		}),
		FilesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotrun",
			Name:      "file_removed_total",
			Help:      "Entry file removals not followed by a replacement within the grace period.",
		}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotrun",
			Name:      "restarts_total",
			Help:      "Child restarts performed.",
		}),
		ForcedKills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotrun",
			Name:      "forced_kills_total",
			Help:      "Children killed after ignoring SIGTERM for the stop timeout.",
		}),
		ChildExits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotrun",
			Name:      "child_exits_total",
			Help:      "Children that exited without being asked to.",
		}),
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hotrun",
			Name:      "generation",
			Help:      "Current reload generation.",
		}),
		RestartDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hotrun",
			Name:      "restart_duration_seconds",
			Help:      "Time from change event to the new child reporting readiness.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.RawEvents, m.Changes, m.Coalesced, m.Spurious, m.FilesRemoved,
			m.Restarts, m.ForcedKills, m.ChildExits, m.Generation, m.RestartDuration,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) rawEvent(kind EventKind) {
	if m != nil {
		m.RawEvents.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) change() {
	if m != nil {
		m.Changes.Inc()
	}
}

func (m *Metrics) coalesced() {
	if m != nil {
		m.Coalesced.Inc()
	}
}

func (m *Metrics) spurious() {
	if m != nil {
		m.Spurious.Inc()
	}
}

func (m *Metrics) fileRemoved() {
	if m != nil {
		m.FilesRemoved.Inc()
	}
}

func (m *Metrics) restarted(gen int, took time.Duration) {
	if m != nil {
		m.Restarts.Inc()
		m.Generation.Set(float64(gen))
		m.RestartDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) forcedKill() {
	if m != nil {
		m.ForcedKills.Inc()
	}
}

func (m *Metrics) childExit() {
	if m != nil {
		m.ChildExits.Inc()
	}
}
