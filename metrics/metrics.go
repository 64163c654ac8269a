// Package metrics exposes Prometheus metrics for ranking runs.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/otrank/rcd"
)

const (
	Namespace = "otrank"

	OutcomeLabel = "outcome"
	ReasonLabel  = "reason"

	Succeeded  = "succeeded"
	Unrankable = "unrankable"
	Failed     = "failed"
)

// Recorder collects ranking metrics into its own registry. It implements
// rcd.Tracer so a run can report steps and failures as they happen.
type Recorder struct {
	registry *prometheus.Registry

	runs       *prometheus.CounterVec
	steps      prometheus.Counter
	failures   *prometheus.CounterVec
	strata     prometheus.Histogram
	explained  prometheus.Counter
	pruned     prometheus.Counter
	lastRanked prometheus.Gauge
}

var _ rcd.Tracer = (*Recorder)(nil)

// NewRecorder creates a Recorder with every metric registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "runs_total",
				Help:      "Ranking runs by outcome",
			},
			[]string{OutcomeLabel},
		),
		steps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "steps_total",
				Help:      "Demotion steps performed",
			},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "unrankable_total",
				Help:      "Runs that stopped without a consistent ranking, by reason",
			},
			[]string{ReasonLabel},
		),
		strata: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "strata",
				Help:      "Number of strata in completed rankings",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		explained: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "explained_candidates_total",
				Help:      "Losers explained by ranked constraints",
			},
		),
		pruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "pruned_winners_total",
				Help:      "Winners dropped after their competition had no losers left",
			},
		),
		lastRanked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "last_ranked_constraints",
				Help:      "Constraints ranked by the most recent step",
			},
		),
	}

	r.registry.MustRegister(
		r.runs,
		r.steps,
		r.failures,
		r.strata,
		r.explained,
		r.pruned,
		r.lastRanked,
	)
	return r
}

// TraceStep implements rcd.Tracer.
func (r *Recorder) TraceStep(s rcd.StepResult) {
	r.steps.Inc()
	r.explained.Add(float64(len(s.Explained)))
	r.pruned.Add(float64(len(s.Pruned)))
	r.lastRanked.Set(float64(len(s.Ranked())))
}

// TraceFailure implements rcd.Tracer.
func (r *Recorder) TraceFailure(err *rcd.UnrankableError) {
	r.failures.WithLabelValues(string(err.Reason)).Inc()
}

// ObserveRun records the outcome of a complete run. res may be nil when the
// dataset could not be loaded.
func (r *Recorder) ObserveRun(res *rcd.Result, err error) {
	switch {
	case err == nil:
		r.runs.WithLabelValues(Succeeded).Inc()
		if res != nil {
			r.strata.Observe(float64(len(res.Order)))
		}
	case errors.Is(err, rcd.ErrUnrankable):
		r.runs.WithLabelValues(Unrankable).Inc()
	default:
		r.runs.WithLabelValues(Failed).Inc()
	}
}

// Registry returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
