// Package metrics exposes Prometheus collectors for simulation runs.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/freeeve/banditlab/internal/sim"
)

var (
	// trialsTotal counts simulated trials by strategy
	trialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banditlab_trials_total",
		Help: "Total simulated trials by strategy",
	}, []string{"strategy"})

	// replicationsTotal counts finished replications by strategy and whether they stopped early
	replicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banditlab_replications_total",
		Help: "Total finished replications by strategy and early stop",
	}, []string{"strategy", "stopped_early"})

	// replicationLength tracks trials per replication
	replicationLength = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "banditlab_replication_trials",
		Help:    "Trials played per replication",
		Buckets: prometheus.ExponentialBuckets(10, 4, 8), // 10 to ~160k
	}, []string{"strategy"})

	// runsTotal counts runs by strategy and final status
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banditlab_runs_total",
		Help: "Total runs by strategy and status",
	}, []string{"strategy", "status"})

	// runDuration tracks wall-clock time per run
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "banditlab_run_duration_seconds",
		Help:    "Run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~260s
	}, []string{"strategy"})

	// httpRequests counts API requests by method, route pattern and status
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banditlab_http_requests_total",
		Help: "Total HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	// httpDuration tracks API latency by route pattern
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "banditlab_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// activeRuns is the number of runs in progress
	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "banditlab_active_runs",
		Help: "Runs currently executing",
	})
)

// Observer returns a sim.Observer that counts trials and replications for
// strategy, forwarding every event to next when it is non-nil.
func Observer(strategy string, next sim.Observer) sim.Observer {
	return &observer{
		strategy: strategy,
		trials:   trialsTotal.WithLabelValues(strategy),
		length:   replicationLength.WithLabelValues(strategy),
		next:     next,
	}
}

type observer struct {
	strategy string
	trials   prometheus.Counter
	length   prometheus.Observer
	next     sim.Observer
}

func (o *observer) ObserveTrial(rec sim.TrialRecord) {
	o.trials.Inc()
	if o.next != nil {
		o.next.ObserveTrial(rec)
	}
}

func (o *observer) ObserveReplication(s sim.ReplicationSummary) {
	replicationsTotal.WithLabelValues(o.strategy, strconv.FormatBool(s.StoppedEarly)).Inc()
	o.length.Observe(float64(s.Trials))
	if o.next != nil {
		o.next.ObserveReplication(s)
	}
}

// RunStarted marks a run as active and returns a function that records its
// outcome and duration.
func RunStarted(strategy string) func(status string) {
	start := time.Now()
	activeRuns.Inc()
	return func(status string) {
		activeRuns.Dec()
		runsTotal.WithLabelValues(strategy, status).Inc()
		runDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	}
}

// ObserveHTTP records one served request. An empty route is reported as "unmatched".
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
