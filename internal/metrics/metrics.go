package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "elections"

var (
	httpRequestsTotal   *prometheus.CounterVec
	votesTotal          *prometheus.CounterVec
	tallyFailuresTotal  prometheus.Counter
	invariantViolations prometheus.Counter
	phaseTransitions    prometheus.Counter
	pendingRepairs      prometheus.Gauge
	registerOnce        sync.Once
)

// Register initializes Prometheus metrics on the default registry.
// Until it is called every recorder below is a no-op.
func Register() {
	registerOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed by the election API.",
		}, []string{"method", "path", "status"})
		votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Vote submissions by result.",
		}, []string{"result"})
		tallyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tally_update_failures_total",
			Help:      "Tally updates that gave up after retries and were left to reconciliation.",
		})
		invariantViolations = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tally_invariant_violations_total",
			Help:      "Reconciliation runs that found counters out of line with ballots.",
		})
		phaseTransitions = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Display phase changes persisted by the phase sweeper.",
		})
		pendingRepairs = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_tally_repairs",
			Help:      "Elections waiting for reconciliation after a failed tally update.",
		})
	})
}

// IncRequest increments the http_requests_total counter with the given labels.
func IncRequest(method, path string, status int) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func IncVote(result string) {
	if votesTotal == nil {
		return
	}
	votesTotal.WithLabelValues(result).Inc()
}

func IncTallyFailure() {
	if tallyFailuresTotal == nil {
		return
	}
	tallyFailuresTotal.Inc()
}

func IncInvariantViolation() {
	if invariantViolations == nil {
		return
	}
	invariantViolations.Inc()
}

func AddPhaseTransitions(n int) {
	if phaseTransitions == nil || n <= 0 {
		return
	}
	phaseTransitions.Add(float64(n))
}

func SetPendingRepairs(n int) {
	if pendingRepairs == nil {
		return
	}
	pendingRepairs.Set(float64(n))
}
