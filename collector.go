package kt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// StatsCollector exposes a client's ClientStats as Prometheus metrics.
// Values are read from the client on every scrape.
type StatsCollector struct {
	client *Client

	calls        *prometheus.Desc
	operations   *prometheus.Desc
	getHits      *prometheus.Desc
	unmet        *prometheus.Desc
	errors       *prometheus.Desc
	timeouts     *prometheus.Desc
	orphans      *prometheus.Desc
	inFlight     *prometheus.Desc
	breakerState *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector creates a collector for client. Metric names are
// prefixed with namespace ("kt" when empty).
func NewStatsCollector(client *Client, namespace string) *StatsCollector {
	if namespace == "" {
		namespace = "kt"
	}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &StatsCollector{
		client:       client,
		calls:        desc("requests_total", "Requests written, by protocol", "protocol"),
		operations:   desc("operations_total", "Calls by operation family", "operation"),
		getHits:      desc("get_hits_total", "Get and seize calls that found the key"),
		unmet:        desc("condition_not_met_total", "Add, replace and cas calls whose condition did not hold"),
		errors:       desc("errors_total", "Calls that returned an error"),
		timeouts:     desc("timeouts_total", "Waits abandoned with the outcome unknown"),
		orphans:      desc("orphan_failures_total", "Connection failures with no pending operation"),
		inFlight:     desc("in_flight", "Operations waiting for a response"),
		breakerState: desc("circuit_breaker_state", "Circuit breaker state (0=closed, 1=half-open, 2=open)"),
	}
}

// Describe implements prometheus.Collector.
func (sc *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sc.calls
	ch <- sc.operations
	ch <- sc.getHits
	ch <- sc.unmet
	ch <- sc.errors
	ch <- sc.timeouts
	ch <- sc.orphans
	ch <- sc.inFlight
	ch <- sc.breakerState
}

// Collect implements prometheus.Collector.
func (sc *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := sc.client.Stats()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(sc.calls, s.BinaryCalls, "binary")
	counter(sc.calls, s.TextCalls, "tsvrpc")
	counter(sc.operations, s.Gets, "get")
	counter(sc.operations, s.Sets, "set")
	counter(sc.operations, s.Removes, "remove")
	counter(sc.operations, s.Increments, "increment")
	counter(sc.getHits, s.GetHits)
	counter(sc.unmet, s.Unmet)
	counter(sc.errors, s.Errors)
	counter(sc.timeouts, s.Timeouts)
	counter(sc.orphans, s.Orphans)

	ch <- prometheus.MustNewConstMetric(sc.inFlight, prometheus.GaugeValue, float64(s.InFlight))
	ch <- prometheus.MustNewConstMetric(sc.breakerState, prometheus.GaugeValue, breakerStateValue(sc.client.BreakerState()))
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
