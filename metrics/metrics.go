package metrics

import (
	"net/http"

	"finality-project/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finality"

// Metrics exports chain index activity to Prometheus. It implements
// chain.Observer.
type Metrics struct {
	registry *prometheus.Registry

	bestHeight prometheus.Gauge
	tipCount   prometheus.Gauge
	accepted   prometheus.Counter
	rejected   *prometheus.CounterVec
	reorgs     prometheus.Counter
	reorgDepth prometheus.Histogram
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		bestHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_height",
			Help:      "Height of the active chain tip.",
		}),
		tipCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tip_count",
			Help:      "Number of valid chain tips.",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "headers_accepted_total",
			Help:      "Headers added to the block index.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "headers_rejected_total",
			Help:      "Headers refused by the block index.",
		}, []string{"reason"}),
		reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reorgs_total",
			Help:      "Active chain reorganizations.",
		}),
		reorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reorg_depth",
			Help:      "Blocks disconnected from the active chain per reorganization.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	m.registry.MustRegister(m.bestHeight, m.tipCount, m.accepted,
		m.rejected, m.reorgs, m.reorgDepth)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) HeaderAccepted(models.Block) {
	m.accepted.Inc()
}

func (m *Metrics) HeaderRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Reorganized(depth int64) {
	m.reorgs.Inc()
	m.reorgDepth.Observe(float64(depth))
}

func (m *Metrics) TipsChanged(tipCount int, bestHeight int64) {
	m.tipCount.Set(float64(tipCount))
	m.bestHeight.Set(float64(bestHeight))
}
