package diskaio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver exports engine observations as Prometheus metrics.
type PrometheusObserver struct {
	ops          *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	patterns     *prometheus.CounterVec
	inFlight     prometheus.Gauge
	slowDisk     *prometheus.CounterVec
	backpressure prometheus.Counter
}

// NewPrometheusObserver registers the engine collectors on reg under the
// "diskaio" namespace. constLabels (e.g. {"device": "/dev/sdb"}) are
// attached to every series. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer, constLabels prometheus.Labels) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusObserver{
		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "diskaio",
			Name:        "operations_total",
			Help:        "Completed I/O operations by kind and result.",
			ConstLabels: constLabels,
		}, []string{"op", "result"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "diskaio",
			Name:        "bytes_total",
			Help:        "Bytes transferred by successful operations.",
			ConstLabels: constLabels,
		}, []string{"op"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "diskaio",
			Name:        "operation_duration_seconds",
			Help:        "Dispatch to completion latency.",
			Buckets:     []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1},
			ConstLabels: constLabels,
		}, []string{"op"}),
		patterns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "diskaio",
			Name:        "pattern_total",
			Help:        "Completed operations by inferred access pattern.",
			ConstLabels: constLabels,
		}, []string{"pattern"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "diskaio",
			Name:        "in_flight",
			Help:        "Operations submitted and not yet completed.",
			ConstLabels: constLabels,
		}),
		slowDisk: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "diskaio",
			Name:        "slow_disk_transitions_total",
			Help:        "Healthy to slow transitions by I/O class.",
			ConstLabels: constLabels,
		}, []string{"class"}),
		backpressure: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "diskaio",
			Name:        "backpressure_total",
			Help:        "Completions that found the delivery queue full.",
			ConstLabels: constLabels,
		}),
	}
}

func (p *PrometheusObserver) observe(op string, bytes, latencyNs uint64, success bool) {
	result := "ok"
	if !success {
		result = "error"
	} else {
		p.bytes.WithLabelValues(op).Add(float64(bytes))
	}
	p.ops.WithLabelValues(op, result).Inc()
	p.latency.WithLabelValues(op).Observe(float64(latencyNs) / 1e9)
}

func (p *PrometheusObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	p.observe("read", bytes, latencyNs, success)
}

func (p *PrometheusObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	p.observe("write", bytes, latencyNs, success)
}

func (p *PrometheusObserver) ObservePattern(sequential bool) {
	if sequential {
		p.patterns.WithLabelValues("sequential").Inc()
	} else {
		p.patterns.WithLabelValues("random").Inc()
	}
}

func (p *PrometheusObserver) ObserveInFlight(n uint32) {
	p.inFlight.Set(float64(n))
}

func (p *PrometheusObserver) ObserveSlowDisk(class string) {
	p.slowDisk.WithLabelValues(class).Inc()
}

func (p *PrometheusObserver) ObserveBackpressure() {
	p.backpressure.Inc()
}

var _ Observer = (*PrometheusObserver)(nil)
