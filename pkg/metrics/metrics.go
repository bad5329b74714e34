package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 业务与 HTTP 指标
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	dispatchTotal    *prometheus.CounterVec
	deliveryTotal    *prometheus.CounterVec
	deliveryDuration prometheus.Histogram
	queueDepth       prometheus.Gauge
	retryScanTotal   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "emergency_dispatch_total",
			Help: "Emergency dispatches by outcome state",
		}, []string{"outcome"}),
		deliveryTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "emergency_delivery_total",
			Help: "Per-contact delivery attempts by channel and status",
		}, []string{"channel", "status"}),
		deliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "emergency_delivery_duration_seconds",
			Help:    "Wall time of a full dispatch attempt",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "emergency_queue_depth",
			Help: "Payloads waiting for retry",
		}),
		retryScanTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "emergency_retry_scan_total",
			Help: "Retry scan runs",
		}),
	}
}

func (m *Metrics) RecordHTTP(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDispatch outcome 为会话终点（active/queued/failed）
func (m *Metrics) RecordDispatch(outcome string, duration time.Duration) {
	m.dispatchTotal.WithLabelValues(outcome).Inc()
	m.deliveryDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordDelivery(channel, status string) {
	m.deliveryTotal.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) SetQueueDepth(n int64) {
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) RecordRetryScan() {
	m.retryScanTotal.Inc()
}
