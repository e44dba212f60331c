package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mangrove/catalog"
	apperrors "mangrove/errors"
)

const metricsSubsystem = "mangrove_dial"

var (
	dialLabels = []string{"service", "region"}

	// DialLatencyBuckets span fast local dials up to slow cross-continent handshakes.
	DialLatencyBuckets = []float64{
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
	}
)

// DialMetrics holds the collectors fed by MetricsMiddleware.
type DialMetrics struct {
	total    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
}

// NewDialMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewDialMetrics(reg prometheus.Registerer) *DialMetrics {
	m := &DialMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: metricsSubsystem,
				Name:      "total",
				Help:      "Counter of dial-outs broken out by service and region.",
			},
			dialLabels,
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: metricsSubsystem,
				Name:      "error_total",
				Help:      "Counter of failed dial-outs broken out by service, region and error code.",
			},
			append(append([]string{}, dialLabels...), "error_code"),
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: metricsSubsystem,
				Name:      "duration_seconds",
				Help:      "Dial-out latency distribution in seconds.",
				Buckets:   DialLatencyBuckets,
			},
			dialLabels,
		),
		inflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Subsystem: metricsSubsystem,
				Name:      "inflight",
				Help:      "Dial-outs currently in progress.",
			},
			dialLabels,
		),
	}
	if reg != nil {
		reg.MustRegister(m.total, m.errors, m.duration, m.inflight)
	}
	return m
}

func MetricsMiddleware(m *DialMetrics) Middleware {
	return func(next DialFunc) DialFunc {
		return func(ctx context.Context, req Request) (catalog.Conn, error) {
			inflight := m.inflight.WithLabelValues(req.Service, req.Region)
			inflight.Inc()
			defer inflight.Dec()

			start := time.Now()
			conn, err := next(ctx, req)
			m.total.WithLabelValues(req.Service, req.Region).Inc()
			m.duration.WithLabelValues(req.Service, req.Region).Observe(time.Since(start).Seconds())
			if err != nil {
				m.errors.WithLabelValues(req.Service, req.Region, string(apperrors.CodeOf(err))).Inc()
			}
			return conn, err
		}
	}
}
