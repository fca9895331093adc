package notify

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for notification dispatch.
type Metrics struct {
	SentTotal    *prometheus.CounterVec
	SkippedTotal *prometheus.CounterVec
	BatchSize    prometheus.Histogram
}

// NewMetrics creates and registers dispatch metrics. sync.Once guards
// against duplicate collector registration when multiple dispatchers are
// built in one process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SentTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rallyd_notifications_sent_total",
					Help: "Total notifications delivered, by channel",
				},
				[]string{"channel"}, // "sms" or "inapp"
			),
			SkippedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rallyd_notifications_skipped_total",
					Help: "Total notifications skipped, by channel and reason",
				},
				[]string{"channel", "reason"},
			),
			BatchSize: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "rallyd_notification_batch_size",
					Help:    "Recipients per dispatch batch",
					Buckets: prometheus.LinearBuckets(1, 2, 8),
				},
			),
		}
	})
	return globalMetrics
}
