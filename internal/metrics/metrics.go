package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// sendsTotal counts delivery attempts.
	// Labels:
	// - provider: mailgun | sendgrid | smtp
	// - result: delivered | failed | not_attempted
	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaign",
			Subsystem: "delivery",
			Name:      "sends_total",
			Help:      "Delivery attempts by provider and result.",
		},
		[]string{"provider", "result"},
	)

	// runsTotal counts dispatch runs by how they ended.
	// Labels:
	// - result: completed | failed
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaign",
			Subsystem: "dispatch",
			Name:      "runs_total",
			Help:      "Dispatch runs by result.",
		},
		[]string{"result"},
	)

	// skippedTotal counts recipients claimed but not mailed.
	// Labels:
	// - reason: no_address | delivery_failed | not_attempted
	skippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaign",
			Subsystem: "dispatch",
			Name:      "recipients_skipped_total",
			Help:      "Claimed recipients released without a delivery.",
		},
		[]string{"reason"},
	)

	sentPerRun = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campaign",
		Subsystem: "dispatch",
		Name:      "sent_per_run",
		Help:      "Messages delivered per dispatch run.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	bulkAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "campaign",
		Subsystem: "delivery",
		Name:      "bulk_available",
		Help:      "Bulk provider availability (1=available, 0=unavailable).",
	}, []string{"provider"})
)

// IncSend increments the delivery attempt counter.
func IncSend(provider, result string) {
	if provider == "" {
		provider = "unknown"
	}
	sendsTotal.WithLabelValues(provider, result).Inc()
}

// ObserveRun records the outcome of a finished dispatch run.
func ObserveRun(sent int, err error) {
	result := "completed"
	if err != nil {
		result = "failed"
	}
	runsTotal.WithLabelValues(result).Inc()
	sentPerRun.Observe(float64(sent))
}

func IncSkipped(reason string) {
	skippedTotal.WithLabelValues(reason).Inc()
}

func SetBulkAvailable(provider string, ok bool) {
	if provider == "" {
		provider = "unknown"
	}
	v := 0.0
	if ok {
		v = 1
	}
	bulkAvailable.WithLabelValues(provider).Set(v)
}
