package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemptions_total",
			Help: "Redemption attempts by outcome (accepted or a rejection kind).",
		},
		[]string{"outcome"},
	)

	redemptionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redemption_duration_ms",
			Help:    "Redemption call latency distribution in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"outcome"},
	)

	codesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "redemption_codes_issued_total",
			Help: "Count of single-use codes issued to users.",
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(redemptionsTotal, redemptionLatencyMs, codesIssuedTotal)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// RedemptionAccepted records one successful redemption.
func RedemptionAccepted(elapsed time.Duration) {
	observe("accepted", elapsed)
}

// RedemptionRejected records one rejected redemption with its error kind.
func RedemptionRejected(kind string, elapsed time.Duration) {
	observe(norm(kind), elapsed)
}

func observe(outcome string, elapsed time.Duration) {
	redemptionsTotal.WithLabelValues(outcome).Inc()
	redemptionLatencyMs.WithLabelValues(outcome).Observe(float64(elapsed.Milliseconds()))
}

// CodeIssued records one issued code.
func CodeIssued() {
	codesIssuedTotal.Inc()
}
