package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tutoring"

var (
	once sync.Once

	paymentOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_outcomes_total",
			Help:      "Count of payment attempts by outcome.",
		},
		[]string{"outcome"},
	)

	hashMintFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hash_mint_failures_total",
			Help:      "Count of failed PayHere hash requests.",
		},
	)

	scriptLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_script_loads_total",
			Help:      "Count of PayHere checkout script probes by source and result.",
		},
		[]string{"source", "result"},
	)

	holdsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_holds_expired_total",
			Help:      "Count of slot holds expired by the sweeper.",
		},
	)

	notifyRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payhere_notify_rejected_total",
			Help:      "Count of PayHere notifications rejected by reason.",
		},
		[]string{"reason"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(paymentOutcomes, hashMintFailures, scriptLoads, holdsExpired, notifyRejected)
	})
}

func IncPaymentOutcome(outcome string) {
	paymentOutcomes.WithLabelValues(outcome).Inc()
}

func IncHashMintFailure() {
	hashMintFailures.Inc()
}

func IncScriptLoad(source, result string) {
	scriptLoads.WithLabelValues(source, result).Inc()
}

func AddHoldsExpired(n int) {
	holdsExpired.Add(float64(n))
}

func IncNotifyRejected(reason string) {
	notifyRejected.WithLabelValues(reason).Inc()
}
