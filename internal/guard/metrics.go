package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts admission decisions by caller kind and outcome.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "film4u_guard_decisions_total",
			Help: "Total number of AI request admission decisions",
		},
		[]string{"caller", "outcome"},
	)

	// StoreFailuresTotal counts quota store failures by store kind.
	StoreFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "film4u_guard_store_failures_total",
			Help: "Total number of quota store failures seen by the guard",
		},
		[]string{"store"},
	)

	// GuestStoreFallbacksTotal counts guest quota checks served by the in-memory fallback.
	GuestStoreFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "film4u_guard_guest_store_fallbacks_total",
			Help: "Total number of guest quota operations served from memory while Redis was unavailable",
		},
	)
)

func recordDecision(kind string, decision Decision) {
	outcome := "admitted"
	if !decision.Admitted {
		outcome = decision.Reason.String()
	}
	DecisionsTotal.WithLabelValues(kind, outcome).Inc()
}

func recordStoreFailure(store string) {
	StoreFailuresTotal.WithLabelValues(store).Inc()
}
