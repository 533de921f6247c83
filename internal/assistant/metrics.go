package assistant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var upstreamRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "film4u_assistant_upstream_requests_total",
		Help: "Chat completion calls by model and outcome",
	},
	[]string{"model", "outcome"},
)

var fallbackSearchesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "film4u_assistant_local_search_total",
		Help: "Recommendations answered by the local keyword search",
	},
)
