// Package metrics provides observability for the harvest engine.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks harvest request outcomes and the engine's internal work per
// external request.
type Metrics struct {
	Requests            *prometheus.CounterVec
	BackendHops         prometheus.Histogram
	TenantAdvances      prometheus.Counter
	TokenDecodeFailures prometheus.Counter
}

// New registers all harvest engine metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oai_edge_requests_total",
			Help: "Harvest requests by verb and caller-visible status",
		}, []string{"verb", "status"}),
		BackendHops: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "oai_edge_backend_hops",
			Help:    "Internal backend calls issued per external request",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
		TenantAdvances: promauto.NewCounter(prometheus.CounterOpts{
			Name: "oai_edge_tenant_advances_total",
			Help: "Times the engine crossed a tenant boundary inside one request",
		}),
		TokenDecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "oai_edge_token_decode_failures_total",
			Help: "Incoming resumption tokens the gateway could not decode",
		}),
	}
}

// ObserveRequest records one completed external request.
func (m *Metrics) ObserveRequest(verb string, status, hops, advances int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(verb, strconv.Itoa(status)).Inc()
	m.BackendHops.Observe(float64(hops))
	if advances > 0 {
		m.TenantAdvances.Add(float64(advances))
	}
}

// IncrementTokenDecodeFailure records a rejected incoming token.
func (m *Metrics) IncrementTokenDecodeFailure() {
	if m == nil {
		return
	}
	m.TokenDecodeFailures.Inc()
}
