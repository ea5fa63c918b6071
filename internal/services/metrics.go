package services

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts upstream traffic. A nil *Metrics records nothing.
type Metrics struct {
	upstream  *prometheus.CounterVec
	exchanges *prometheus.CounterVec
	cache     *prometheus.CounterVec
}

// NewMetrics creates the service collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashx",
			Name:      "spotify_requests_total",
			Help:      "Spotify Web API requests by method, path and status (0 for transport errors).",
		}, []string{"method", "path", "status"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashx",
			Name:      "token_exchanges_total",
			Help:      "Refresh token exchanges by result.",
		}, []string{"result"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashx",
			Name:      "token_cache_lookups_total",
			Help:      "Access token cache lookups by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.upstream, m.exchanges, m.cache)
	}
	return m
}

func (m *Metrics) observeUpstream(method, path string, status int) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func (m *Metrics) observeExchange(result string) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(result).Inc()
}

func (m *Metrics) observeCache(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}
