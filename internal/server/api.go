package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dashx/internal/services"
	"github.com/desertthunder/dashx/internal/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIOpts configures [NewAPI].
type APIOpts struct {
	Spotify     SpotifyAPI
	Credentials services.Credentials // fallback when a request omits them
	Logger      *log.Logger
	Registry    *prometheus.Registry // nil disables /metrics and request metrics
	RateLimiter *RateLimiter         // nil disables rate limiting
	Version     string
}

// NewAPI assembles the dashboard API: the Spotify routes, /healthz and /metrics behind the
// request id, logging, recovery, security header, metrics and rate limit middleware.
func NewAPI(opts APIOpts) *BasicRouter {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	var metrics *HTTPMetrics
	if opts.Registry != nil {
		metrics = NewHTTPMetrics(opts.Registry)
	}

	r := NewBasicRouter()
	r.Use(
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		RecoverMiddleware(logger),
		SecurityHeadersMiddleware(),
		MetricsMiddleware(metrics),
		RateLimitMiddleware(opts.RateLimiter),
	)

	r.Handler(NewSpotifyHandler(opts.Spotify, opts.Credentials, logger))
	r.Handle(http.MethodGet, "/healthz", healthHandler(opts.Version))
	if opts.Registry != nil {
		r.Handle(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

func healthHandler(version string) http.Handler {
	started := time.Now()
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": version,
			"uptime":  time.Since(started).Round(time.Second).String(),
		})
	})
}
