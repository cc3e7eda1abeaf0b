package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/common/middleware"
	"github.com/telhawk-systems/alertstream/consumer/internal/handlers"
)

// NewRouter wires HTTP routes for the consumer service.
func NewRouter(h *handlers.ConsumerHandler, logger *logging.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Health)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/consumers", h.List)
	mux.HandleFunc("/api/v1/consumers/start", h.Start)
	mux.HandleFunc("/api/v1/consumers/stop", h.Stop)
	mux.HandleFunc("/api/v1/consumers/refresh", h.Refresh)
	mux.HandleFunc("/api/v1/livefeed", h.LiveFeed)
	return middleware.RequestID(AccessLog(logger)(mux))
}
