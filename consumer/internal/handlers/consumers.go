package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/alertstream/common/httputil"
	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/livefeed"
	"github.com/telhawk-systems/alertstream/consumer/internal/orchestrator"
)

// Controller is the administrative surface of the orchestrator.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Refresh(ctx context.Context) error
	Status() []orchestrator.WorkerStatus
	Running() bool
	Subscribe() *livefeed.Subscription
}

// ConsumerHandler exposes consumer control and live tail over HTTP.
type ConsumerHandler struct {
	ctrl        Controller
	stopTimeout time.Duration
	heartbeat   time.Duration
	startedAt   time.Time
	logger      *logging.Logger
	checks      []dependencyCheck
}

type dependencyCheck struct {
	name  string
	check func(context.Context) error
}

func NewConsumerHandler(ctrl Controller, stopTimeout time.Duration, logger *logging.Logger) *ConsumerHandler {
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	return &ConsumerHandler{
		ctrl:        ctrl,
		stopTimeout: stopTimeout,
		heartbeat:   15 * time.Second,
		startedAt:   time.Now().UTC(),
		logger:      logging.OrDefault(logger),
	}
}

// AddCheck registers a dependency probe reported by /healthz.
func (h *ConsumerHandler) AddCheck(name string, check func(context.Context) error) {
	h.checks = append(h.checks, dependencyCheck{name: name, check: check})
}

// StatusResponse lists the tracked consumers.
type StatusResponse struct {
	Running   bool                        `json:"running"`
	Consumers []orchestrator.WorkerStatus `json:"consumers"`
}

// ActionResponse is returned by the start, stop and refresh endpoints.
type ActionResponse struct {
	Action    string                      `json:"action"`
	Consumers []orchestrator.WorkerStatus `json:"consumers"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status        string            `json:"status"`
	Consumers     int               `json:"consumers"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
}

// Health handles GET /healthz.
func (h *ConsumerHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	resp := HealthResponse{
		Status:        "ok",
		Consumers:     len(h.ctrl.Status()),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	code := http.StatusOK
	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp.Dependencies = make(map[string]string, len(h.checks))
		for _, c := range h.checks {
			if err := c.check(ctx); err != nil {
				resp.Dependencies[c.name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Dependencies[c.name] = "ok"
		}
	}
	httputil.WriteJSON(w, code, resp)
}

// List handles GET /api/v1/consumers.
func (h *ConsumerHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Running:   h.ctrl.Running(),
		Consumers: h.ctrl.Status(),
	})
}

// Start handles POST /api/v1/consumers/start.
func (h *ConsumerHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "start", h.ctrl.Start)
}

// Stop handles POST /api/v1/consumers/stop.
func (h *ConsumerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "stop", h.ctrl.Stop)
}

// Refresh handles POST /api/v1/consumers/refresh.
func (h *ConsumerHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, "refresh", h.ctrl.Refresh)
}

func (h *ConsumerHandler) action(w http.ResponseWriter, r *http.Request, name string, fn func(context.Context) error) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.stopTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		h.logger.ErrorContext(r.Context(), "Consumer action failed", "action", name, logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, name+"_failed", err.Error())
		return
	}
	h.logger.InfoContext(r.Context(), "Consumer action completed", "action", name)
	httputil.WriteJSON(w, http.StatusOK, ActionResponse{Action: name, Consumers: h.ctrl.Status()})
}

// LiveFeed handles GET /api/v1/livefeed as a server-sent event stream. The
// optional type query parameter filters by data type.
func (h *ConsumerHandler) LiveFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
		return
	}
	// The stream outlives the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to clear live feed write deadline", logging.Error(err))
	}
	filter := strings.ToLower(r.URL.Query().Get("type"))

	sub := h.ctrl.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			if filter != "" && env.RoutingType() != filter {
				continue
			}
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: alert\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
