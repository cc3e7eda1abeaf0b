package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/common/middleware"
	"github.com/telhawk-systems/alertstream/consumer/internal/broker"
	"github.com/telhawk-systems/alertstream/consumer/internal/handlers"
	"github.com/telhawk-systems/alertstream/consumer/internal/livefeed"
	"github.com/telhawk-systems/alertstream/consumer/internal/orchestrator"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
	"github.com/telhawk-systems/alertstream/consumer/internal/sink"
)

func newTestRouter() http.Handler {
	orch := orchestrator.New(
		registry.NewMemoryRegistry(),
		broker.NewDialer(broker.DefaultOptions()),
		sink.NewMemorySink(),
		livefeed.New(10),
		orchestrator.DefaultConfig(),
		logging.Discard(),
	)
	return NewRouter(handlers.NewConsumerHandler(orch, time.Second, logging.Discard()), logging.Discard())
}

func TestNewRouter(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/consumers", http.StatusOK},
		{http.MethodPost, "/api/v1/consumers/start", http.StatusOK},
		{http.MethodPost, "/api/v1/consumers/refresh", http.StatusOK},
		{http.MethodPost, "/api/v1/consumers/stop", http.StatusOK},
		{http.MethodGet, "/api/v1/consumers/start", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
		})
	}
}
