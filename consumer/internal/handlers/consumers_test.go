package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/livefeed"
	"github.com/telhawk-systems/alertstream/consumer/internal/orchestrator"
)

type fakeController struct {
	mu       sync.Mutex
	calls    []string
	err      error
	statuses []orchestrator.WorkerStatus
	feed     *livefeed.Feed
}

func newFakeController() *fakeController {
	return &fakeController{feed: livefeed.New(10)}
}

func (c *fakeController) record(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	return c.err
}

func (c *fakeController) Start(context.Context) error   { return c.record("start") }
func (c *fakeController) Stop(context.Context) error    { return c.record("stop") }
func (c *fakeController) Refresh(context.Context) error { return c.record("refresh") }

func (c *fakeController) Status() []orchestrator.WorkerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses
}

func (c *fakeController) Running() bool { return len(c.Status()) > 0 }

func (c *fakeController) Subscribe() *livefeed.Subscription { return c.feed.Subscribe() }

func TestConsumerHandler_List(t *testing.T) {
	ctrl := newFakeController()
	id := uuid.New()
	ctrl.statuses = []orchestrator.WorkerStatus{{SourceID: id, SourceName: "edr", Topic: "alerts", DataType: "edr", Running: true}}
	h := NewConsumerHandler(ctrl, time.Second, logging.Discard())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/consumers", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Running)
	require.Len(t, resp.Consumers, 1)
	assert.Equal(t, id, resp.Consumers[0].SourceID)
}

func TestConsumerHandler_Actions(t *testing.T) {
	tests := []struct {
		name    string
		handler func(*ConsumerHandler) http.HandlerFunc
	}{
		{"start", func(h *ConsumerHandler) http.HandlerFunc { return h.Start }},
		{"stop", func(h *ConsumerHandler) http.HandlerFunc { return h.Stop }},
		{"refresh", func(h *ConsumerHandler) http.HandlerFunc { return h.Refresh }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			h := NewConsumerHandler(ctrl, time.Second, logging.Discard())

			rec := httptest.NewRecorder()
			tt.handler(h)(rec, httptest.NewRequest(http.MethodPost, "/api/v1/consumers/"+tt.name, nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []string{tt.name}, ctrl.calls)

			var resp ActionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.name, resp.Action)

			rec = httptest.NewRecorder()
			tt.handler(h)(rec, httptest.NewRequest(http.MethodGet, "/api/v1/consumers/"+tt.name, nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
		})
	}
}

func TestConsumerHandler_ActionFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.err = errors.New("registry unavailable")
	h := NewConsumerHandler(ctrl, time.Second, logging.Discard())

	rec := httptest.NewRecorder()
	h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/consumers/refresh", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "refresh_failed")
	assert.Contains(t, rec.Body.String(), "registry unavailable")
}

func TestConsumerHandler_Health(t *testing.T) {
	h := NewConsumerHandler(newFakeController(), 0, logging.Discard())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 30*time.Second, h.stopTimeout)
}

func TestConsumerHandler_HealthDependencies(t *testing.T) {
	h := NewConsumerHandler(newFakeController(), time.Second, logging.Discard())
	h.AddCheck("registry", func(context.Context) error { return nil })
	h.AddCheck("nats", func(context.Context) error { return errors.New("not connected") })

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["registry"])
	assert.Equal(t, "not connected", resp.Dependencies["nats"])
}

func TestConsumerHandler_LiveFeed(t *testing.T) {
	ctrl := newFakeController()
	h := NewConsumerHandler(ctrl, time.Second, logging.Discard())
	h.heartbeat = 20 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(h.LiveFeed))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?type=ngav", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return ctrl.feed.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	ctrl.feed.Publish(livefeed.Envelope{Topic: "t", Offset: 1, ClassifiedAs: "edr"})
	ctrl.feed.Publish(livefeed.Envelope{Topic: "t", Offset: 2, ClassifiedAs: "ngav"})

	scanner := bufio.NewScanner(resp.Body)
	var data string
	deadline := time.After(2 * time.Second)
	for data == "" {
		select {
		case <-deadline:
			t.Fatal("no event received")
		default:
		}
		require.True(t, scanner.Scan())
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		}
	}

	var env livefeed.Envelope
	require.NoError(t, json.Unmarshal([]byte(data), &env))
	assert.Equal(t, int64(2), env.Offset, "edr envelope filtered out")

	cancel()
	require.Eventually(t, func() bool { return ctrl.feed.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestConsumerHandler_LiveFeedOutlivesWriteTimeout(t *testing.T) {
	ctrl := newFakeController()
	h := NewConsumerHandler(ctrl, time.Second, logging.Discard())
	h.heartbeat = time.Minute
	srv := httptest.NewUnstartedServer(http.HandlerFunc(h.LiveFeed))
	srv.Config.WriteTimeout = 300 * time.Millisecond
	srv.Start()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return ctrl.feed.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	ctrl.feed.Publish(livefeed.Envelope{Topic: "t", Offset: 7, ClassifiedAs: "edr"})

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for data == "" {
		require.True(t, scanner.Scan(), "stream closed: %v", scanner.Err())
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		}
	}

	var env livefeed.Envelope
	require.NoError(t, json.Unmarshal([]byte(data), &env))
	assert.Equal(t, int64(7), env.Offset)
}

func TestConsumerHandler_LiveFeedMethod(t *testing.T) {
	h := NewConsumerHandler(newFakeController(), time.Second, logging.Discard())
	rec := httptest.NewRecorder()
	h.LiveFeed(rec, httptest.NewRequest(http.MethodPost, "/api/v1/livefeed", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
