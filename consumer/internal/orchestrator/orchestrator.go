// Package orchestrator owns the set of running source workers.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/broker"
	"github.com/telhawk-systems/alertstream/consumer/internal/livefeed"
	"github.com/telhawk-systems/alertstream/consumer/internal/metrics"
	"github.com/telhawk-systems/alertstream/consumer/internal/normalizer"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
	"github.com/telhawk-systems/alertstream/consumer/internal/sink"
)

// Config tunes worker behaviour.
type Config struct {
	// RetryBackoff is the pause after a failed receive or connect.
	RetryBackoff time.Duration
	// StoreTimeout bounds each sink write.
	StoreTimeout time.Duration
}

// DefaultConfig returns the settings New falls back to for zero fields.
func DefaultConfig() Config {
	return Config{
		RetryBackoff: time.Second,
		StoreTimeout: 30 * time.Second,
	}
}

// WorkerStatus is a point-in-time view of one worker.
type WorkerStatus struct {
	SourceID      uuid.UUID `json:"source_id"`
	SourceName    string    `json:"source_name"`
	Topic         string    `json:"topic"`
	DataType      string    `json:"data_type"`
	Running       bool      `json:"running"`
	StartedAt     time.Time `json:"started_at"`
	Processed     uint64    `json:"processed"`
	Stored        uint64    `json:"stored"`
	Dropped       uint64    `json:"dropped"`
	ReceiveErrors uint64    `json:"receive_errors"`
	StoreErrors   uint64    `json:"store_errors"`
	LastError     string    `json:"last_error,omitempty"`
}

// Orchestrator starts one worker per active source and tears them down on
// Stop or Refresh. Start, Stop and Refresh are serialized.
type Orchestrator struct {
	registry   registry.SourceRegistry
	factory    broker.Factory
	sink       sink.AnalyticalSink
	normalizer *normalizer.Normalizer
	feed       *livefeed.Feed
	cfg        Config
	logger     *logging.Logger

	refreshMu sync.Mutex

	mu      sync.RWMutex
	workers map[uuid.UUID]*worker
}

// New builds an idle orchestrator. Call Start to spawn one worker per enabled source.
func New(reg registry.SourceRegistry, factory broker.Factory, store sink.AnalyticalSink, feed *livefeed.Feed, cfg Config, logger *logging.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if feed == nil {
		feed = livefeed.New(livefeed.DefaultCapacity)
	}
	feed.OnDrop(metrics.LiveFeedDropped.Inc)
	logger = logging.OrDefault(logger)
	return &Orchestrator{
		registry:   reg,
		factory:    factory,
		sink:       store,
		normalizer: normalizer.New(logger),
		feed:       feed,
		cfg:        cfg,
		logger:     logger,
		workers:    make(map[uuid.UUID]*worker),
	}
}

// Start spawns a worker for every active source. It is a no-op when workers
// are already running or when no source is active. A registry failure is
// returned and nothing is spawned.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()
	return o.start(ctx)
}

func (o *Orchestrator) start(ctx context.Context) error {
	if o.Running() {
		o.logger.InfoContext(ctx, "Consumers already running, start ignored")
		return nil
	}

	sources, err := o.registry.ListActiveSources(ctx)
	if err != nil {
		return fmt.Errorf("list active sources: %w", err)
	}
	mapping, err := o.registry.GetSourceTypeMapping(ctx)
	if err != nil {
		return fmt.Errorf("load source type mapping: %w", err)
	}

	if len(sources) == 0 {
		o.logger.InfoContext(ctx, "No active sources, orchestrator idle")
		return nil
	}

	// Workers outlive the request that started them.
	base := context.WithoutCancel(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, src := range sources {
		if _, dup := o.workers[src.ID]; dup {
			continue
		}
		w := newWorker(src, mapping[src.ID], o)
		o.workers[src.ID] = w
		w.start(base)
		o.logger.InfoContext(ctx, "Started consumer",
			logging.SourceID(src.ID.String()),
			logging.SourceName(src.Name),
			logging.Topic(src.Topic),
			logging.DataType(w.dataType.String()),
		)
	}
	metrics.ActiveWorkers.Set(float64(len(o.workers)))
	return nil
}

// Stop cancels every worker and waits for them to return, bounded by ctx.
// Stopping an idle orchestrator is a no-op.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()
	return o.stop(ctx)
}

func (o *Orchestrator) stop(ctx context.Context) error {
	o.mu.RLock()
	workers := make([]*worker, 0, len(o.workers))
	for _, w := range o.workers {
		workers = append(workers, w)
	}
	o.mu.RUnlock()

	if len(workers) == 0 {
		return nil
	}

	for _, w := range workers {
		w.cancel()
	}

	var waitErr error
	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			waitErr = fmt.Errorf("waiting for consumer %s to stop: %w", w.src.Name, ctx.Err())
		}
		if waitErr != nil {
			break
		}
	}

	o.mu.Lock()
	clear(o.workers)
	o.mu.Unlock()
	metrics.ActiveWorkers.Set(0)

	if waitErr != nil {
		o.logger.WarnContext(ctx, "Consumers did not stop in time", logging.Error(waitErr))
		return waitErr
	}
	o.logger.InfoContext(ctx, "Stopped consumers", "count", len(workers))
	return nil
}

// Refresh stops every worker and starts them again from the registry's
// current state. Messages arriving between the two steps are not consumed.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()

	if err := o.stop(ctx); err != nil {
		return err
	}
	return o.start(ctx)
}

// Status reports every tracked worker, ordered by source name then ID.
func (o *Orchestrator) Status() []WorkerStatus {
	o.mu.RLock()
	out := make([]WorkerStatus, 0, len(o.workers))
	for _, w := range o.workers {
		out = append(out, w.status())
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceName != out[j].SourceName {
			return out[i].SourceName < out[j].SourceName
		}
		return out[i].SourceID.String() < out[j].SourceID.String()
	})
	return out
}

// Running reports whether any worker is tracked.
func (o *Orchestrator) Running() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.workers) > 0
}

// Subscribe attaches a live-tail observer. It does not affect ingestion.
func (o *Orchestrator) Subscribe() *livefeed.Subscription {
	return o.feed.Subscribe()
}
