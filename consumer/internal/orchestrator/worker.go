package orchestrator

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/alert"
	"github.com/telhawk-systems/alertstream/consumer/internal/broker"
	"github.com/telhawk-systems/alertstream/consumer/internal/classifier"
	"github.com/telhawk-systems/alertstream/consumer/internal/livefeed"
	"github.com/telhawk-systems/alertstream/consumer/internal/metrics"
	"github.com/telhawk-systems/alertstream/consumer/internal/normalizer"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

// worker consumes one source. Messages are handled strictly in delivery order
// and cancellation is only observed between messages.
type worker struct {
	src      registry.SourceConfig
	dataType registry.DataType
	o        *Orchestrator
	logger   *logging.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	running   atomic.Bool

	processed     atomic.Uint64
	stored        atomic.Uint64
	dropped       atomic.Uint64
	receiveErrors atomic.Uint64
	storeErrors   atomic.Uint64

	errMu   sync.Mutex
	lastErr string
}

func newWorker(src registry.SourceConfig, dataType registry.DataType, o *Orchestrator) *worker {
	return &worker{
		src:      src,
		dataType: dataType,
		o:        o,
		logger: o.logger.With(
			logging.SourceID(src.ID.String()),
			logging.SourceName(src.Name),
			logging.Topic(src.Topic),
		),
		done: make(chan struct{}),
	}
}

func (w *worker) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.startedAt = time.Now().UTC()
	w.running.Store(true)
	go w.run(ctx)
}

func (w *worker) status() WorkerStatus {
	w.errMu.Lock()
	lastErr := w.lastErr
	w.errMu.Unlock()
	return WorkerStatus{
		SourceID:      w.src.ID,
		SourceName:    w.src.Name,
		Topic:         w.src.Topic,
		DataType:      w.dataType.String(),
		Running:       w.running.Load(),
		StartedAt:     w.startedAt,
		Processed:     w.processed.Load(),
		Stored:        w.stored.Load(),
		Dropped:       w.dropped.Load(),
		ReceiveErrors: w.receiveErrors.Load(),
		StoreErrors:   w.storeErrors.Load(),
		LastError:     lastErr,
	}
}

func (w *worker) setLastError(err error) {
	w.errMu.Lock()
	w.lastErr = err.Error()
	w.errMu.Unlock()
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.running.Store(false)

	var recv broker.Receiver
	defer func() {
		if recv != nil {
			if err := recv.Close(); err != nil {
				w.logger.Warn("Failed to close receiver", logging.Error(err))
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		if recv == nil {
			r, err := w.o.factory.NewReceiver(ctx, w.src)
			if err != nil {
				if !w.backoff(ctx, "Failed to open source", err) {
					return
				}
				continue
			}
			recv = r
		}

		msg, err := recv.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !w.backoff(ctx, "Receive failed, retrying", err) {
				return
			}
			continue
		}

		w.handle(ctx, msg)

		if err := recv.Commit(ctx, msg); err != nil && ctx.Err() == nil {
			w.logger.Warn("Failed to commit message", logging.Offset(msg.Offset), logging.Error(err))
		}
	}
}

// backoff records a transient failure and sleeps. It returns false when ctx
// was cancelled during the sleep.
func (w *worker) backoff(ctx context.Context, msg string, err error) bool {
	w.receiveErrors.Add(1)
	w.setLastError(err)
	metrics.ReceiveErrors.WithLabelValues(w.src.Name).Inc()
	w.logger.Warn(msg, logging.Error(err), "retry_in", w.o.cfg.RetryBackoff.String())

	t := time.NewTimer(w.o.cfg.RetryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *worker) drop(reason string) {
	w.dropped.Add(1)
	metrics.MessagesDropped.WithLabelValues(reason).Inc()
}

// handle runs one message through decode, classification, normalization and
// storage. Nothing here is retried.
func (w *worker) handle(ctx context.Context, msg *broker.Message) {
	w.processed.Add(1)
	metrics.MessagesReceived.WithLabelValues(w.src.Name).Inc()
	log := w.logger.With(logging.Partition(msg.Partition), logging.Offset(msg.Offset))

	if len(bytes.TrimSpace(msg.Value)) == 0 {
		log.Warn("Skipping empty message")
		w.drop(metrics.ReasonEmpty)
		return
	}

	text, replaced := decodeLossy(msg.Value)
	if replaced {
		log.Warn("Payload contained invalid UTF-8, replaced ill-formed sequences")
	}

	doc, err := alert.Decode([]byte(text))
	if err != nil {
		log.Warn("Dropping message that is not a JSON object", logging.Error(err))
		w.drop(metrics.ReasonInvalidJSON)
		return
	}

	res, err := classifier.Classify(doc, w.dataType)
	if err != nil {
		log.Debug("Dropping unrecognized message", logging.Error(err))
		w.drop(metrics.ReasonUnrecognized)
		return
	}
	if res.DeclaredMismatch {
		log.Info("Payload did not match declared type, classified by structure",
			"declared", w.dataType.String(),
			"classified_as", string(res.Kind),
		)
	}
	metrics.MessagesClassified.WithLabelValues(string(res.Kind)).Inc()

	prov := normalizer.Provenance{
		SourceID:   w.src.ID.String(),
		SourceName: w.src.Name,
		Topic:      msg.Topic,
		Partition:  msg.Partition,
		Offset:     msg.Offset,
	}
	common, specific, err := w.o.normalizer.Normalize(res, text, prov)
	if err != nil {
		log.Error("Failed to normalize alert", logging.Error(err))
		w.drop(metrics.ReasonNormalize)
		return
	}

	w.store(ctx, log, common, specific)

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	w.o.feed.Publish(livefeed.Envelope{
		Topic:        msg.Topic,
		Partition:    msg.Partition,
		Offset:       msg.Offset,
		Payload:      text,
		Timestamp:    ts,
		SourceID:     w.src.ID.String(),
		DataType:     w.dataType.String(),
		ClassifiedAs: string(res.Kind),
	})
}

// store writes the common record, then the type-specific one. The second
// write is skipped when the first fails. Writes are not interrupted by worker
// cancellation.
func (w *worker) store(ctx context.Context, log *logging.Logger, common *normalizer.CommonAlertRecord, specific normalizer.TypeSpecificRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.o.cfg.StoreTimeout)
	defer cancel()
	log = log.With(logging.RecordID(common.ID), logging.AlertKey(common.OriginalID), logging.DataType(string(common.DataType)))

	if err := w.timed(metrics.RecordCommon, func() error { return w.o.sink.StoreCommon(ctx, common) }); err != nil {
		log.Error("Failed to store common record", logging.Error(err))
		return
	}
	if err := w.timed(metrics.RecordTypeSpecific, func() error { return w.o.sink.StoreTypeSpecific(ctx, specific) }); err != nil {
		log.Error("Failed to store type-specific record after common record was stored", logging.Error(err))
		return
	}
	w.stored.Add(1)
}

func (w *worker) timed(record string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StoreDuration.WithLabelValues(record).Observe(time.Since(start).Seconds())
	if err != nil {
		w.storeErrors.Add(1)
		w.setLastError(err)
		metrics.StoreErrors.WithLabelValues(record).Inc()
	}
	return err
}

// decodeLossy returns b as a string, replacing ill-formed UTF-8 with U+FFFD.
// The bool reports whether any replacement happened.
func decodeLossy(b []byte) (string, bool) {
	if utf8.Valid(b) {
		return string(b), false
	}
	out, _, err := transform.Bytes(runes.ReplaceIllFormed(), b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte(string(utf8.RuneError)))), true
	}
	return string(out), true
}
