package sink

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/metrics"
	"github.com/telhawk-systems/alertstream/consumer/internal/normalizer"
)

const dedupKeyPrefix = "alertstream:dedup:"

// DedupSink skips records whose ID was already written within the TTL. It
// fails open: when Redis is unavailable writes go through to the wrapped sink.
type DedupSink struct {
	next   AnalyticalSink
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewDedupSink(next AnalyticalSink, client *redis.Client, ttl time.Duration, logger *logging.Logger) *DedupSink {
	return &DedupSink{
		next:   next,
		redis:  client,
		ttl:    ttl,
		logger: logging.OrDefault(logger),
	}
}

func (s *DedupSink) StoreCommon(ctx context.Context, rec *normalizer.CommonAlertRecord) error {
	return s.once(ctx, dedupKeyPrefix+"common:"+rec.ID, func() error {
		return s.next.StoreCommon(ctx, rec)
	})
}

func (s *DedupSink) StoreTypeSpecific(ctx context.Context, rec normalizer.TypeSpecificRecord) error {
	key := dedupKeyPrefix + string(rec.DataType()) + ":" + rec.RecordID()
	return s.once(ctx, key, func() error {
		return s.next.StoreTypeSpecific(ctx, rec)
	})
}

func (s *DedupSink) once(ctx context.Context, key string, write func() error) error {
	claimed, err := s.redis.SetNX(ctx, key, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		s.logger.Warn("Dedup check failed, writing anyway", "key", key, logging.Error(err))
		return write()
	}
	if !claimed {
		metrics.DedupSkipped.Inc()
		s.logger.Debug("Skipping duplicate record", "key", key)
		return nil
	}

	if err := write(); err != nil {
		if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
			s.logger.Warn("Failed to release dedup key", "key", key, logging.Error(delErr))
		}
		return err
	}
	return nil
}
