package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/normalizer"
)

func newDedup(t *testing.T) (*miniredis.Miniredis, *MemorySink, *DedupSink) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := NewMemorySink()
	return mr, mem, NewDedupSink(mem, client, time.Hour, logging.Discard())
}

func TestDedupSink_SkipsRepeatedID(t *testing.T) {
	_, mem, s := newDedup(t)
	ctx := context.Background()

	require.NoError(t, s.StoreCommon(ctx, commonRecord("a")))
	require.NoError(t, s.StoreCommon(ctx, commonRecord("a")))
	require.NoError(t, s.StoreTypeSpecific(ctx, &normalizer.EdrRecord{ID: "a"}))
	require.NoError(t, s.StoreTypeSpecific(ctx, &normalizer.EdrRecord{ID: "a"}))

	common, specific := mem.Calls()
	assert.Equal(t, 1, common)
	assert.Equal(t, 1, specific)
}

func TestDedupSink_KeyExpires(t *testing.T) {
	mr, mem, s := newDedup(t)
	ctx := context.Background()

	require.NoError(t, s.StoreCommon(ctx, commonRecord("a")))
	mr.FastForward(2 * time.Hour)
	require.NoError(t, s.StoreCommon(ctx, commonRecord("a")))

	common, _ := mem.Calls()
	assert.Equal(t, 2, common)
}

func TestDedupSink_ReleasesKeyOnFailure(t *testing.T) {
	mr, mem, s := newDedup(t)
	ctx := context.Background()

	mem.FailCommon(errors.New("opensearch down"))
	require.Error(t, s.StoreCommon(ctx, commonRecord("a")))
	assert.False(t, mr.Exists(dedupKeyPrefix+"common:a"))

	mem.FailCommon(nil)
	require.NoError(t, s.StoreCommon(ctx, commonRecord("a")))
	assert.Len(t, mem.Common(), 1)
	assert.True(t, mr.Exists(dedupKeyPrefix+"common:a"))
}

func TestDedupSink_FailsOpenWithoutRedis(t *testing.T) {
	mr, mem, s := newDedup(t)
	mr.Close()

	require.NoError(t, s.StoreCommon(context.Background(), commonRecord("a")))
	assert.Len(t, mem.Common(), 1)
}
