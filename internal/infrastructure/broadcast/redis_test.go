package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/core/id"
	"marketplace/internal/domain/inventory"
)

type fakeRedis struct {
	mu        sync.Mutex
	published map[string][]string
	keys      map[string]time.Duration
	block     chan struct{}
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{published: map[string][]string{}, keys: map[string]time.Duration{}}
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, _ any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = ttl
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func TestRedisBroadcaster_Channels(t *testing.T) {
	f := newFakeRedis()
	b := NewRedisBroadcaster(f, "mp:", 8)

	productID, variantID := id.New(), id.New()
	b.Publish(context.Background(), inventory.NotificationFor(&inventory.StockUnit{ProductID: productID, QuantityAvailable: 3}, time.Now()))
	b.Publish(context.Background(), inventory.NotificationFor(&inventory.StockUnit{ProductID: productID, VariantID: &variantID, QuantityAvailable: 1}, time.Now()))
	b.Close()

	require.Len(t, f.published["mp:stock:product:"+productID.String()], 1)
	require.Len(t, f.published["mp:stock:variant:"+variantID.String()], 1)
	assert.Contains(t, f.published["mp:stock:product:"+productID.String()][0], `"quantityAvailable":3`)
}

func TestRedisBroadcaster_DropsWhenFull(t *testing.T) {
	f := newFakeRedis()
	f.block = make(chan struct{})
	b := NewRedisBroadcaster(f, "", 1)

	n := inventory.NotificationFor(&inventory.StockUnit{ProductID: id.New()}, time.Now())
	for i := 0; i < 10; i++ {
		b.Publish(context.Background(), n)
	}
	close(f.block)
	b.Close()

	total := 0
	for _, msgs := range f.published {
		total += len(msgs)
	}
	assert.Less(t, total, 10)
	assert.GreaterOrEqual(t, total, 1)
}

func TestRedisBroadcaster_PublishAfterClose(t *testing.T) {
	f := newFakeRedis()
	b := NewRedisBroadcaster(f, "", 4)
	productID := id.New()
	n := inventory.NotificationFor(&inventory.StockUnit{ProductID: productID}, time.Now())

	b.Publish(context.Background(), n)
	b.Close()
	b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, func() { b.Publish(context.Background(), n) })
		}()
	}
	wg.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Len(t, f.published["stock:product:"+productID.String()], 1)
}

func TestRedisDeduper(t *testing.T) {
	f := newFakeRedis()
	d := NewRedisDeduper(f, "mp:", time.Hour)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "pay:ref-1:COMPLETE")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "pay:ref-1:COMPLETE"))
	seen, err = d.Seen(ctx, "pay:ref-1:COMPLETE")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, f.keys["mp:dedup:pay:ref-1:COMPLETE"])
}
