// Package broadcast pushes stock notifications to Redis pub/sub and keeps
// short-lived dedup keys for gateway webhooks.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace/internal/domain/inventory"
	"marketplace/internal/domain/orders"
	"marketplace/pkg/logger"
)

// NewClient opens a Redis client and checks it answers.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Publisher is the part of *redis.Client the broadcaster uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type job struct {
	channel string
	payload []byte
}

// RedisBroadcaster implements inventory.Broadcaster. Publish only enqueues;
// a single goroutine drains the queue, and a full queue drops the message.
// Notifications published after Close are dropped.
type RedisBroadcaster struct {
	rdb    Publisher
	prefix string
	queue  chan job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ inventory.Broadcaster = (*RedisBroadcaster)(nil)

func NewRedisBroadcaster(rdb Publisher, prefix string, buffer int) *RedisBroadcaster {
	if buffer <= 0 {
		buffer = 256
	}
	b := &RedisBroadcaster{rdb: rdb, prefix: prefix, queue: make(chan job, buffer)}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Channel is "<prefix>stock:product:<id>" or "<prefix>stock:variant:<id>".
func (b *RedisBroadcaster) Channel(n inventory.Notification) string {
	return fmt.Sprintf("%sstock:%s:%s", b.prefix, n.Scope, n.ID)
}

func (b *RedisBroadcaster) Publish(ctx context.Context, n inventory.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		logger.Warn(ctx, "stock broadcast marshal failed", "error", err)
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		logger.Debug(ctx, "stock broadcast after close, dropping", "product_id", n.ProductID, "scope", n.Scope)
		return
	}
	select {
	case b.queue <- job{channel: b.Channel(n), payload: payload}:
	default:
		logger.Warn(ctx, "stock broadcast queue full, dropping", "product_id", n.ProductID, "scope", n.Scope)
	}
}

func (b *RedisBroadcaster) loop() {
	defer b.wg.Done()
	for j := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := b.rdb.Publish(ctx, j.channel, j.payload).Err(); err != nil {
			logger.Warn(ctx, "stock broadcast failed", "channel", j.channel, "error", err)
		}
		cancel()
	}
}

// Close flushes queued notifications and stops the sender.
func (b *RedisBroadcaster) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// KeyValue is the part of *redis.Client the deduper uses.
type KeyValue interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisDeduper remembers processed webhook keys for ttl.
type RedisDeduper struct {
	rdb    KeyValue
	prefix string
	ttl    time.Duration
}

var _ orders.Deduper = (*RedisDeduper)(nil)

func NewRedisDeduper(rdb KeyValue, prefix string, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) key(k string) string { return d.prefix + "dedup:" + k }

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup exists: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, key string) error {
	if err := d.rdb.Set(ctx, d.key(key), "1", d.ttl).Err(); err != nil {
		return fmt.Errorf("dedup set: %w", err)
	}
	return nil
}
