package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream key downstream consumers read with XREAD/consumer groups.
const streamKey = "capcall:events"

// RedisPublisher appends events to a redis stream so out-of-process consumers
// (indexers, notification fan-out) can tail the lifecycle.
type RedisPublisher struct {
	client *redis.Client
	maxLen int64
}

// RedisPublisherOption configures a RedisPublisher.
type RedisPublisherOption func(*RedisPublisher)

// WithMaxLen caps the stream length (approximate trimming).
func WithMaxLen(n int64) RedisPublisherOption {
	return func(p *RedisPublisher) { p.maxLen = n }
}

// NewRedisPublisher constructs a redis-stream publisher.
func NewRedisPublisher(client *redis.Client, opts ...RedisPublisherOption) *RedisPublisher {
	p := &RedisPublisher{client: client, maxLen: 100000}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *RedisPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":         string(event.Kind),
			"capital_call": event.Call.String(),
			"payload":      payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd event: %w", err)
	}
	return nil
}
