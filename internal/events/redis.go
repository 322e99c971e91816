package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/ledger"
)

// DefaultStream is the stream (or topic) logs are published to.
const DefaultStream = "stream:wallet"

const defaultStreamMaxLen = 100_000

// RedisStreamPublisher appends logs to a Redis stream.
type RedisStreamPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamPublisher builds a publisher writing to stream, trimming it to roughly maxLen entries.
func NewRedisStreamPublisher(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish XADDs the log with one field per envelope attribute.
func (p *RedisStreamPublisher) Publish(ctx context.Context, log ledger.Log) error {
	env := NewEnvelope(log)
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":         env.ID,
			"contract":   env.Contract,
			"topic":      env.Topic,
			"data":       string(env.Data),
			"created_at": env.CreatedAt.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
