package infra

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/config"
	"github.com/congo-pay/custody/internal/events"
)

const streamMaxLen = 100_000

// NewPublisher builds the event publisher selected by EVENT_SINK. Every sink
// also logs events. The returned close function releases the sink.
func NewPublisher(cfg config.Config, cache *redis.Client, logger *slog.Logger) (events.Publisher, func(), error) {
	logPub := events.NewLogPublisher(logger)
	switch cfg.EventSink {
	case config.SinkLog:
		return logPub, func() {}, nil
	case config.SinkRedis:
		if cache == nil {
			return nil, nil, fmt.Errorf("redis event sink requires REDIS_URL")
		}
		return events.Multi{logPub, events.NewRedisStreamPublisher(cache, cfg.EventStream, streamMaxLen)}, func() {}, nil
	case config.SinkKafka:
		kp, err := events.NewKafkaPublisher(cfg.KafkaServers, cfg.EventStream)
		if err != nil {
			return nil, nil, err
		}
		return events.Multi{logPub, kp}, kp.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown event sink %q", cfg.EventSink)
	}
}
