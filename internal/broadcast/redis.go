package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOptions configures the Redis fan-out
type RedisOptions struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
	Buffer        int
}

type redisMessage struct {
	channel string
	payload []byte
}

// RedisSink publishes broadcasts to Redis channels <prefix>:<topic> so
// other instances can relay them to their own dashboards. Publishing runs
// on a dedicated goroutine; a full buffer drops the message.
type RedisSink struct {
	client *redis.Client
	prefix string
	queue  chan redisMessage
	logger zerolog.Logger
}

// NewRedisSink connects to Redis and verifies connectivity
func NewRedisSink(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	logger = logger.With().Str("component", "redis_sink").Logger()
	logger.Info().Str("addr", opts.Addr).Msg("redis client connected")

	return &RedisSink{
		client: client,
		prefix: opts.ChannelPrefix,
		queue:  make(chan redisMessage, buffer),
		logger: logger,
	}, nil
}

// Publish queues the payload for the publishing goroutine
func (s *RedisSink) Publish(topic string, payload []byte) {
	select {
	case s.queue <- redisMessage{channel: s.prefix + ":" + topic, payload: payload}:
	default:
		metrics.Get().RecordSinkDrop("redis")
		s.logger.Warn().Str("topic", topic).Msg("redis publish buffer full, dropping")
	}
}

// Run publishes queued messages until ctx is cancelled
func (s *RedisSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.client.Close()
			return
		case msg := <-s.queue:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := s.client.Publish(pctx, msg.channel, msg.payload).Err()
			cancel()
			if err != nil {
				s.logger.Warn().Err(err).Str("channel", msg.channel).Msg("redis publish failed")
			}
		}
	}
}
