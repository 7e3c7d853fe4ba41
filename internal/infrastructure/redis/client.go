package redis

import (
	"context"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/iho/cardledger/internal/infrastructure/metrics"
)

// NewClient creates a new Redis client. When m is non-nil every command is
// counted in the Redis operation and error metrics.
func NewClient(ctx context.Context, redisURL string, m *metrics.Metrics) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if m != nil {
		client.AddHook(metricsHook{metrics: m})
	}

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// metricsHook counts commands and failures by command name. A nil reply
// (redis.Nil) is a cache miss, not an error.
type metricsHook struct {
	metrics *metrics.Metrics
}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.metrics.RedisErrors.WithLabelValues("dial").Inc()
		}
		return conn, err
	}
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		h.observe(cmd.Name(), err)
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		h.observe("pipeline", err)
		return err
	}
}

func (h metricsHook) observe(op string, err error) {
	h.metrics.RedisOperations.WithLabelValues(op).Inc()
	if err != nil && err != redis.Nil {
		h.metrics.RedisErrors.WithLabelValues(op).Inc()
	}
}
