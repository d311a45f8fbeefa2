package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// popTimeout is how long one BRPOP blocks before Consume rechecks ctx.
const popTimeout = time.Second

// RedisQueue uses one Redis list per queue. Producers LPUSH and consumers
// BRPOP, so each payload is delivered to exactly one consumer.
type RedisQueue struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisQueue parses url and pings the server before returning.
func NewRedisQueue(url string, logger zerolog.Logger) (*RedisQueue, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisQueueFromClient(client, logger), nil
}

func NewRedisQueueFromClient(client *redis.Client, logger zerolog.Logger) *RedisQueue {
	return &RedisQueue{
		client: client,
		logger: logger.With().Str("component", "redis-queue").Logger(),
	}
}

func (q *RedisQueue) Publish(ctx context.Context, queue string, payload []byte) error {
	if err := q.client.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", queue, err)
	}
	return nil
}

func (q *RedisQueue) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	return q.client.Ping(ctx).Err() == nil
}

// Consume blocks, handing each popped payload to handle, until ctx is done.
// Transient errors are logged and retried after a short pause.
func (q *RedisQueue) Consume(ctx context.Context, queue string, handle func(payload []byte)) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		res, err := q.client.BRPop(ctx, popTimeout, queue).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Warn().Err(err).Str("queue", queue).Msg("brpop failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(popTimeout):
			}
			continue
		}

		// BRPOP replies with [key, value].
		if len(res) == 2 {
			handle([]byte(res[1]))
		}
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
