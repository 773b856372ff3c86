package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultStreamMaxLen = 10000

// Options configures the connection.
type Options struct {
	Addr         string
	Password     string
	DB           int
	StreamMaxLen int64
}

// Client wraps the Redis client for vote notifications (Pub/Sub) and the
// recent-events stream.
type Client struct {
	client       *redis.Client
	logger       *zap.Logger
	streamMaxLen int64
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, logger *zap.Logger, o Options) (*Client, error) {
	if o.Addr == "" {
		o.Addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", o.Addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", o.Addr),
		zap.Int("db", o.DB),
		zap.Int64("streamMaxLen", o.StreamMaxLen))

	return &Client{client: rdb, logger: logger, streamMaxLen: o.StreamMaxLen}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Publish is best effort: errors are logged, never returned, so a Redis
// outage cannot fail a ballot.
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) {
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		c.logger.Warn("Failed to publish Redis message",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// PSubscribe subscribes to channel patterns such as "cesavote:*:vote.recorded".
// The caller closes the returned PubSub.
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	c.logger.Debug("Subscribing to Redis patterns", zap.Strings("patterns", patterns))
	return c.client.PSubscribe(ctx, patterns...)
}

func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// XAdd appends to a stream capped at the configured length. Best effort, it
// returns the entry id or "" on failure.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]interface{}) string {
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}
	id, err := c.client.XAdd(ctx, args).Result()
	if err != nil {
		c.logger.Warn("Failed to add to Redis stream",
			zap.String("stream", stream),
			zap.Error(err))
		return ""
	}
	return id
}

// XRevRange returns up to count of the newest stream entries, newest first.
func (c *Client) XRevRange(ctx context.Context, stream string, count int64) ([]redis.XMessage, error) {
	return c.client.XRevRangeN(ctx, stream, "+", "-", count).Result()
}
