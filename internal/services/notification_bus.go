package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/sse"
	"github.com/yungbote/depositly-backend/internal/utils"
)

// NotificationBus fans dispatcher pushes across instances. When a bus is
// wired it is the only emitter the dispatcher uses: every instance, the
// publishing one included, delivers to its local hub through the forwarder,
// so each live connection sees a push exactly once. Optional; without
// REDIS_ADDR the dispatcher broadcasts on the local hub directly.
type NotificationBus interface {
	Publish(ctx context.Context, msg sse.SSEMessage) error
	StartForwarder(ctx context.Context, deliver func(m sse.SSEMessage)) error
	Close() error
}

type redisNotificationBus struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string
}

func NewRedisNotificationBus(log *logger.Logger) (NotificationBus, error) {
	busLog := log.With("service", "RedisNotificationBus")

	var opts *redis.Options
	if rawURL := strings.TrimSpace(utils.GetEnv("REDIS_URL", "", log)); rawURL != "" {
		parsed, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("bad REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
		if addr == "" {
			return nil, fmt.Errorf("missing REDIS_ADDR")
		}
		opts = &redis.Options{Addr: addr}
	}
	opts.DialTimeout = 5 * time.Second

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisNotificationBus{
		log:     busLog,
		rdb:     rdb,
		channel: utils.GetEnv("REDIS_CHANNEL", "notifications", log),
	}, nil
}

func (b *redisNotificationBus) Publish(ctx context.Context, msg sse.SSEMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisNotificationBus) StartForwarder(ctx context.Context, deliver func(m sse.SSEMessage)) error {
	sub, err := b.subscribe(ctx)
	if err != nil {
		return err
	}
	go b.forward(ctx, sub, deliver)
	return nil
}

func (b *redisNotificationBus) subscribe(ctx context.Context) (*redis.PubSub, error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	return sub, nil
}

func (b *redisNotificationBus) forward(ctx context.Context, sub *redis.PubSub, deliver func(m sse.SSEMessage)) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				// Connection dropped. Resubscribe so live pushes resume;
				// clients recover anything missed meanwhile from their
				// persisted notifications.
				_ = sub.Close()
				next, err := b.resubscribe(ctx)
				if err != nil {
					b.log.Warn("Notification forwarder stopped", "error", err)
					return
				}
				sub = next
				ch = sub.Channel()
				continue
			}
			var msg sse.SSEMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.log.Warn("Bad bus payload", "error", err)
				continue
			}
			deliver(msg)
		}
	}
}

func (b *redisNotificationBus) resubscribe(ctx context.Context) (*redis.PubSub, error) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		sub, err := b.subscribe(ctx)
		if err == nil {
			return sub, nil
		}
		b.log.Warn("Notification bus resubscribe failed", "error", err, "backoff", backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (b *redisNotificationBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
