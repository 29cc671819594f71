package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/sse"
)

// ActivityBus fans activity-feed messages out across instances over redis
// pub/sub. When REDIS_ADDR is unset the service runs without a bus and the
// in-process hub is fed directly.
type ActivityBus interface {
	Publish(ctx context.Context, msg sse.FeedMessage) error
	StartForwarder(ctx context.Context, onMsg func(m sse.FeedMessage)) error
	Close() error
}

type activityBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewActivityBus(log *logger.Logger) (ActivityBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("REDIS_CHANNEL"))
	if ch == "" {
		ch = "activity"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &activityBus{
		log:     log.With("service", "RedisActivityBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *activityBus) Publish(ctx context.Context, msg sse.FeedMessage) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis activity bus not initialized")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *activityBus) StartForwarder(ctx context.Context, onMsg func(m sse.FeedMessage)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis activity bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var msg sse.FeedMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.log.Warn("bad redis activity payload", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()

	return nil
}

func (b *activityBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
