package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/carelattice/taxonomy-backend/internal/observability"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
	"github.com/carelattice/taxonomy-backend/internal/realtime"
)

type redisBus struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRedisBus connects to REDIS_ADDR and verifies the connection with a
// ping, so a misconfigured broker fails at startup instead of on the first
// publish.
func NewRedisBus(log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log: log.With("service", "RedisEventBus"),
		rdb: rdb,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, channel string, evt realtime.Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("event bus not initialized")
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		return err
	}
	if m := observability.Current(); m != nil {
		m.IncEventPublished(channel, evt.Type)
	}
	return nil
}

func (b *redisBus) StartForwarder(ctx context.Context, channel string, onEvent func(evt realtime.Event)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("event bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, channel)

	// ensures the subscription actually started
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
				var evt realtime.Event
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					b.log.Warn("bad event payload", "channel", channel, "error", err)
					continue
				}
				onEvent(evt)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
