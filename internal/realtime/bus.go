package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/upcycleai/internal/platform/logger"
)

// Bus carries messages between processes sharing one profile, e.g. a CLI scan
// while the local API is serving the presentation layer.
type Bus interface {
	Publish(ctx context.Context, msg SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m SSEMessage)) error
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedisBus(log *logger.Logger, rdb *goredis.Client, channel string) (Bus, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		channel = "upcycle:events"
	}
	return &redisBus{
		log:     log.With("service", "RedisSSEBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, msg SSEMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(m SSEMessage)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var msg SSEMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.log.Warn("bad redis SSE payload", "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

// Publisher routes messages through the bus when one is configured (the forwarder
// then feeds the local hub) and straight into the hub otherwise.
type Publisher struct {
	log *logger.Logger
	hub *SSEHub
	bus Bus
}

func NewPublisher(log *logger.Logger, hub *SSEHub, bus Bus) *Publisher {
	return &Publisher{log: log.With("component", "RealtimePublisher"), hub: hub, bus: bus}
}

func (p *Publisher) Emit(ctx context.Context, msg SSEMessage) {
	if p == nil {
		return
	}
	if p.bus != nil {
		err := p.bus.Publish(ctx, msg)
		if err == nil {
			return
		}
		p.log.Warn("bus publish failed; delivering locally", "event", msg.Event, "error", err)
	}
	if p.hub != nil {
		p.hub.Broadcast(msg)
	}
}
