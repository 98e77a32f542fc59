package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"employee_directory/internal/transport"
	"employee_directory/pkg/logger"
)

const (
	eventPrefix    = "rt:events:"
	presencePrefix = "rt:presence:"
	// Presence hashes outlive a crashed node by at most this long.
	presenceTTL = time.Hour
)

type redisBroker struct {
	rdb *redis.Client
	log logger.Logger
}

// NewRedis returns a Broker that fans events out over Redis pub/sub and keeps
// presence in one hash per channel, so several server nodes can share channels.
func NewRedis(rdb *redis.Client, log logger.Logger) Broker {
	return &redisBroker{rdb: rdb, log: log}
}

func (b *redisBroker) Publish(ctx context.Context, ev transport.Event) error {
	data, err := json.Marshal(transport.FrameFromEvent(ev))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.rdb.Publish(ctx, eventPrefix+ev.Channel, data).Err(); err != nil {
		b.log.Error("Failed to publish event", "channel", ev.Channel, "error", err)
		return err
	}
	return nil
}

func (b *redisBroker) Track(ctx context.Context, channel, key string, state json.RawMessage) (bool, map[string]json.RawMessage, error) {
	hkey := presencePrefix + channel

	var added *redis.IntCmd
	var all *redis.MapStringStringCmd
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.HSet(ctx, hkey, key, []byte(state))
		pipe.Expire(ctx, hkey, presenceTTL)
		all = pipe.HGetAll(ctx, hkey)
		return nil
	})
	if err != nil {
		b.log.Error("Failed to track presence", "channel", channel, "error", err)
		return false, nil, err
	}
	return added.Val() > 0, toSet(all.Val()), nil
}

func (b *redisBroker) Untrack(ctx context.Context, channel, key string) (bool, map[string]json.RawMessage, error) {
	hkey := presencePrefix + channel

	var removed *redis.IntCmd
	var all *redis.MapStringStringCmd
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, hkey, key)
		all = pipe.HGetAll(ctx, hkey)
		return nil
	})
	if err != nil {
		b.log.Error("Failed to untrack presence", "channel", channel, "error", err)
		return false, nil, err
	}
	return removed.Val() > 0, toSet(all.Val()), nil
}

func (b *redisBroker) Presence(ctx context.Context, channel string) (map[string]json.RawMessage, error) {
	all, err := b.rdb.HGetAll(ctx, presencePrefix+channel).Result()
	if err != nil {
		b.log.Error("Failed to read presence", "channel", channel, "error", err)
		return nil, err
	}
	return toSet(all), nil
}

func (b *redisBroker) Run(ctx context.Context, deliver func(transport.Event)) error {
	sub := b.rdb.PSubscribe(ctx, eventPrefix+"*")
	defer sub.Close()

	// Receive blocks until the subscription is confirmed so nothing published
	// after Run starts is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	b.log.Info("Broker subscribed", "pattern", eventPrefix+"*")

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var f transport.Frame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				b.log.Warn("Dropping undecodable event", "channel", msg.Channel, "error", err)
				continue
			}
			if f.Channel == "" {
				f.Channel = strings.TrimPrefix(msg.Channel, eventPrefix)
			}
			if ev, ok := f.ToEvent(); ok {
				deliver(ev)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close leaves the client open; it belongs to the caller.
func (b *redisBroker) Close() error {
	return nil
}

func toSet(all map[string]string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(all))
	for k, v := range all {
		out[k] = json.RawMessage(v)
	}
	return out
}
