package broker

import (
	"context"
	"encoding/json"
	"sync"

	"employee_directory/internal/transport"
	"employee_directory/pkg/logger"
)

const localQueueSize = 1024

type localBroker struct {
	mu       sync.Mutex
	presence map[string]map[string]json.RawMessage
	events   chan transport.Event
	done     chan struct{}
	once     sync.Once
	log      logger.Logger
}

// NewLocal returns a Broker for a single server node.
func NewLocal(log logger.Logger) Broker {
	return &localBroker{
		presence: make(map[string]map[string]json.RawMessage),
		events:   make(chan transport.Event, localQueueSize),
		done:     make(chan struct{}),
		log:      log,
	}
}

func (b *localBroker) Publish(ctx context.Context, ev transport.Event) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrClosed
	}
}

func (b *localBroker) Track(ctx context.Context, channel, key string, state json.RawMessage) (bool, map[string]json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.presence[channel]
	if !ok {
		set = make(map[string]json.RawMessage)
		b.presence[channel] = set
	}
	_, existed := set[key]
	set[key] = state
	return !existed, copySet(set), nil
}

func (b *localBroker) Untrack(ctx context.Context, channel, key string) (bool, map[string]json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.presence[channel]
	if _, ok := set[key]; !ok {
		return false, copySet(set), nil
	}
	delete(set, key)
	if len(set) == 0 {
		delete(b.presence, channel)
	}
	return true, copySet(set), nil
}

func (b *localBroker) Presence(ctx context.Context, channel string) (map[string]json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copySet(b.presence[channel]), nil
}

func (b *localBroker) Run(ctx context.Context, deliver func(transport.Event)) error {
	for {
		select {
		case ev := <-b.events:
			deliver(ev)
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		}
	}
}

func (b *localBroker) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

func copySet(set map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(set))
	for k, v := range set {
		out[k] = v
	}
	return out
}
