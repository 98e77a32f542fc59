package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"employee_directory/pkg/logger"
)

const defaultQueueSize = 256

// Hub is an in-process Client implementation. Every subscriber gets its own
// buffered queue drained by a dedicated goroutine; a subscriber whose queue is
// full misses events instead of stalling the publisher.
type Hub struct {
	mu        sync.Mutex
	topics    map[string]*topic
	queueSize int
	log       logger.Logger
}

type topic struct {
	subs     map[*memChannel]struct{}
	presence map[string]json.RawMessage
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		topics:    make(map[string]*topic),
		queueSize: defaultQueueSize,
		log:       log,
	}
}

// Client returns a view of the hub that stamps identity as the sender of
// everything it publishes.
func (h *Hub) Client(identity string) Client {
	return &memClient{hub: h, identity: identity}
}

// SubscriberCount reports the number of live subscriptions on name.
func (h *Hub) SubscriberCount(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[name]
	if !ok {
		return 0
	}
	return len(t.subs)
}

// Presence returns a copy of the presence set of name.
func (h *Hub) Presence(name string) map[string]json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[name]
	if !ok {
		return map[string]json.RawMessage{}
	}
	return copyPresence(t.presence)
}

func (h *Hub) topicLocked(name string) *topic {
	t, ok := h.topics[name]
	if !ok {
		t = &topic{
			subs:     make(map[*memChannel]struct{}),
			presence: make(map[string]json.RawMessage),
		}
		h.topics[name] = t
	}
	return t
}

func (h *Hub) join(c *memChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topicLocked(c.name)
	t.subs[c] = struct{}{}
	c.enqueue(delivery{status: StatusSubscribed})
	c.enqueue(delivery{event: &Event{
		Channel:  c.name,
		Kind:     KindPresence,
		Name:     PresenceSync,
		Presence: copyPresence(t.presence),
	}})
}

func (h *Hub) leave(c *memChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[c.name]
	if !ok {
		return
	}
	delete(t.subs, c)
	if _, tracked := t.presence[c.key]; tracked {
		delete(t.presence, c.key)
		h.fanoutLocked(t, Event{
			Channel:  c.name,
			Kind:     KindPresence,
			Name:     PresenceLeave,
			From:     c.from,
			Presence: copyPresence(t.presence),
		})
	}
	if len(t.subs) == 0 && len(t.presence) == 0 {
		delete(h.topics, c.name)
	}
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[ev.Channel]
	if !ok {
		return
	}
	h.fanoutLocked(t, ev)
}

func (h *Hub) track(c *memChannel, state json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topicLocked(c.name)
	name := PresenceSync
	if _, ok := t.presence[c.key]; !ok {
		name = PresenceJoin
	}
	t.presence[c.key] = state
	h.fanoutLocked(t, Event{
		Channel:  c.name,
		Kind:     KindPresence,
		Name:     name,
		From:     c.from,
		Presence: copyPresence(t.presence),
	})
}

func (h *Hub) untrack(c *memChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[c.name]
	if !ok {
		return
	}
	if _, tracked := t.presence[c.key]; !tracked {
		return
	}
	delete(t.presence, c.key)
	h.fanoutLocked(t, Event{
		Channel:  c.name,
		Kind:     KindPresence,
		Name:     PresenceLeave,
		From:     c.from,
		Presence: copyPresence(t.presence),
	})
}

func (h *Hub) fanoutLocked(t *topic, ev Event) {
	for sub := range t.subs {
		e := ev
		if !sub.enqueue(delivery{event: &e}) {
			h.log.Warn("Dropped event for slow subscriber", "channel", ev.Channel, "event", ev.Name)
		}
	}
}

func copyPresence(src map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

type memClient struct {
	hub      *Hub
	identity string
}

func (c *memClient) Channel(name string) Channel {
	return &memChannel{
		hub:  c.hub,
		name: name,
		from: c.identity,
		key:  uuid.NewString(),
	}
}

type delivery struct {
	event  *Event
	status Status
	err    error
}

type memChannel struct {
	hub  *Hub
	name string
	from string
	key  string

	mu         sync.Mutex
	queue      chan delivery
	done       chan struct{}
	subscribed bool
	closed     bool
}

func (c *memChannel) Name() string {
	return c.name
}

func (c *memChannel) Subscribe(onEvent func(Event), onStatus func(Status, error)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.subscribed {
		c.mu.Unlock()
		return ErrAlreadySubscribed
	}
	c.subscribed = true
	c.queue = make(chan delivery, c.hub.queueSize)
	c.done = make(chan struct{})
	queue, done := c.queue, c.done
	c.mu.Unlock()

	go func() {
		for {
			select {
			case d := <-queue:
				if d.event != nil {
					if onEvent != nil {
						onEvent(*d.event)
					}
				} else if onStatus != nil {
					onStatus(d.status, d.err)
				}
			case <-done:
				return
			}
		}
	}()

	c.hub.join(c)
	return nil
}

func (c *memChannel) enqueue(d delivery) bool {
	select {
	case c.queue <- d:
		return true
	default:
		return false
	}
}

func (c *memChannel) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.subscribed {
		return ErrNotSubscribed
	}
	return nil
}

func (c *memChannel) Broadcast(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.ready(); err != nil {
		return err
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	c.hub.publish(Event{
		Channel: c.name,
		Kind:    KindBroadcast,
		Name:    event,
		From:    c.from,
		Payload: raw,
	})
	return nil
}

func (c *memChannel) Track(ctx context.Context, state any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.ready(); err != nil {
		return err
	}
	raw, err := marshalPayload(state)
	if err != nil {
		return err
	}
	c.hub.track(c, raw)
	return nil
}

func (c *memChannel) Untrack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.ready(); err != nil {
		return err
	}
	c.hub.untrack(c)
	return nil
}

func (c *memChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subscribed := c.subscribed
	c.mu.Unlock()

	if subscribed {
		c.hub.leave(c)
		close(c.done)
	}
	return nil
}
