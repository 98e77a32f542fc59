package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"employee_directory/pkg/logger"
)

const (
	writeWait         = 10 * time.Second
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

// WSClient multiplexes channels over one websocket connection to the chat
// server. A dropped connection is redialed with backoff and every subscribed
// channel is rejoined, including its tracked presence state.
type WSClient struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    logger.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	channels map[string]*wsChannel

	writeMu sync.Mutex
	refs    atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func DialWS(ctx context.Context, url, token string, log logger.Logger) (*WSClient, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	runCtx, cancel := context.WithCancel(context.Background())
	c := &WSClient{
		url:      url,
		header:   header,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:      log,
		channels: make(map[string]*wsChannel),
		ctx:      runCtx,
		cancel:   cancel,
	}

	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	c.conn = conn

	c.wg.Add(1)
	go c.run(conn)

	return c, nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %s: %w", c.url, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	return conn, nil
}

func (c *WSClient) Channel(name string) Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.channels[name]; ok {
		return ch
	}
	ch := &wsChannel{client: c, name: name}
	c.channels[name] = ch
	return ch
}

// Close stops reconnecting and closes the socket.
func (c *WSClient) Close() error {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = conn.Close()
	}
	c.wg.Wait()
	return err
}

func (c *WSClient) run(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		err := c.readLoop(conn)
		if c.ctx.Err() != nil {
			return
		}
		c.log.Warn("Websocket connection lost", "error", err)
		c.dropped(err)

		conn = c.reconnect()
		if conn == nil {
			return
		}
		c.rejoin()
	}
}

func (c *WSClient) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("Failed to decode frame", "error", err)
			continue
		}
		c.route(&f)
	}
}

func (c *WSClient) route(f *Frame) {
	c.mu.Lock()
	ch := c.channels[f.Channel]
	c.mu.Unlock()

	if ch == nil {
		if f.Op == OpError {
			c.log.Warn("Server error", "error", f.Error, "ref", f.Ref)
		}
		return
	}

	switch f.Op {
	case OpSubscribed:
		ch.status(StatusSubscribed, nil)
	case OpError:
		ch.status(StatusError, errors.New(f.Error))
	default:
		if ev, ok := f.ToEvent(); ok {
			ch.event(ev)
		}
	}
}

func (c *WSClient) dropped(err error) {
	c.mu.Lock()
	c.conn = nil
	chans := make([]*wsChannel, 0, len(c.channels))
	for _, ch := range c.channels {
		chans = append(chans, ch)
	}
	c.mu.Unlock()

	for _, ch := range chans {
		ch.status(StatusClosed, err)
	}
}

func (c *WSClient) reconnect() *websocket.Conn {
	delay := minReconnectDelay
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case <-time.After(delay):
		}

		dialCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
		conn, err := c.dial(dialCtx)
		cancel()
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			c.log.Info("Websocket reconnected", "url", c.url)
			return conn
		}

		c.log.Warn("Websocket reconnect failed", "error", err, "retry_in", delay)
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *WSClient) rejoin() {
	c.mu.Lock()
	chans := make([]*wsChannel, 0, len(c.channels))
	for _, ch := range c.channels {
		chans = append(chans, ch)
	}
	c.mu.Unlock()

	for _, ch := range chans {
		if err := ch.rejoin(c.ctx); err != nil {
			c.log.Warn("Failed to rejoin channel", "channel", ch.name, "error", err)
		}
	}
}

func (c *WSClient) write(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if f.Ref == "" {
		f.Ref = strconv.FormatUint(c.refs.Add(1), 10)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteJSON(f)
}

func (c *WSClient) forget(ch *wsChannel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channels[ch.name] == ch {
		delete(c.channels, ch.name)
	}
}

type wsChannel struct {
	client *WSClient
	name   string

	mu         sync.Mutex
	onEvent    func(Event)
	onStatus   func(Status, error)
	subscribed bool
	closed     bool
	tracked    json.RawMessage
}

func (ch *wsChannel) Name() string {
	return ch.name
}

func (ch *wsChannel) Subscribe(onEvent func(Event), onStatus func(Status, error)) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return ErrClosed
	}
	if ch.subscribed {
		ch.mu.Unlock()
		return ErrAlreadySubscribed
	}
	ch.onEvent = onEvent
	ch.onStatus = onStatus
	ch.subscribed = true
	ch.mu.Unlock()

	return ch.client.write(ch.client.ctx, Frame{Op: OpSubscribe, Channel: ch.name})
}

func (ch *wsChannel) ready() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return ErrClosed
	}
	if !ch.subscribed {
		return ErrNotSubscribed
	}
	return nil
}

func (ch *wsChannel) Broadcast(ctx context.Context, event string, payload any) error {
	if err := ch.ready(); err != nil {
		return err
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	return ch.client.write(ctx, Frame{Op: OpBroadcast, Channel: ch.name, Event: event, Payload: raw})
}

func (ch *wsChannel) Track(ctx context.Context, state any) error {
	if err := ch.ready(); err != nil {
		return err
	}
	raw, err := marshalPayload(state)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	ch.tracked = raw
	ch.mu.Unlock()

	return ch.client.write(ctx, Frame{Op: OpTrack, Channel: ch.name, Payload: raw})
}

func (ch *wsChannel) Untrack(ctx context.Context) error {
	if err := ch.ready(); err != nil {
		return err
	}

	ch.mu.Lock()
	ch.tracked = nil
	ch.mu.Unlock()

	return ch.client.write(ctx, Frame{Op: OpUntrack, Channel: ch.name})
}

func (ch *wsChannel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	subscribed := ch.subscribed
	ch.mu.Unlock()

	ch.client.forget(ch)
	if !subscribed {
		return nil
	}

	ctx, cancel := context.WithTimeout(ch.client.ctx, writeWait)
	defer cancel()
	err := ch.client.write(ctx, Frame{Op: OpUnsubscribe, Channel: ch.name})
	if errors.Is(err, ErrNotConnected) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (ch *wsChannel) rejoin(ctx context.Context) error {
	ch.mu.Lock()
	subscribed, closed, tracked := ch.subscribed, ch.closed, ch.tracked
	ch.mu.Unlock()

	if !subscribed || closed {
		return nil
	}
	if err := ch.client.write(ctx, Frame{Op: OpSubscribe, Channel: ch.name}); err != nil {
		return err
	}
	if tracked != nil {
		return ch.client.write(ctx, Frame{Op: OpTrack, Channel: ch.name, Payload: tracked})
	}
	return nil
}

func (ch *wsChannel) event(ev Event) {
	ch.mu.Lock()
	fn := ch.onEvent
	closed := ch.closed
	ch.mu.Unlock()

	if fn != nil && !closed {
		fn(ev)
	}
}

func (ch *wsChannel) status(s Status, err error) {
	ch.mu.Lock()
	fn := ch.onStatus
	closed := ch.closed
	ch.mu.Unlock()

	if fn != nil && !closed {
		fn(s, err)
	}
}
