package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"employee_directory/internal/broker"
	"employee_directory/internal/config"
	"employee_directory/internal/domain"
	"employee_directory/internal/metrics"
	"employee_directory/internal/middleware"
	"employee_directory/internal/service"
	"employee_directory/internal/transport"
	apperrors "employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 << 10
	sendBufferSize = 256
	opTimeout      = 5 * time.Second
)

// WebSocketHandler relays channel frames between websocket connections. Every
// broadcast and presence change goes through the broker so that connections
// on other nodes see it too.
type WebSocketHandler struct {
	authService  service.AuthService
	groupService service.GroupService
	broker       broker.Broker
	cfg          config.ChatConfig
	metrics      *metrics.Metrics
	log          logger.Logger
	upgrader     websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]map[*wsConn]struct{}
}

func NewWebSocketHandler(
	authService service.AuthService,
	groupService service.GroupService,
	b broker.Broker,
	cfg config.ChatConfig,
	origins []string,
	m *metrics.Metrics,
	log logger.Logger,
) *WebSocketHandler {
	allowed := middleware.NormalizeOrigins(origins)
	return &WebSocketHandler{
		authService:  authService,
		groupService: groupService,
		broker:       b,
		cfg:          cfg,
		metrics:      m,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// non-browser clients send no Origin
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowed, origin)
			},
		},
		subs: make(map[string]map[*wsConn]struct{}),
	}
}

// Run pumps broker events to the local subscribers until ctx is done.
func (h *WebSocketHandler) Run(ctx context.Context) error {
	err := h.broker.Run(ctx, h.deliver)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *WebSocketHandler) deliver(ev transport.Event) {
	f := transport.FrameFromEvent(ev)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[ev.Channel] {
		if !c.enqueue(f) {
			if h.metrics != nil {
				h.metrics.DroppedFrames.Inc()
			}
			h.log.Warn("Dropped frame for slow connection", "conn_id", c.id, "channel", ev.Channel, "event", ev.Name)
		}
	}
}

// SubscriberCount returns how many local connections listen on channel.
func (h *WebSocketHandler) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

func (h *WebSocketHandler) Serve(c *gin.Context) {
	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	who, err := h.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	ws := &wsConn{
		id:       uuid.New(),
		identity: *who,
		conn:     conn,
		send:     make(chan transport.Frame, sendBufferSize),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(rate.Limit(h.cfg.WSFrameRate), h.cfg.WSFrameBurst),
		channels: make(map[string]bool),
		tracked:  make(map[string]bool),
	}
	if h.cfg.WSFrameRate <= 0 {
		ws.limiter = rate.NewLimiter(rate.Inf, 0)
	}

	if h.metrics != nil {
		h.metrics.Connections.Inc()
		defer h.metrics.Connections.Dec()
	}
	h.log.Info("Websocket connected", "conn_id", ws.id, "employee_id", who.UserID)

	go ws.writePump(h.log)
	h.readPump(ws)
	h.disconnect(ws)

	h.log.Info("Websocket disconnected", "conn_id", ws.id, "employee_id", who.UserID)
}

func (h *WebSocketHandler) readPump(ws *wsConn) {
	ws.conn.SetReadLimit(maxFrameSize)
	_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	ws.conn.SetPongHandler(func(string) error {
		return ws.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f transport.Frame
		if err := ws.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("Websocket read failed", "conn_id", ws.id, "error", err)
			}
			return
		}
		_ = ws.conn.SetReadDeadline(time.Now().Add(pongWait))

		if h.metrics != nil {
			h.metrics.Frames.WithLabelValues(f.Op).Inc()
		}
		if !ws.limiter.Allow() {
			if h.metrics != nil {
				h.metrics.RateLimited.WithLabelValues("ws").Inc()
			}
			ws.reply(f, apperrors.ErrRateLimited)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		h.handle(ctx, ws, f)
		cancel()
	}
}

func (h *WebSocketHandler) handle(ctx context.Context, ws *wsConn, f transport.Frame) {
	switch f.Op {
	case transport.OpSubscribe:
		h.subscribe(ctx, ws, f)
	case transport.OpUnsubscribe:
		h.unsubscribe(ctx, ws, f.Channel)
	case transport.OpBroadcast:
		if !ws.channels[f.Channel] {
			ws.reply(f, transport.ErrNotSubscribed)
			return
		}
		if f.Event == "" {
			ws.reply(f, apperrors.ErrBadRequest)
			return
		}
		ev := transport.Event{
			Channel: f.Channel,
			Kind:    transport.KindBroadcast,
			Name:    f.Event,
			From:    ws.identity.UserID.String(),
			Payload: f.Payload,
		}
		if err := h.broker.Publish(ctx, ev); err != nil {
			h.log.Error("Failed to publish broadcast", "channel", f.Channel, "error", err)
			ws.reply(f, err)
		}
	case transport.OpTrack:
		h.track(ctx, ws, f)
	case transport.OpUntrack:
		if !ws.channels[f.Channel] {
			ws.reply(f, transport.ErrNotSubscribed)
			return
		}
		h.untrack(ctx, ws, f.Channel)
	default:
		ws.reply(f, apperrors.ErrBadRequest)
	}
}

func (h *WebSocketHandler) subscribe(ctx context.Context, ws *wsConn, f transport.Frame) {
	groupID, kind, err := domain.ParseChannel(f.Channel)
	if err != nil {
		ws.reply(f, err)
		return
	}
	if err := h.groupService.RequireMember(ctx, groupID, ws.identity.UserID); err != nil {
		h.log.Warn("Rejected subscription", "conn_id", ws.id, "channel", f.Channel, "error", err)
		ws.reply(f, err)
		return
	}

	if !ws.channels[f.Channel] {
		ws.channels[f.Channel] = true
		h.mu.Lock()
		set, ok := h.subs[f.Channel]
		if !ok {
			set = make(map[*wsConn]struct{})
			h.subs[f.Channel] = set
		}
		set[ws] = struct{}{}
		h.mu.Unlock()
	}
	ws.enqueue(transport.Frame{Op: transport.OpSubscribed, Ref: f.Ref, Channel: f.Channel})

	if kind != domain.ChannelKindPresence {
		return
	}
	snapshot, err := h.broker.Presence(ctx, f.Channel)
	if err != nil {
		h.log.Warn("Failed to load presence", "channel", f.Channel, "error", err)
		return
	}
	ws.enqueue(transport.Frame{
		Op:       transport.OpPresence,
		Channel:  f.Channel,
		Event:    transport.PresenceSync,
		Presence: snapshot,
	})
}

func (h *WebSocketHandler) unsubscribe(ctx context.Context, ws *wsConn, channel string) {
	if !ws.channels[channel] {
		return
	}
	if ws.tracked[channel] {
		h.untrack(ctx, ws, channel)
	}
	delete(ws.channels, channel)

	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[channel]; ok {
		delete(set, ws)
		if len(set) == 0 {
			delete(h.subs, channel)
		}
	}
}

func (h *WebSocketHandler) track(ctx context.Context, ws *wsConn, f transport.Frame) {
	if !ws.channels[f.Channel] {
		ws.reply(f, transport.ErrNotSubscribed)
		return
	}
	// tracked state always names the connection's own employee
	var sig domain.TypingSignal
	if err := json.Unmarshal(f.Payload, &sig); err != nil {
		ws.reply(f, apperrors.ErrBadRequest)
		return
	}
	sig.UserID = ws.identity.UserID
	sig.DisplayName = ws.identity.DisplayName
	state, err := json.Marshal(sig)
	if err != nil {
		ws.reply(f, err)
		return
	}

	joined, snapshot, err := h.broker.Track(ctx, f.Channel, ws.id.String(), state)
	if err != nil {
		h.log.Error("Failed to track presence", "channel", f.Channel, "error", err)
		ws.reply(f, err)
		return
	}
	ws.tracked[f.Channel] = true

	name := transport.PresenceSync
	if joined {
		name = transport.PresenceJoin
	}
	h.publishPresence(ctx, ws, f.Channel, name, snapshot)
}

func (h *WebSocketHandler) untrack(ctx context.Context, ws *wsConn, channel string) {
	removed, snapshot, err := h.broker.Untrack(ctx, channel, ws.id.String())
	delete(ws.tracked, channel)
	if err != nil {
		h.log.Error("Failed to untrack presence", "channel", channel, "error", err)
		return
	}
	if removed {
		h.publishPresence(ctx, ws, channel, transport.PresenceLeave, snapshot)
	}
}

func (h *WebSocketHandler) publishPresence(ctx context.Context, ws *wsConn, channel, name string, snapshot map[string]json.RawMessage) {
	err := h.broker.Publish(ctx, transport.Event{
		Channel:  channel,
		Kind:     transport.KindPresence,
		Name:     name,
		From:     ws.identity.UserID.String(),
		Presence: snapshot,
	})
	if err != nil {
		h.log.Error("Failed to publish presence", "channel", channel, "event", name, "error", err)
	}
}

// disconnect drops ws from every channel and withdraws its presence.
func (h *WebSocketHandler) disconnect(ws *wsConn) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	for channel := range ws.channels {
		h.unsubscribe(ctx, ws, channel)
	}
	ws.close()
}

type wsConn struct {
	id       uuid.UUID
	identity domain.Identity
	conn     *websocket.Conn
	limiter  *rate.Limiter

	// owned by the read goroutine
	channels map[string]bool
	tracked  map[string]bool

	mu     sync.Mutex
	send   chan transport.Frame
	done   chan struct{}
	closed bool
}

// enqueue queues f without blocking. It reports false when the buffer is full.
func (c *wsConn) enqueue(f transport.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *wsConn) reply(f transport.Frame, err error) {
	c.enqueue(transport.Frame{Op: transport.OpError, Ref: f.Ref, Channel: f.Channel, Error: err.Error()})
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	<-c.done
}

func (c *wsConn) writePump(log logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case f, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				log.Warn("Websocket write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
