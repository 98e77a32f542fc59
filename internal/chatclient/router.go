package chatclient

import (
	"fmt"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
	"employee_directory/internal/transport"
	"employee_directory/pkg/logger"
)

// EchoMode selects how a client recognises its own message-inserted broadcasts.
type EchoMode string

const (
	// EchoBySender drops every insert whose sender is the local identity. A
	// second session of the same account will not see this session's sends live.
	EchoBySender EchoMode = "sender"
	// EchoByCorrelation drops only inserts carrying a client id issued by this session.
	EchoByCorrelation EchoMode = "correlation"
)

const maxDeferred = 256

// Router owns the live ChannelPair and routes inbound events into the Store
// and the TypingTracker. Updates and deletes for ids the store has not seen
// yet are parked and replayed once the id shows up.
type Router struct {
	self   uuid.UUID
	mode   EchoMode
	store  *Store
	typing *TypingTracker
	log    logger.Logger

	pair       *ChannelPair
	subscribed map[string]bool
	owned      map[string]struct{}
	deferred   []Inbound
}

func NewRouter(self uuid.UUID, mode EchoMode, store *Store, typing *TypingTracker, log logger.Logger) *Router {
	if mode == "" {
		mode = EchoBySender
	}
	return &Router{
		self:       self,
		mode:       mode,
		store:      store,
		typing:     typing,
		log:        log,
		subscribed: make(map[string]bool),
		owned:      make(map[string]struct{}),
	}
}

// Open closes the current pair and subscribes a fresh one for groupID. A
// subscription error leaves the new pair in place but disconnected.
func (r *Router) Open(client transport.Client, groupID uuid.UUID,
	onEvent func(transport.Event), onStatus func(channel string, s transport.Status, err error)) (*ChannelPair, error) {
	if err := r.Close(); err != nil {
		r.log.Warn("Failed to close channel pair", "error", err)
	}

	pair := newChannelPair(client, groupID)
	r.pair = pair

	for _, ch := range []transport.Channel{pair.Messages, pair.Presence} {
		name := ch.Name()
		err := ch.Subscribe(onEvent, func(s transport.Status, err error) {
			onStatus(name, s, err)
		})
		if err != nil {
			r.log.Error("Failed to subscribe", "channel", name, "error", err)
			return pair, fmt.Errorf("failed to subscribe to %s: %w", name, err)
		}
	}
	return pair, nil
}

// Close tears the live pair down. Parked events belong to that pair and are
// dropped with it.
func (r *Router) Close() error {
	r.deferred = nil
	r.owned = make(map[string]struct{})
	r.subscribed = make(map[string]bool)
	if r.pair == nil {
		return nil
	}
	pair := r.pair
	r.pair = nil
	return pair.Close()
}

func (r *Router) Pair() *ChannelPair {
	return r.pair
}

// Connected reports whether both channels of the live pair are subscribed.
func (r *Router) Connected() bool {
	if r.pair == nil {
		return false
	}
	return r.subscribed[r.pair.Messages.Name()] && r.subscribed[r.pair.Presence.Name()]
}

// SetStatus records a subscription status change and returns Connected.
func (r *Router) SetStatus(channel string, s transport.Status, err error) bool {
	if r.pair == nil || !r.pair.Owns(channel) {
		return r.Connected()
	}
	r.subscribed[channel] = s == transport.StatusSubscribed
	if s != transport.StatusSubscribed {
		r.log.Warn("Channel not subscribed", "channel", channel, "status", s.String(), "error", err)
	}
	return r.Connected()
}

// Own marks clientID as issued by this session.
func (r *Router) Own(clientID string) {
	if clientID != "" {
		r.owned[clientID] = struct{}{}
	}
}

// Disown forgets clientID when no echo for it will arrive.
func (r *Router) Disown(clientID string) {
	delete(r.owned, clientID)
}

// Owned returns the number of client ids awaiting their echo.
func (r *Router) Owned() int {
	return len(r.owned)
}

// Handle decodes ev and applies it. It returns the decoded event and whether
// any state changed.
func (r *Router) Handle(ev transport.Event) (Inbound, bool) {
	if r.pair == nil || !r.pair.Owns(ev.Channel) {
		return nil, false
	}
	in, err := DecodeInbound(ev)
	if err != nil {
		r.log.Warn("Dropping malformed event", "channel", ev.Channel, "event", ev.Name, "error", err)
		return nil, false
	}
	return in, r.Route(in)
}

// Route applies an already decoded event.
func (r *Router) Route(in Inbound) bool {
	switch in := in.(type) {
	case MessageInserted:
		m := in.Message
		if r.pair == nil || m.GroupID != r.pair.GroupID {
			return false
		}
		if in.From != m.SenderID.String() {
			r.log.Warn("Dropping insert from non-author", "message_id", m.ID, "from", in.From)
			return false
		}
		if r.isEcho(m) {
			return false
		}
		changed := r.store.Dispatch(Append{Message: m})
		if r.Replay() {
			changed = true
		}
		return changed

	case MessageUpdated:
		m := in.Message
		if in.From != m.SenderID.String() {
			r.log.Warn("Dropping update from non-author", "message_id", m.ID, "from", in.From)
			return false
		}
		stored, ok := r.store.Get(m.GroupID, m.ID)
		if !ok {
			r.park(in)
			return false
		}
		if stored.SenderID != m.SenderID {
			r.log.Warn("Dropping update from non-author", "message_id", m.ID, "from", in.From)
			return false
		}
		return r.store.Dispatch(Replace{ID: m.ID, Message: m})

	case MessageDeleted:
		stored, ok := r.store.Get(in.GroupID, in.ID)
		if !ok {
			r.park(in)
			return false
		}
		if stored.SenderID.String() != in.From {
			r.log.Warn("Dropping delete from non-author", "message_id", in.ID, "from", in.From)
			return false
		}
		return r.store.Dispatch(Remove{GroupID: in.GroupID, ID: in.ID, At: in.DeletedAt})

	case PresenceSync:
		r.typing.SetRemote(in.Signals)
		return true
	case PresenceJoin:
		r.typing.SetRemote(in.Signals)
		return true
	case PresenceLeave:
		r.typing.SetRemote(in.Signals)
		return true
	}
	return false
}

func (r *Router) isEcho(m domain.Message) bool {
	switch r.mode {
	case EchoByCorrelation:
		if m.ClientID == "" {
			return false
		}
		if _, ok := r.owned[m.ClientID]; ok {
			delete(r.owned, m.ClientID)
			return true
		}
		return false
	default:
		return m.SenderID == r.self
	}
}

func (r *Router) park(in Inbound) {
	if len(r.deferred) >= maxDeferred {
		r.log.Warn("Deferred event buffer full, dropping oldest")
		r.deferred = r.deferred[1:]
	}
	r.deferred = append(r.deferred, in)
}

// Pending returns the number of parked events.
func (r *Router) Pending() int {
	return len(r.deferred)
}

// Replay applies parked events whose message is now known, in arrival order.
func (r *Router) Replay() bool {
	if len(r.deferred) == 0 {
		return false
	}
	changed := false
	kept := make([]Inbound, 0, len(r.deferred))
	for _, in := range r.deferred {
		gid, id := deferredKey(in)
		if !r.store.Has(gid, id) {
			kept = append(kept, in)
			continue
		}
		if r.Route(in) {
			changed = true
		}
	}
	r.deferred = kept
	return changed
}

func deferredKey(in Inbound) (uuid.UUID, int64) {
	switch in := in.(type) {
	case MessageUpdated:
		return in.Message.GroupID, in.Message.ID
	case MessageDeleted:
		return in.GroupID, in.ID
	}
	return uuid.Nil, 0
}
