// Package transport is the named publish/subscribe channel abstraction the chat
// engine talks to. A channel carries broadcast events plus an ephemeral presence
// set keyed per subscriber.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

type Kind int

const (
	KindBroadcast Kind = iota + 1
	KindPresence
)

// Presence event names.
const (
	PresenceSync  = "sync"
	PresenceJoin  = "join"
	PresenceLeave = "leave"
)

// Event is one inbound delivery. Presence events always carry the full
// snapshot of the channel's presence set after the change.
type Event struct {
	Channel  string
	Kind     Kind
	Name     string
	From     string
	Payload  json.RawMessage
	Presence map[string]json.RawMessage
}

type Status int

const (
	StatusSubscribed Status = iota + 1
	StatusClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSubscribed:
		return "subscribed"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

type Channel interface {
	Name() string
	// Subscribe registers the callbacks and joins the channel. Callbacks run on
	// a transport goroutine and must not block for long.
	Subscribe(onEvent func(Event), onStatus func(Status, error)) error
	Broadcast(ctx context.Context, event string, payload any) error
	Track(ctx context.Context, state any) error
	Untrack(ctx context.Context) error
	Close() error
}

type Client interface {
	Channel(name string) Channel
}

var (
	ErrClosed            = errors.New("transport: channel closed")
	ErrNotSubscribed     = errors.New("transport: channel not subscribed")
	ErrAlreadySubscribed = errors.New("transport: channel already subscribed")
	ErrNotConnected      = errors.New("transport: not connected")
)
