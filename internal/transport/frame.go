package transport

import (
	"encoding/json"
)

// Frame is the websocket wire unit shared by the server relay and WSClient.
type Frame struct {
	Op       string                     `json:"op"`
	Ref      string                     `json:"ref,omitempty"`
	Channel  string                     `json:"channel,omitempty"`
	Event    string                     `json:"event,omitempty"`
	From     string                     `json:"from,omitempty"`
	Payload  json.RawMessage            `json:"payload,omitempty"`
	Presence map[string]json.RawMessage `json:"presence,omitempty"`
	Error    string                     `json:"error,omitempty"`
}

// Client to server ops.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpBroadcast   = "broadcast"
	OpTrack       = "track"
	OpUntrack     = "untrack"
)

// Server to client ops. Broadcast frames reuse OpBroadcast.
const (
	OpSubscribed = "subscribed"
	OpPresence   = "presence"
	OpError      = "error"
)

// ToEvent converts a server frame into an inbound Event. ok is false for frames
// that carry no event.
func (f *Frame) ToEvent() (Event, bool) {
	switch f.Op {
	case OpBroadcast:
		return Event{
			Channel: f.Channel,
			Kind:    KindBroadcast,
			Name:    f.Event,
			From:    f.From,
			Payload: f.Payload,
		}, true
	case OpPresence:
		return Event{
			Channel:  f.Channel,
			Kind:     KindPresence,
			Name:     f.Event,
			From:     f.From,
			Presence: f.Presence,
		}, true
	default:
		return Event{}, false
	}
}

// FrameFromEvent is the inverse of ToEvent.
func FrameFromEvent(ev Event) Frame {
	f := Frame{
		Channel: ev.Channel,
		Event:   ev.Name,
		From:    ev.From,
	}
	if ev.Kind == KindPresence {
		f.Op = OpPresence
		f.Presence = ev.Presence
	} else {
		f.Op = OpBroadcast
		f.Payload = ev.Payload
	}
	return f
}

func marshalPayload(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
