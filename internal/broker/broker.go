// Package broker carries relay events between the websocket connections of one
// or more server nodes and keeps the presence set of every channel.
package broker

import (
	"context"
	"encoding/json"
	"errors"

	"employee_directory/internal/transport"
)

var ErrClosed = errors.New("broker closed")

type Broker interface {
	// Publish hands ev to every node's Run loop, this one included.
	Publish(ctx context.Context, ev transport.Event) error
	// Track stores state under key in channel's presence set. joined is true
	// when key was not present before.
	Track(ctx context.Context, channel, key string, state json.RawMessage) (joined bool, snapshot map[string]json.RawMessage, err error)
	// Untrack removes key. removed is false when key was not tracked.
	Untrack(ctx context.Context, channel, key string) (removed bool, snapshot map[string]json.RawMessage, err error)
	Presence(ctx context.Context, channel string) (map[string]json.RawMessage, error)
	// Run delivers published events to deliver until ctx is done.
	Run(ctx context.Context, deliver func(transport.Event)) error
	Close() error
}
