package chatclient

import (
	"errors"

	"github.com/google/uuid"

	"employee_directory/internal/domain"
	"employee_directory/internal/transport"
)

var (
	MessageChannel  = domain.MessageChannel
	PresenceChannel = domain.PresenceChannel
)

// ChannelPair is the message and presence subscription of one group. A pair is
// never reused: switching groups closes it and opens a new one.
type ChannelPair struct {
	GroupID  uuid.UUID
	Messages transport.Channel
	Presence transport.Channel
}

func newChannelPair(client transport.Client, groupID uuid.UUID) *ChannelPair {
	return &ChannelPair{
		GroupID:  groupID,
		Messages: client.Channel(MessageChannel(groupID)),
		Presence: client.Channel(PresenceChannel(groupID)),
	}
}

// Owns reports whether name is one of the pair's channels.
func (p *ChannelPair) Owns(name string) bool {
	return name == p.Messages.Name() || name == p.Presence.Name()
}

func (p *ChannelPair) Close() error {
	return errors.Join(p.Presence.Close(), p.Messages.Close())
}
