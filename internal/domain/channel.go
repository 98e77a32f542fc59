package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	ChannelKindMessages = "messages"
	ChannelKindPresence = "presence"
)

// MessageChannel is the broadcast channel name of a group.
func MessageChannel(groupID uuid.UUID) string {
	return "group:" + groupID.String() + ":" + ChannelKindMessages
}

// PresenceChannel is the presence channel name of a group.
func PresenceChannel(groupID uuid.UUID) string {
	return "group:" + groupID.String() + ":" + ChannelKindPresence
}

// ParseChannel splits a realtime channel name into its group id and kind.
func ParseChannel(name string) (uuid.UUID, string, error) {
	parts := strings.Split(name, ":")
	if len(parts) != 3 || parts[0] != "group" {
		return uuid.Nil, "", fmt.Errorf("invalid channel name %q", name)
	}
	if parts[2] != ChannelKindMessages && parts[2] != ChannelKindPresence {
		return uuid.Nil, "", fmt.Errorf("invalid channel kind %q", parts[2])
	}
	groupID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid group id in channel %q: %w", name, err)
	}
	return groupID, parts[2], nil
}
