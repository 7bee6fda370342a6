package model

import (
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// ConversationKey identifies one independent conversation: either a channel
// within a server, or a direct message with a single user. It is the sharding
// key for all per-conversation state and is never mutated after creation.
// The zero value is invalid.
type ConversationKey struct {
	serverID  types.ServerID
	channelID types.ChannelID
	userID    types.UserID
}

// NewServerConversationKey creates a key for a channel conversation
func NewServerConversationKey(serverID types.ServerID, channelID types.ChannelID) ConversationKey {
	return ConversationKey{serverID: serverID, channelID: channelID}
}

// NewUserConversationKey creates a key for a direct message conversation
func NewUserConversationKey(userID types.UserID) ConversationKey {
	return ConversationKey{userID: userID}
}

// ServerID returns the server ID (empty for user-scoped keys)
func (k ConversationKey) ServerID() types.ServerID {
	return k.serverID
}

// ChannelID returns the channel ID (empty for user-scoped keys)
func (k ConversationKey) ChannelID() types.ChannelID {
	return k.channelID
}

// UserID returns the user ID (empty for server-scoped keys)
func (k ConversationKey) UserID() types.UserID {
	return k.userID
}

// Scope returns the memory scope this conversation belongs to
func (k ConversationKey) Scope() types.MemoryScope {
	if k.userID != "" {
		return types.ScopeUser
	}
	return types.ScopeServer
}

// ScopeOwnerID returns the default scope owner for this conversation:
// the server ID for channel conversations, the user ID for direct messages.
func (k ConversationKey) ScopeOwnerID() string {
	if k.userID != "" {
		return k.userID.String()
	}
	return k.serverID.String()
}

// Validate checks that exactly one of the two key forms is set
func (k ConversationKey) Validate() error {
	server := k.serverID != "" || k.channelID != ""
	user := k.userID != ""

	switch {
	case server && user:
		return goerr.New("conversation key cannot be both server and user scoped",
			goerr.V("server_id", k.serverID), goerr.V("user_id", k.userID))
	case !server && !user:
		return goerr.New("conversation key is empty")
	case server && (k.serverID == "" || k.channelID == ""):
		return goerr.New("server-scoped conversation key requires both server and channel",
			goerr.V("server_id", k.serverID), goerr.V("channel_id", k.channelID))
	}
	return nil
}

// String returns the canonical sharding key representation
func (k ConversationKey) String() string {
	if k.userID != "" {
		return fmt.Sprintf("user:%s", k.userID)
	}
	return fmt.Sprintf("server:%s:%s", k.serverID, k.channelID)
}

// ParseConversationKey parses the canonical representation produced by String
func ParseConversationKey(s string) (ConversationKey, error) {
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 2 && parts[0] == "user" && parts[1] != "":
		return NewUserConversationKey(types.UserID(parts[1])), nil
	case len(parts) == 3 && parts[0] == "server" && parts[1] != "" && parts[2] != "":
		return NewServerConversationKey(types.ServerID(parts[1]), types.ChannelID(parts[2])), nil
	default:
		return ConversationKey{}, goerr.New("invalid conversation key", goerr.V("key", s))
	}
}
