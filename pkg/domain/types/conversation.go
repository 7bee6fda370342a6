package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// ServerID represents a chat platform server (workspace/guild) identifier
type ServerID string

// Validate checks if the ServerID is valid
func (s ServerID) Validate() error {
	if s == "" {
		return goerr.New("server ID cannot be empty")
	}
	return nil
}

// String returns the string representation of ServerID
func (s ServerID) String() string {
	return string(s)
}

// ChannelID represents a chat platform channel identifier
type ChannelID string

// Validate checks if the ChannelID is valid
func (c ChannelID) Validate() error {
	if c == "" {
		return goerr.New("channel ID cannot be empty")
	}
	return nil
}

// String returns the string representation of ChannelID
func (c ChannelID) String() string {
	return string(c)
}

// UserID represents a chat platform user identifier
type UserID string

// Validate checks if the UserID is valid
func (u UserID) Validate() error {
	if u == "" {
		return goerr.New("user ID cannot be empty")
	}
	return nil
}

// String returns the string representation of UserID
func (u UserID) String() string {
	return string(u)
}
