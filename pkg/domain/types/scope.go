package types

import "fmt"

// MemoryScope represents the ownership scope of a long-term memory record
type MemoryScope string

const (
	// ScopeServer scopes a memory to a server (channel conversations)
	ScopeServer MemoryScope = "server"
	// ScopeUser scopes a memory to a single user (direct messages)
	ScopeUser MemoryScope = "user"
)

// AllMemoryScopes returns all valid memory scopes
func AllMemoryScopes() []MemoryScope {
	return []MemoryScope{
		ScopeServer,
		ScopeUser,
	}
}

// IsValid checks if the memory scope is valid
func (s MemoryScope) IsValid() bool {
	switch s {
	case ScopeServer, ScopeUser:
		return true
	default:
		return false
	}
}

// String returns the string representation of the memory scope
func (s MemoryScope) String() string {
	return string(s)
}

// ParseMemoryScope parses a string into a MemoryScope
func ParseMemoryScope(s string) (MemoryScope, error) {
	scope := MemoryScope(s)
	if !scope.IsValid() {
		return "", fmt.Errorf("invalid memory scope: %s", s)
	}
	return scope, nil
}
