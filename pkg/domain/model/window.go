package model

import (
	"time"

	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// DefaultWindowHorizon is the rolling time horizon of the short-term window.
// Entries older than this are evicted and handed to the promoter.
const DefaultWindowHorizon = 10 * time.Minute

// WindowEntry is one element of the short-term conversational window.
// ToolName is set when the entry was produced by a tool rather than a plain
// model response.
type WindowEntry struct {
	Role      types.Role
	Content   string
	ToolName  string
	CreatedAt time.Time
}

// NewUserEntry creates a window entry for a user message
func NewUserEntry(content string, at time.Time) WindowEntry {
	return WindowEntry{Role: types.RoleUser, Content: content, CreatedAt: at}
}

// NewAssistantEntry creates a window entry for an assistant response
func NewAssistantEntry(content string, at time.Time) WindowEntry {
	return WindowEntry{Role: types.RoleAssistant, Content: content, CreatedAt: at}
}

// NewToolEntry creates a window entry for a tool-produced response
func NewToolEntry(toolName, content string, at time.Time) WindowEntry {
	return WindowEntry{Role: types.RoleAssistant, Content: content, ToolName: toolName, CreatedAt: at}
}
