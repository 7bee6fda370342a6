package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// TurnID is a UUID-based identifier for a Turn. UUID v7 keeps IDs
// time-ordered so turns sort naturally in storage.
type TurnID string

// NewTurnID generates a new UUID v7 TurnID
func NewTurnID() TurnID {
	return TurnID(uuid.Must(uuid.NewV7()).String())
}

// String returns the string representation of TurnID
func (t TurnID) String() string {
	return string(t)
}

// MaxAttachments is the maximum number of attachments processed per turn.
// Extra attachments are dropped before processing.
const MaxAttachments = 5

// MaxAttachmentSize is the maximum accepted attachment size in bytes (50MB)
const MaxAttachmentSize = 50 * 1024 * 1024

// Attachment is one inbound media blob. Data holds the raw bytes until the
// attachment store persists them, after which StorageRef points at the blob
// and Data may be released.
type Attachment struct {
	Name       string
	Kind       types.MediaKind
	MimeType   string
	Data       []byte
	StorageRef string
}

// Turn represents one user message and its processing through response
type Turn struct {
	ID              TurnID
	ConversationKey ConversationKey
	AuthorID        types.UserID
	Text            string
	Attachments     []Attachment
	Status          types.TurnStatus
	CreatedAt       time.Time
}

// NewTurn creates a pending Turn for an inbound message
func NewTurn(key ConversationKey, authorID types.UserID, text string, attachments []Attachment) *Turn {
	if len(attachments) > MaxAttachments {
		attachments = attachments[:MaxAttachments]
	}
	return &Turn{
		ID:              NewTurnID(),
		ConversationKey: key,
		AuthorID:        authorID,
		Text:            text,
		Attachments:     attachments,
		Status:          types.TurnStatusPending,
		CreatedAt:       time.Now(),
	}
}
