package interfaces

import (
	"context"

	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

// ChatService is the outbound action interface to the chat platform. All
// methods address a conversation by its key; the implementation resolves the
// key to the platform's channel or DM identifier.
type ChatService interface {
	// SendMessage posts a response into the conversation. Suggestions, when
	// non-empty, are rendered as user-selectable follow-up options.
	SendMessage(ctx context.Context, key model.ConversationKey, text string, suggestions []string) error

	// SendNotification posts a scheduler-triggered notification
	SendNotification(ctx context.Context, key model.ConversationKey, text string) error

	// PostImage uploads an image into the conversation
	PostImage(ctx context.Context, key model.ConversationKey, name string, data []byte) error

	// BotUserID returns the platform user ID the service posts as. Used by
	// inbound handling to ignore the assistant's own messages.
	BotUserID(ctx context.Context) (string, error)
}
