package tool

import (
	"context"

	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// UpdateFunc is a function that posts a progress message during tool execution.
// Tools call this to report what they are doing to the user in real time.
type UpdateFunc func(ctx context.Context, message string)

type updateCtxKey struct{}

// WithUpdate returns a new context that carries the given UpdateFunc.
func WithUpdate(ctx context.Context, fn UpdateFunc) context.Context {
	return context.WithValue(ctx, updateCtxKey{}, fn)
}

// Update calls the UpdateFunc stored in ctx with the given message.
// If no UpdateFunc is present in ctx, the call is a no-op.
func Update(ctx context.Context, message string) {
	if fn, ok := ctx.Value(updateCtxKey{}).(UpdateFunc); ok {
		fn(ctx, message)
	}
}

type conversationCtxKey struct{}

// WithConversation returns a new context carrying the conversation key of the
// in-flight turn. The orchestrator sets it before dispatching so catalog
// tools, built once at startup, can address the conversation they were
// invoked from.
func WithConversation(ctx context.Context, key model.ConversationKey) context.Context {
	return context.WithValue(ctx, conversationCtxKey{}, key)
}

// ConversationFrom returns the conversation key of the in-flight turn.
func ConversationFrom(ctx context.Context) (model.ConversationKey, bool) {
	key, ok := ctx.Value(conversationCtxKey{}).(model.ConversationKey)
	return key, ok
}

type authorCtxKey struct{}

// WithAuthor returns a new context carrying the user who sent the message
// being processed.
func WithAuthor(ctx context.Context, userID types.UserID) context.Context {
	return context.WithValue(ctx, authorCtxKey{}, userID)
}

// AuthorFrom returns the author of the message being processed.
func AuthorFrom(ctx context.Context) (types.UserID, bool) {
	userID, ok := ctx.Value(authorCtxKey{}).(types.UserID)
	return userID, ok
}
