package usecase

import "context"

// SyncDispatch makes detached turn execution synchronous for tests
func SyncDispatch() {
	dispatchTurnAsync = func(ctx context.Context, handler func(ctx context.Context) error) {
		_ = handler(ctx)
	}
}

// StripMentions is exported for testing
var StripMentions = stripMentions

// MergeScored is exported for testing
var MergeScored = mergeScored

// Turn pipeline messages exported for testing
const (
	ClarificationMessage = clarificationMessage
	ApologyMessage       = apologyMessage
)
