package interfaces

import (
	"context"

	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// TurnRepository defines the interface for Turn record persistence. Turn
// records are the audit trail of processed messages; the orchestrator
// creates one per inbound message and updates its status on completion.
type TurnRepository interface {
	// Create persists a new turn record
	Create(ctx context.Context, turn *model.Turn) error

	// Get retrieves a turn by ID
	Get(ctx context.Context, id model.TurnID) (*model.Turn, error)

	// UpdateStatus transitions a turn's status
	UpdateStatus(ctx context.Context, id model.TurnID, status types.TurnStatus) error

	// ListByConversation retrieves recent turns of one conversation,
	// newest first, up to limit
	ListByConversation(ctx context.Context, key model.ConversationKey, limit int) ([]*model.Turn, error)
}
