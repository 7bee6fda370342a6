package interfaces

import (
	"context"

	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// SemanticIndex wraps embedding generation and vector-similarity lookup for
// long-term memory. Query must tolerate the backing engine being down: it
// returns an empty result set with an error wrapping model.ErrIndexUnavailable
// instead of aborting the caller's turn.
type SemanticIndex interface {
	// Insert embeds and indexes a memory record, returning its index ID
	Insert(ctx context.Context, record *model.MemoryRecord) (model.MemoryID, error)

	// Query returns up to topK records relevant to the query text within one
	// scope owner, ordered by descending similarity score
	Query(ctx context.Context, scope types.MemoryScope, ownerID string, queryText string, topK int) ([]*model.ScoredRecord, error)
}
