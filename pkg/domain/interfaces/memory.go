package interfaces

import (
	"context"

	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// MemoryRepository defines the interface for MemoryRecord persistence.
// Record IDs are deterministic deduplication keys, so Create with an existing
// ID overwrites the identical record and promotion retries stay idempotent.
type MemoryRepository interface {
	// Create persists a memory record under its deduplication ID
	Create(ctx context.Context, record *model.MemoryRecord) error

	// Get retrieves a memory record by ID
	Get(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error)

	// List retrieves all memory records owned by the given scope owner,
	// newest first
	List(ctx context.Context, scope types.MemoryScope, ownerID string) ([]*model.MemoryRecord, error)

	// DeleteByOwner removes all memory records owned by the given scope
	// owner and returns the number removed. This is the only deletion path.
	DeleteByOwner(ctx context.Context, scope types.MemoryScope, ownerID string) (int, error)

	// FindByEmbedding performs vector similarity search using cosine
	// distance within one scope owner. Returns up to limit records most
	// similar to the given embedding, best match first.
	FindByEmbedding(ctx context.Context, scope types.MemoryScope, ownerID string, embedding []float32, limit int) ([]*model.MemoryRecord, error)
}
