package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// ownerKey is a composite key for memory buckets (scope + ownerID)
type ownerKey struct {
	scope   types.MemoryScope
	ownerID string
}

type memoryRepository struct {
	mu      sync.RWMutex
	entries map[ownerKey]map[model.MemoryID]*model.MemoryRecord
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		entries: make(map[ownerKey]map[model.MemoryID]*model.MemoryRecord),
	}
}

func (r *memoryRepository) ensureKey(key ownerKey) {
	if _, exists := r.entries[key]; !exists {
		r.entries[key] = make(map[model.MemoryID]*model.MemoryRecord)
	}
}

func copyRecord(m *model.MemoryRecord) *model.MemoryRecord {
	copied := &model.MemoryRecord{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		Scope:           m.Scope,
		OwnerID:         m.OwnerID,
		CreatedAt:       m.CreatedAt,
	}
	if m.Payload != nil {
		copied.Payload = make(map[string]string, len(m.Payload))
		for k, v := range m.Payload {
			copied.Payload[k] = v
		}
	}
	if m.Embedding != nil {
		copied.Embedding = make([]float32, len(m.Embedding))
		copy(copied.Embedding, m.Embedding)
	}
	return copied
}

func (r *memoryRepository) Create(ctx context.Context, record *model.MemoryRecord) error {
	if record.ID == "" {
		return goerr.New("memory record has no ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := ownerKey{scope: record.Scope, ownerID: record.OwnerID}
	r.ensureKey(key)

	// Same ID overwrites: promotion retries on the same batch are no-ops
	r.entries[key][record.ID] = copyRecord(record)
	return nil
}

func (r *memoryRepository) Get(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, bucket := range r.entries {
		if record, exists := bucket[id]; exists {
			return copyRecord(record), nil
		}
	}

	return nil, goerr.Wrap(ErrNotFound, "memory record not found", goerr.V("memoryID", id))
}

func (r *memoryRepository) List(ctx context.Context, scope types.MemoryScope, ownerID string) ([]*model.MemoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[ownerKey{scope: scope, ownerID: ownerID}]
	if !exists {
		return []*model.MemoryRecord{}, nil
	}

	result := make([]*model.MemoryRecord, 0, len(bucket))
	for _, m := range bucket {
		result = append(result, copyRecord(m))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *memoryRepository) DeleteByOwner(ctx context.Context, scope types.MemoryScope, ownerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ownerKey{scope: scope, ownerID: ownerID}
	bucket, exists := r.entries[key]
	if !exists {
		return 0, nil
	}

	deleted := len(bucket)
	delete(r.entries, key)
	return deleted, nil
}

func (r *memoryRepository) FindByEmbedding(ctx context.Context, scope types.MemoryScope, ownerID string, embedding []float32, limit int) ([]*model.MemoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[ownerKey{scope: scope, ownerID: ownerID}]
	if !exists {
		return []*model.MemoryRecord{}, nil
	}

	type scored struct {
		record *model.MemoryRecord
		score  float64
	}

	var candidates []scored
	for _, m := range bucket {
		if len(m.Embedding) == 0 {
			continue
		}
		s := recordCosineSimilarity(embedding, m.Embedding)
		candidates = append(candidates, scored{record: copyRecord(m), score: s})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}

	result := make([]*model.MemoryRecord, limit)
	for i := 0; i < limit; i++ {
		result[i] = candidates[i].record
	}

	return result, nil
}

func recordCosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
