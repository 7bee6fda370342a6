package semindex

import (
	"context"
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// embedTimeout bounds a single embedding call
const embedTimeout = 30 * time.Second

// Adapter hides the similarity engine behind the insert/query contract. It
// owns embedding generation; vector lookup is delegated to the repository
// backend (Firestore FindNearest or the in-memory scorer).
type Adapter struct {
	llmClient gollem.LLMClient
	repo      interfaces.MemoryRepository
}

var _ interfaces.SemanticIndex = &Adapter{}

// New creates a semantic index adapter over the given LLM client and
// memory repository
func New(llmClient gollem.LLMClient, repo interfaces.MemoryRepository) (*Adapter, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	if repo == nil {
		return nil, goerr.New("memory repository is required")
	}

	return &Adapter{
		llmClient: llmClient,
		repo:      repo,
	}, nil
}

// Insert embeds the record's payload (unless an embedding is already
// attached) and persists it. The record ID is its deduplication key, so
// inserting the same record twice is a no-op.
func (x *Adapter) Insert(ctx context.Context, record *model.MemoryRecord) (model.MemoryID, error) {
	if len(record.Embedding) == 0 {
		embedding, err := x.generateEmbedding(ctx, record.PayloadText())
		if err != nil {
			return "", goerr.Wrap(err, "failed to embed memory record", goerr.V("memoryID", record.ID))
		}
		record.Embedding = embedding
	}

	if err := x.repo.Create(ctx, record); err != nil {
		return "", goerr.Wrap(err, "failed to index memory record", goerr.V("memoryID", record.ID))
	}

	return record.ID, nil
}

// Query embeds the query text and returns the topK most similar records of
// one scope owner, best first. When the embedding call or the backend fails,
// it returns an empty result set with an error wrapping
// model.ErrIndexUnavailable so the caller's turn can proceed without recall.
func (x *Adapter) Query(ctx context.Context, scope types.MemoryScope, ownerID string, queryText string, topK int) ([]*model.ScoredRecord, error) {
	queryEmbedding, err := x.generateEmbedding(ctx, queryText)
	if err != nil {
		return []*model.ScoredRecord{}, goerr.Wrap(model.ErrIndexUnavailable, "query embedding failed",
			goerr.V("scope", scope), goerr.V("owner", ownerID), goerr.V("cause", err.Error()))
	}

	records, err := x.repo.FindByEmbedding(ctx, scope, ownerID, queryEmbedding, topK)
	if err != nil {
		return []*model.ScoredRecord{}, goerr.Wrap(model.ErrIndexUnavailable, "vector search failed",
			goerr.V("scope", scope), goerr.V("owner", ownerID), goerr.V("cause", err.Error()))
	}

	scored := make([]*model.ScoredRecord, 0, len(records))
	for _, r := range records {
		scored = append(scored, &model.ScoredRecord{
			Record: r,
			Score:  cosineSimilarity(queryEmbedding, r.Embedding),
		})
	}

	return scored, nil
}

// generateEmbedding generates an embedding vector for the given text
func (x *Adapter) generateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	embeddings, err := x.llmClient.GenerateEmbedding(ctx, model.EmbeddingDimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}

	if len(embeddings) == 0 {
		return nil, goerr.New("no embedding returned")
	}

	// Convert float64 to float32
	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}

	return result, nil
}

func cosineSimilarity(a, b []float32) float64 {
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
