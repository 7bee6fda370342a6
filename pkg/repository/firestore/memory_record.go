package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// memoryDoc is the Firestore document representation of model.MemoryRecord.
// Embedding is stored as firestore.Vector32 for FindNearest vector search.
type memoryDoc struct {
	ID              model.MemoryID     `firestore:"ID"`
	ConversationKey string             `firestore:"ConversationKey"`
	Scope           string             `firestore:"Scope"`
	OwnerID         string             `firestore:"OwnerID"`
	Payload         map[string]string  `firestore:"Payload"`
	Embedding       firestore.Vector32 `firestore:"Embedding,omitempty"`
	CreatedAt       time.Time          `firestore:"CreatedAt"`
}

func toMemoryDoc(m *model.MemoryRecord) *memoryDoc {
	doc := &memoryDoc{
		ID:              m.ID,
		ConversationKey: m.ConversationKey.String(),
		Scope:           m.Scope.String(),
		OwnerID:         m.OwnerID,
		Payload:         m.Payload,
		CreatedAt:       m.CreatedAt,
	}
	if len(m.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(m.Embedding)
	}
	return doc
}

func fromMemoryDoc(d *memoryDoc) (*model.MemoryRecord, error) {
	key, err := model.ParseConversationKey(d.ConversationKey)
	if err != nil {
		return nil, goerr.Wrap(err, "broken conversation key in memory document", goerr.V("memoryID", d.ID))
	}

	m := &model.MemoryRecord{
		ID:              d.ID,
		ConversationKey: key,
		Scope:           types.MemoryScope(d.Scope),
		OwnerID:         d.OwnerID,
		Payload:         d.Payload,
		CreatedAt:       d.CreatedAt,
	}
	if len(d.Embedding) > 0 {
		m.Embedding = []float32(d.Embedding)
	}
	return m, nil
}

type memoryRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newMemoryRepository(client *firestore.Client) *memoryRepository {
	return &memoryRepository{client: client}
}

func (r *memoryRepository) scopesCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_scopes"
	}
	return "scopes"
}

// memoriesCollection returns the subcollection path:
// scopes/{scope}/owners/{ownerID}/memories
func (r *memoryRepository) memoriesCollection(scope types.MemoryScope, ownerID string) *firestore.CollectionRef {
	return r.client.Collection(r.scopesCollection()).Doc(scope.String()).
		Collection("owners").Doc(ownerID).
		Collection("memories")
}

func (r *memoryRepository) Create(ctx context.Context, record *model.MemoryRecord) error {
	if record.ID == "" {
		return goerr.New("memory record has no ID")
	}

	// Set on a deterministic doc ID: re-creating the same promoted batch
	// overwrites the identical record instead of duplicating it.
	docRef := r.memoriesCollection(record.Scope, record.OwnerID).Doc(string(record.ID))
	if _, err := docRef.Set(ctx, toMemoryDoc(record)); err != nil {
		return goerr.Wrap(err, "failed to create memory record", goerr.V("memoryID", record.ID))
	}

	return nil
}

func (r *memoryRepository) Get(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error) {
	// ID lookup without knowing the owner requires a collection group query
	iter := r.client.CollectionGroup("memories").Where("ID", "==", string(id)).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, goerr.Wrap(ErrNotFound, "memory record not found", goerr.V("memoryID", id))
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "memory record not found", goerr.V("memoryID", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory record", goerr.V("memoryID", id))
	}

	var d memoryDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal memory record", goerr.V("memoryID", id))
	}

	return fromMemoryDoc(&d)
}

func (r *memoryRepository) List(ctx context.Context, scope types.MemoryScope, ownerID string) ([]*model.MemoryRecord, error) {
	iter := r.memoriesCollection(scope, ownerID).
		OrderBy("CreatedAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	records := make([]*model.MemoryRecord, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory records")
		}

		var d memoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory record")
		}

		record, err := fromMemoryDoc(&d)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func (r *memoryRepository) DeleteByOwner(ctx context.Context, scope types.MemoryScope, ownerID string) (int, error) {
	iter := r.memoriesCollection(scope, ownerID).Documents(ctx)
	defer iter.Stop()

	deleted := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, goerr.Wrap(err, "failed to iterate memory records for deletion")
		}

		if _, err := doc.Ref.Delete(ctx); err != nil {
			return deleted, goerr.Wrap(err, "failed to delete memory record", goerr.V("docID", doc.Ref.ID))
		}
		deleted++
	}

	return deleted, nil
}

func (r *memoryRepository) FindByEmbedding(ctx context.Context, scope types.MemoryScope, ownerID string, embedding []float32, limit int) ([]*model.MemoryRecord, error) {
	vq := r.memoriesCollection(scope, ownerID).
		FindNearest("Embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine, nil)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	records := make([]*model.MemoryRecord, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory vector search results")
		}

		var d memoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory record from vector search")
		}

		record, err := fromMemoryDoc(&d)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}
