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

// turnAttachmentDoc stores attachment metadata only. Raw bytes live in the
// attachment store; the document keeps the storage reference.
type turnAttachmentDoc struct {
	Name       string `firestore:"Name"`
	Kind       string `firestore:"Kind"`
	MimeType   string `firestore:"MimeType"`
	StorageRef string `firestore:"StorageRef"`
}

// turnDoc is the Firestore document representation of model.Turn
type turnDoc struct {
	ID              model.TurnID        `firestore:"ID"`
	ConversationKey string              `firestore:"ConversationKey"`
	AuthorID        string              `firestore:"AuthorID"`
	Text            string              `firestore:"Text"`
	Attachments     []turnAttachmentDoc `firestore:"Attachments,omitempty"`
	Status          string              `firestore:"Status"`
	CreatedAt       time.Time           `firestore:"CreatedAt"`
}

func toTurnDoc(t *model.Turn) *turnDoc {
	doc := &turnDoc{
		ID:              t.ID,
		ConversationKey: t.ConversationKey.String(),
		AuthorID:        t.AuthorID.String(),
		Text:            t.Text,
		Status:          t.Status.String(),
		CreatedAt:       t.CreatedAt,
	}
	for _, a := range t.Attachments {
		doc.Attachments = append(doc.Attachments, turnAttachmentDoc{
			Name:       a.Name,
			Kind:       a.Kind.String(),
			MimeType:   a.MimeType,
			StorageRef: a.StorageRef,
		})
	}
	return doc
}

func fromTurnDoc(d *turnDoc) (*model.Turn, error) {
	key, err := model.ParseConversationKey(d.ConversationKey)
	if err != nil {
		return nil, goerr.Wrap(err, "broken conversation key in turn document", goerr.V("turnID", d.ID))
	}

	t := &model.Turn{
		ID:              d.ID,
		ConversationKey: key,
		AuthorID:        types.UserID(d.AuthorID),
		Text:            d.Text,
		Status:          types.TurnStatus(d.Status),
		CreatedAt:       d.CreatedAt,
	}
	for _, a := range d.Attachments {
		t.Attachments = append(t.Attachments, model.Attachment{
			Name:       a.Name,
			Kind:       types.MediaKind(a.Kind),
			MimeType:   a.MimeType,
			StorageRef: a.StorageRef,
		})
	}
	return t, nil
}

type turnRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newTurnRepository(client *firestore.Client) *turnRepository {
	return &turnRepository{client: client}
}

func (r *turnRepository) turnsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_turns"
	}
	return "turns"
}

func (r *turnRepository) Create(ctx context.Context, turn *model.Turn) error {
	if turn.ID == "" {
		return goerr.New("turn has no ID")
	}

	docRef := r.client.Collection(r.turnsCollection()).Doc(string(turn.ID))
	if _, err := docRef.Create(ctx, toTurnDoc(turn)); err != nil {
		return goerr.Wrap(err, "failed to create turn", goerr.V("turnID", turn.ID))
	}

	return nil
}

func (r *turnRepository) Get(ctx context.Context, id model.TurnID) (*model.Turn, error) {
	docRef := r.client.Collection(r.turnsCollection()).Doc(string(id))
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "turn not found", goerr.V("turnID", id))
		}
		return nil, goerr.Wrap(err, "failed to get turn", goerr.V("turnID", id))
	}

	var d turnDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal turn", goerr.V("turnID", id))
	}

	return fromTurnDoc(&d)
}

func (r *turnRepository) UpdateStatus(ctx context.Context, id model.TurnID, newStatus types.TurnStatus) error {
	docRef := r.client.Collection(r.turnsCollection()).Doc(string(id))

	_, err := docRef.Update(ctx, []firestore.Update{{Path: "Status", Value: newStatus.String()}})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "turn not found", goerr.V("turnID", id))
		}
		return goerr.Wrap(err, "failed to update turn status", goerr.V("turnID", id))
	}

	return nil
}

func (r *turnRepository) ListByConversation(ctx context.Context, key model.ConversationKey, limit int) ([]*model.Turn, error) {
	iter := r.client.Collection(r.turnsCollection()).
		Where("ConversationKey", "==", key.String()).
		OrderBy("CreatedAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	turns := make([]*model.Turn, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate turns")
		}

		var d turnDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal turn")
		}

		turn, err := fromTurnDoc(&d)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}

	return turns, nil
}
