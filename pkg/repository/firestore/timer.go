package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// timerDoc is the Firestore document representation of model.TimerTask
type timerDoc struct {
	ID              model.TaskID `firestore:"ID"`
	ConversationKey string       `firestore:"ConversationKey"`
	FireAt          time.Time    `firestore:"FireAt"`
	Payload         string       `firestore:"Payload"`
	Delivered       bool         `firestore:"Delivered"`
	CreatedAt       time.Time    `firestore:"CreatedAt"`
}

func toTimerDoc(t *model.TimerTask) *timerDoc {
	return &timerDoc{
		ID:              t.ID,
		ConversationKey: t.ConversationKey.String(),
		FireAt:          t.FireAt,
		Payload:         t.Payload,
		Delivered:       t.Delivered,
		CreatedAt:       t.CreatedAt,
	}
}

func fromTimerDoc(d *timerDoc) (*model.TimerTask, error) {
	key, err := model.ParseConversationKey(d.ConversationKey)
	if err != nil {
		return nil, goerr.Wrap(err, "broken conversation key in timer document", goerr.V("taskID", d.ID))
	}

	return &model.TimerTask{
		ID:              d.ID,
		ConversationKey: key,
		FireAt:          d.FireAt,
		Payload:         d.Payload,
		Delivered:       d.Delivered,
		CreatedAt:       d.CreatedAt,
	}, nil
}

type timerRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newTimerRepository(client *firestore.Client) *timerRepository {
	return &timerRepository{client: client}
}

func (r *timerRepository) timersCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_timers"
	}
	return "timers"
}

func (r *timerRepository) Create(ctx context.Context, task *model.TimerTask) error {
	if task.ID == "" {
		return goerr.New("timer task has no ID")
	}

	docRef := r.client.Collection(r.timersCollection()).Doc(string(task.ID))
	if _, err := docRef.Create(ctx, toTimerDoc(task)); err != nil {
		return goerr.Wrap(err, "failed to create timer task", goerr.V("taskID", task.ID))
	}

	return nil
}

func (r *timerRepository) Get(ctx context.Context, id model.TaskID) (*model.TimerTask, error) {
	docRef := r.client.Collection(r.timersCollection()).Doc(string(id))
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "timer task not found", goerr.V("taskID", id))
		}
		return nil, goerr.Wrap(err, "failed to get timer task", goerr.V("taskID", id))
	}

	var d timerDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal timer task", goerr.V("taskID", id))
	}

	return fromTimerDoc(&d)
}

// MarkDelivered flips the delivered flag inside a transaction so two
// concurrent deliveries (or a delivery racing a restart) cannot both win.
func (r *timerRepository) MarkDelivered(ctx context.Context, id model.TaskID) error {
	docRef := r.client.Collection(r.timersCollection()).Doc(string(id))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "timer task not found", goerr.V("taskID", id))
			}
			return goerr.Wrap(err, "failed to get timer task", goerr.V("taskID", id))
		}

		var d timerDoc
		if err := doc.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal timer task", goerr.V("taskID", id))
		}
		if d.Delivered {
			return goerr.Wrap(model.ErrTaskAlreadyDelivered, "delivery already recorded", goerr.V("taskID", id))
		}

		return tx.Update(docRef, []firestore.Update{{Path: "Delivered", Value: true}})
	})
	if err != nil {
		return err
	}

	return nil
}

func (r *timerRepository) Delete(ctx context.Context, id model.TaskID) error {
	docRef := r.client.Collection(r.timersCollection()).Doc(string(id))

	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "timer task not found", goerr.V("taskID", id))
		}
		return goerr.Wrap(err, "failed to get timer task", goerr.V("taskID", id))
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete timer task", goerr.V("taskID", id))
	}

	return nil
}

func (r *timerRepository) ListPending(ctx context.Context) ([]*model.TimerTask, error) {
	iter := r.client.Collection(r.timersCollection()).
		Where("Delivered", "==", false).
		OrderBy("FireAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	tasks := make([]*model.TimerTask, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate pending timer tasks")
		}

		var d timerDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal timer task")
		}

		task, err := fromTimerDoc(&d)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}
