package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

type turnRepository struct {
	mu    sync.RWMutex
	turns map[model.TurnID]*model.Turn
}

func newTurnRepository() *turnRepository {
	return &turnRepository{
		turns: make(map[model.TurnID]*model.Turn),
	}
}

func copyTurn(t *model.Turn) *model.Turn {
	copied := *t
	if t.Attachments != nil {
		copied.Attachments = make([]model.Attachment, len(t.Attachments))
		copy(copied.Attachments, t.Attachments)
	}
	return &copied
}

func (r *turnRepository) Create(ctx context.Context, turn *model.Turn) error {
	if turn.ID == "" {
		return goerr.New("turn has no ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.turns[turn.ID]; exists {
		return goerr.New("turn already exists", goerr.V("turnID", turn.ID))
	}

	r.turns[turn.ID] = copyTurn(turn)
	return nil
}

func (r *turnRepository) Get(ctx context.Context, id model.TurnID) (*model.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	turn, exists := r.turns[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "turn not found", goerr.V("turnID", id))
	}

	return copyTurn(turn), nil
}

func (r *turnRepository) UpdateStatus(ctx context.Context, id model.TurnID, newStatus types.TurnStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	turn, exists := r.turns[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "turn not found", goerr.V("turnID", id))
	}

	turn.Status = newStatus
	return nil
}

func (r *turnRepository) ListByConversation(ctx context.Context, key model.ConversationKey, limit int) ([]*model.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Turn, 0)
	for _, t := range r.turns {
		if t.ConversationKey == key {
			result = append(result, copyTurn(t))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}
