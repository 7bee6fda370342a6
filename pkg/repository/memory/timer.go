package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

type timerRepository struct {
	mu    sync.Mutex
	tasks map[model.TaskID]*model.TimerTask
}

func newTimerRepository() *timerRepository {
	return &timerRepository{
		tasks: make(map[model.TaskID]*model.TimerTask),
	}
}

func copyTask(t *model.TimerTask) *model.TimerTask {
	copied := *t
	return &copied
}

func (r *timerRepository) Create(ctx context.Context, task *model.TimerTask) error {
	if task.ID == "" {
		return goerr.New("timer task has no ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return goerr.New("timer task already exists", goerr.V("taskID", task.ID))
	}

	r.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *timerRepository) Get(ctx context.Context, id model.TaskID) (*model.TimerTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, exists := r.tasks[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "timer task not found", goerr.V("taskID", id))
	}

	return copyTask(task), nil
}

func (r *timerRepository) MarkDelivered(ctx context.Context, id model.TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, exists := r.tasks[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "timer task not found", goerr.V("taskID", id))
	}
	if task.Delivered {
		return goerr.Wrap(model.ErrTaskAlreadyDelivered, "delivery already recorded", goerr.V("taskID", id))
	}

	task.Delivered = true
	return nil
}

func (r *timerRepository) Delete(ctx context.Context, id model.TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[id]; !exists {
		return goerr.Wrap(ErrNotFound, "timer task not found", goerr.V("taskID", id))
	}

	delete(r.tasks, id)
	return nil
}

func (r *timerRepository) ListPending(ctx context.Context) ([]*model.TimerTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*model.TimerTask, 0)
	for _, t := range r.tasks {
		if !t.Delivered {
			result = append(result, copyTask(t))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FireAt.Before(result[j].FireAt)
	})

	return result, nil
}
