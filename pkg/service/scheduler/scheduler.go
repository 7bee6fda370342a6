package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/utils/errutil"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

// idleWait bounds how long the loop sleeps when no task is pending. A wake
// signal cuts the sleep short whenever Schedule arms an earlier task.
const idleWait = time.Hour

// NotifyFunc delivers a fired task payload back to its conversation.
type NotifyFunc func(ctx context.Context, key model.ConversationKey, payload string) error

// Service fires deferred tasks at their scheduled time.
//
// Tasks are persisted before they are armed, so Schedule only returns once a
// restart could recover the task. A single background loop pops due tasks
// from a min-heap ordered by fire time and marks each one delivered in the
// repository before invoking the callback: a crash between the two drops the
// notification rather than firing it twice.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - For future horizontal scaling, implement distributed locking or leader election
type Service struct {
	repo   interfaces.TimerRepository
	notify NotifyFunc

	mu        sync.Mutex
	pending   taskHeap
	cancelled map[model.TaskID]struct{}

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a scheduler that delivers fired tasks through notify.
func New(repo interfaces.TimerRepository, notify NotifyFunc) *Service {
	return &Service{
		repo:      repo,
		notify:    notify,
		cancelled: make(map[model.TaskID]struct{}),
		wakeCh:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start reloads undelivered tasks from the repository and begins the
// dispatch loop. Tasks already past due fire on the first iteration.
func (s *Service) Start(ctx context.Context) error {
	tasks, err := s.repo.ListPending(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to load pending timer tasks")
	}

	s.mu.Lock()
	for _, task := range tasks {
		heap.Push(&s.pending, task)
	}
	pending := len(s.pending)
	s.mu.Unlock()

	logging.From(ctx).Info("Timer scheduler starting", "pending", pending)

	go s.run(ctx)

	return nil
}

// Stop signals the dispatch loop to stop and waits for completion.
func (s *Service) Stop() {
	logging.Default().Info("Timer scheduler stopping")
	close(s.stopCh)
	<-s.doneCh
	logging.Default().Info("Timer scheduler stopped")
}

// Schedule persists a task firing after delay and arms it. The task record
// is durable by the time Schedule returns.
func (s *Service) Schedule(ctx context.Context, key model.ConversationKey, delay time.Duration, payload string) (*model.TimerTask, error) {
	if err := key.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid conversation key")
	}
	if delay < 0 {
		delay = 0
	}

	task := model.NewTimerTask(key, delay, payload)

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, goerr.Wrap(err, "failed to persist timer task", goerr.V("task_id", task.ID))
	}

	s.mu.Lock()
	heap.Push(&s.pending, task)
	s.mu.Unlock()
	s.wake()

	logging.From(ctx).Debug("Timer task scheduled",
		"task_id", task.ID,
		"fire_at", task.FireAt,
		"conversation", key.String())

	return task, nil
}

// Cancel removes an undelivered task. Returns model.ErrTaskAlreadyDelivered
// if the task has already fired.
func (s *Service) Cancel(ctx context.Context, id model.TaskID) error {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to get timer task", goerr.V("task_id", id))
	}
	if task.Delivered {
		return goerr.Wrap(model.ErrTaskAlreadyDelivered, "cannot cancel delivered task", goerr.V("task_id", id))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete timer task", goerr.V("task_id", id))
	}

	// The heap entry is removed lazily: the dispatch loop skips IDs in the
	// cancelled set when they surface.
	s.mu.Lock()
	s.cancelled[id] = struct{}{}
	s.mu.Unlock()

	return nil
}

// wake nudges the dispatch loop to recompute its sleep after a new task is
// armed. Non-blocking: a pending wake is enough.
func (s *Service) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// run is the main dispatch loop (runs in goroutine)
func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		timer := time.NewTimer(s.nextWait())

		select {
		case <-timer.C:
			s.fireDue(ctx)

		case <-s.wakeCh:
			timer.Stop()

		case <-s.stopCh:
			timer.Stop()
			logging.From(ctx).Info("Timer scheduler received stop signal")
			return

		case <-ctx.Done():
			timer.Stop()
			logging.From(ctx).Info("Timer scheduler context cancelled")
			return
		}
	}
}

// nextWait returns how long the loop should sleep until the earliest task is
// due. Zero means a task is already due.
func (s *Service) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return idleWait
	}
	wait := time.Until(s.pending[0].FireAt)
	if wait < 0 {
		return 0
	}
	return wait
}

// fireDue pops and delivers every task whose fire time has passed.
func (s *Service) fireDue(ctx context.Context) {
	now := time.Now()
	for {
		task := s.popDue(now)
		if task == nil {
			return
		}
		s.deliver(ctx, task)
	}
}

// popDue removes the earliest due task from the heap, skipping cancelled
// entries. Returns nil when nothing is due.
func (s *Service) popDue(now time.Time) *model.TimerTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) > 0 {
		if s.pending[0].FireAt.After(now) {
			return nil
		}
		task := heap.Pop(&s.pending).(*model.TimerTask)
		if _, ok := s.cancelled[task.ID]; ok {
			delete(s.cancelled, task.ID)
			continue
		}
		return task
	}
	return nil
}

// deliver marks the task delivered and invokes the callback. The repository
// write comes first so the task cannot fire again after a restart.
func (s *Service) deliver(ctx context.Context, task *model.TimerTask) {
	if err := s.repo.MarkDelivered(ctx, task.ID); err != nil {
		if errors.Is(err, model.ErrTaskAlreadyDelivered) {
			logging.From(ctx).Debug("Timer task already delivered, skipping",
				"task_id", task.ID)
			return
		}
		_ = errutil.Handle(ctx, err, "failed to mark timer task delivered")
		return
	}

	if err := s.notify(ctx, task.ConversationKey, task.Payload); err != nil {
		_ = errutil.Handle(ctx, err, "timer task delivery failed")
		return
	}

	logging.From(ctx).Info("Timer task delivered",
		"task_id", task.ID,
		"conversation", task.ConversationKey.String())
}

// taskHeap is a min-heap of timer tasks ordered by fire time.
type taskHeap []*model.TimerTask

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].FireAt.Before(h[j].FireAt) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*model.TimerTask))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}
