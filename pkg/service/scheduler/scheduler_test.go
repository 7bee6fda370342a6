package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/repository/memory"
	"github.com/secmon-lab/mnemosyne/pkg/service/scheduler"
)

type delivery struct {
	key     model.ConversationKey
	payload string
}

type notifyRecorder struct {
	mu         sync.Mutex
	deliveries []delivery
	signal     chan delivery
	err        error
}

func newNotifyRecorder() *notifyRecorder {
	return &notifyRecorder{signal: make(chan delivery, 8)}
}

func (r *notifyRecorder) notify(ctx context.Context, key model.ConversationKey, payload string) error {
	r.mu.Lock()
	r.deliveries = append(r.deliveries, delivery{key: key, payload: payload})
	err := r.err
	r.mu.Unlock()

	r.signal <- delivery{key: key, payload: payload}
	return err
}

func (r *notifyRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deliveries)
}

func (r *notifyRecorder) payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.deliveries))
	for _, d := range r.deliveries {
		out = append(out, d.payload)
	}
	return out
}

func testKey() model.ConversationKey {
	return model.NewUserConversationKey(types.UserID("U1"))
}

func TestSchedulePersistsBeforeReturn(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := newNotifyRecorder()
	s := scheduler.New(repo.Timer(), rec.notify)

	task, err := s.Schedule(ctx, testKey(), time.Hour, "drink water")
	gt.NoError(t, err).Required()

	stored, err := repo.Timer().Get(ctx, task.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.Payload).Equal("drink water")
	gt.Bool(t, stored.Delivered).False()
	gt.Value(t, stored.ConversationKey).Equal(testKey())
}

func TestScheduleRejectsInvalidKey(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := scheduler.New(repo.Timer(), newNotifyRecorder().notify)

	_, err := s.Schedule(ctx, model.ConversationKey{}, time.Minute, "x")
	gt.Error(t, err)
}

func TestDeliveredFlagSetBeforeCallback(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	var observed bool
	var taskID model.TaskID
	notify := func(ctx context.Context, key model.ConversationKey, payload string) error {
		stored, err := repo.Timer().Get(ctx, taskID)
		if err != nil {
			t.Errorf("unexpected error reading task during delivery: %v", err)
			return nil
		}
		observed = stored.Delivered
		return nil
	}

	s := scheduler.New(repo.Timer(), notify)
	task, err := s.Schedule(ctx, testKey(), 0, "stretch")
	gt.NoError(t, err).Required()
	taskID = task.ID

	s.FireDue(ctx)
	gt.Bool(t, observed).True()
}

func TestFireDueDeliversInFireTimeOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := newNotifyRecorder()
	s := scheduler.New(repo.Timer(), rec.notify)

	_, err := s.Schedule(ctx, testKey(), 0, "first")
	gt.NoError(t, err).Required()
	_, err = s.Schedule(ctx, testKey(), 50*time.Millisecond, "third")
	gt.NoError(t, err).Required()
	_, err = s.Schedule(ctx, testKey(), 25*time.Millisecond, "second")
	gt.NoError(t, err).Required()

	time.Sleep(80 * time.Millisecond)
	s.FireDue(ctx)

	gt.Array(t, rec.payloads()).Equal([]string{"first", "second", "third"})
	gt.Value(t, s.PendingCount()).Equal(0)
}

func TestFireDueSkipsFutureTasks(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := newNotifyRecorder()
	s := scheduler.New(repo.Timer(), rec.notify)

	_, err := s.Schedule(ctx, testKey(), time.Hour, "tomorrow")
	gt.NoError(t, err).Required()

	s.FireDue(ctx)
	gt.Value(t, rec.count()).Equal(0)
	gt.Value(t, s.PendingCount()).Equal(1)
}

func TestDeliveredTaskDoesNotFireTwice(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := newNotifyRecorder()
	s := scheduler.New(repo.Timer(), rec.notify)

	_, err := s.Schedule(ctx, testKey(), 0, "once only")
	gt.NoError(t, err).Required()

	s.FireDue(ctx)
	s.FireDue(ctx)
	gt.Value(t, rec.count()).Equal(1)
}

func TestRestartRecoversUndeliveredTasks(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := newNotifyRecorder()

	// First instance persists the task but goes away before it fires
	s1 := scheduler.New(repo.Timer(), rec.notify)
	_, err := s1.Schedule(ctx, testKey(), time.Hour, "survives restart")
	gt.NoError(t, err).Required()

	s2 := scheduler.New(repo.Timer(), rec.notify)
	gt.NoError(t, s2.Start(ctx)).Required()
	defer s2.Stop()

	gt.Value(t, s2.PendingCount()).Equal(1)
}

func TestRestartSkipsDeliveredTasks(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := newNotifyRecorder()

	s1 := scheduler.New(repo.Timer(), rec.notify)
	_, err := s1.Schedule(ctx, testKey(), 0, "already done")
	gt.NoError(t, err).Required()
	s1.FireDue(ctx)
	gt.Value(t, rec.count()).Equal(1)

	s2 := scheduler.New(repo.Timer(), rec.notify)
	gt.NoError(t, s2.Start(ctx)).Required()
	defer s2.Stop()

	gt.Value(t, s2.PendingCount()).Equal(0)
	gt.Value(t, rec.count()).Equal(1)
}

func TestCancelPendingTask(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := newNotifyRecorder()
	s := scheduler.New(repo.Timer(), rec.notify)

	task, err := s.Schedule(ctx, testKey(), 0, "never mind")
	gt.NoError(t, err).Required()

	gt.NoError(t, s.Cancel(ctx, task.ID)).Required()

	s.FireDue(ctx)
	gt.Value(t, rec.count()).Equal(0)
	gt.Value(t, s.PendingCount()).Equal(0)

	_, err = repo.Timer().Get(ctx, task.ID)
	gt.Error(t, err)
}

func TestCancelDeliveredTaskFails(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := newNotifyRecorder()
	s := scheduler.New(repo.Timer(), rec.notify)

	task, err := s.Schedule(ctx, testKey(), 0, "too late")
	gt.NoError(t, err).Required()
	s.FireDue(ctx)

	err = s.Cancel(ctx, task.ID)
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, model.ErrTaskAlreadyDelivered)).True()
}

func TestNotifyFailureDoesNotRetry(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := newNotifyRecorder()
	rec.err = errors.New("chat unavailable")
	s := scheduler.New(repo.Timer(), rec.notify)

	task, err := s.Schedule(ctx, testKey(), 0, "lost")
	gt.NoError(t, err).Required()

	s.FireDue(ctx)
	s.FireDue(ctx)

	// Delivery was attempted once; the delivered flag stays set so the task
	// never fires again.
	gt.Value(t, rec.count()).Equal(1)
	stored, err := repo.Timer().Get(ctx, task.ID)
	gt.NoError(t, err).Required()
	gt.Bool(t, stored.Delivered).True()
}

func TestBackgroundLoopDeliversScheduledTask(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := newNotifyRecorder()
	s := scheduler.New(repo.Timer(), rec.notify)

	gt.NoError(t, s.Start(ctx)).Required()
	defer s.Stop()

	_, err := s.Schedule(ctx, testKey(), 20*time.Millisecond, "from the loop")
	gt.NoError(t, err).Required()

	select {
	case d := <-rec.signal:
		gt.Value(t, d.payload).Equal("from the loop")
		gt.Value(t, d.key).Equal(testKey())
	case <-time.After(2 * time.Second):
		t.Fatal("timer task was not delivered by the background loop")
	}
}
