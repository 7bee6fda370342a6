package interfaces

import (
	"context"

	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

// TimerRepository defines the interface for TimerTask persistence. The
// scheduler records tasks here before arming them, reloads undelivered tasks
// on startup, and flips the delivered flag before invoking the delivery
// callback so a restart cannot cause a second delivery.
type TimerRepository interface {
	// Create persists a new timer task
	Create(ctx context.Context, task *model.TimerTask) error

	// Get retrieves a timer task by ID
	Get(ctx context.Context, id model.TaskID) (*model.TimerTask, error)

	// MarkDelivered sets the delivered flag. Returns
	// model.ErrTaskAlreadyDelivered if it was already set.
	MarkDelivered(ctx context.Context, id model.TaskID) error

	// Delete removes a task (cancellation before firing)
	Delete(ctx context.Context, id model.TaskID) error

	// ListPending retrieves all undelivered tasks ordered by fire time
	ListPending(ctx context.Context) ([]*model.TimerTask, error)
}
