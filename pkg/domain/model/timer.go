package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskID is a UUID-based identifier for a TimerTask
type TaskID string

// NewTaskID generates a new UUID v4 TaskID
func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

// String returns the string representation of TaskID
func (t TaskID) String() string {
	return string(t)
}

// TimerTask is a deferred one-shot notification. It lives independently of
// any turn, survives restarts via the repository, and fires at most once:
// Delivered is flipped before the delivery callback runs.
type TimerTask struct {
	ID              TaskID
	ConversationKey ConversationKey
	FireAt          time.Time
	Payload         string
	Delivered       bool
	CreatedAt       time.Time
}

// NewTimerTask creates a task firing after the given delay
func NewTimerTask(key ConversationKey, delay time.Duration, payload string) *TimerTask {
	now := time.Now()
	return &TimerTask{
		ID:              NewTaskID(),
		ConversationKey: key,
		FireAt:          now.Add(delay),
		Payload:         payload,
		CreatedAt:       now,
	}
}
