package types

import "fmt"

// TurnStatus represents the processing status of a conversation turn
type TurnStatus string

const (
	TurnStatusPending   TurnStatus = "PENDING"
	TurnStatusCompleted TurnStatus = "COMPLETED"
	TurnStatusFailed    TurnStatus = "FAILED"
)

// AllTurnStatuses returns all valid turn statuses
func AllTurnStatuses() []TurnStatus {
	return []TurnStatus{
		TurnStatusPending,
		TurnStatusCompleted,
		TurnStatusFailed,
	}
}

// IsValid checks if the turn status is valid
func (s TurnStatus) IsValid() bool {
	switch s {
	case TurnStatusPending,
		TurnStatusCompleted,
		TurnStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the turn status
func (s TurnStatus) String() string {
	return string(s)
}

// ParseTurnStatus parses a string into a TurnStatus
func ParseTurnStatus(s string) (TurnStatus, error) {
	status := TurnStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid turn status: %s", s)
	}
	return status, nil
}
