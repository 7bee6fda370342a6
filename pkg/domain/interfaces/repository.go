package interfaces

// Repository defines the interface for data persistence
type Repository interface {
	Memory() MemoryRepository
	Timer() TimerRepository
	Turn() TurnRepository

	// Close releases backend resources. The serve lifecycle calls this on
	// shutdown; the in-memory backend treats it as a no-op.
	Close() error
}
