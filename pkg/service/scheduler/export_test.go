package scheduler

import "context"

// FireDue delivers all currently due tasks synchronously so tests can assert
// delivery without waiting on the background loop.
func (s *Service) FireDue(ctx context.Context) {
	s.fireDue(ctx)
}

// PendingCount reports how many tasks sit in the heap, cancelled ones
// included until the loop skips them.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
