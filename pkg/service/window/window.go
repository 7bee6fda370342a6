package window

import (
	"context"
	"sync"
	"time"

	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

// EvictHandler receives entries that aged out of a conversation's window.
// The store never discards entries on its own; ownership transfers here.
type EvictHandler func(ctx context.Context, key model.ConversationKey, evicted []model.WindowEntry)

// Store is the short-term conversational context: one bounded ordered log per
// conversation. Entries are bounded by a rolling time horizon, not a count
// cap. Eviction runs on every append and read, handing aged-out entries to
// the eviction handler.
type Store struct {
	mu      sync.Mutex
	horizon time.Duration
	windows map[model.ConversationKey][]model.WindowEntry
	onEvict EvictHandler
}

type Option func(*Store)

// WithHorizon overrides the rolling time horizon
func WithHorizon(horizon time.Duration) Option {
	return func(s *Store) {
		s.horizon = horizon
	}
}

// WithEvictHandler sets the handler receiving evicted entries
func WithEvictHandler(h EvictHandler) Option {
	return func(s *Store) {
		s.onEvict = h
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		horizon: model.DefaultWindowHorizon,
		windows: make(map[model.ConversationKey][]model.WindowEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds an entry to the conversation's window, evicting aged-out
// entries first. Entries are kept in insertion order.
func (s *Store) Append(ctx context.Context, key model.ConversationKey, entry model.WindowEntry) {
	s.mu.Lock()
	evicted := s.evictLocked(key, time.Now().Add(-s.horizon))
	s.windows[key] = append(s.windows[key], entry)
	s.mu.Unlock()

	s.handOff(ctx, key, evicted)
}

// Read returns the conversation's window in chronological order. The
// returned slice is a copy; mutating it does not affect the store.
func (s *Store) Read(ctx context.Context, key model.ConversationKey) []model.WindowEntry {
	s.mu.Lock()
	evicted := s.evictLocked(key, time.Now().Add(-s.horizon))
	entries := s.windows[key]
	result := make([]model.WindowEntry, len(entries))
	copy(result, entries)
	s.mu.Unlock()

	s.handOff(ctx, key, evicted)
	return result
}

// EvictOlderThan evicts entries older than the given horizon regardless of
// the configured one, hands them to the handler, and returns them.
func (s *Store) EvictOlderThan(ctx context.Context, key model.ConversationKey, horizon time.Duration) []model.WindowEntry {
	s.mu.Lock()
	evicted := s.evictLocked(key, time.Now().Add(-horizon))
	s.mu.Unlock()

	s.handOff(ctx, key, evicted)
	return evicted
}

// Clear drops a conversation's window without promotion. Used by the
// explicit memory clear operation.
func (s *Store) Clear(key model.ConversationKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
}

// evictLocked splits off entries created before the cutoff. Entries are in
// insertion order, so the split point is the first entry at or after cutoff.
func (s *Store) evictLocked(key model.ConversationKey, cutoff time.Time) []model.WindowEntry {
	entries := s.windows[key]
	if len(entries) == 0 {
		return nil
	}

	split := 0
	for split < len(entries) && entries[split].CreatedAt.Before(cutoff) {
		split++
	}
	if split == 0 {
		return nil
	}

	evicted := make([]model.WindowEntry, split)
	copy(evicted, entries[:split])

	remaining := make([]model.WindowEntry, len(entries)-split)
	copy(remaining, entries[split:])
	if len(remaining) == 0 {
		delete(s.windows, key)
	} else {
		s.windows[key] = remaining
	}

	return evicted
}

// handOff runs the eviction handler outside the store lock
func (s *Store) handOff(ctx context.Context, key model.ConversationKey, evicted []model.WindowEntry) {
	if len(evicted) == 0 {
		return
	}
	if s.onEvict == nil {
		logging.From(ctx).Warn("window entries evicted without handler",
			"conversation", key.String(), "count", len(evicted))
		return
	}
	s.onEvict(ctx, key, evicted)
}
