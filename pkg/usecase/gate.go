package usecase

import (
	"sync"

	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

// turnGate serializes turn processing per conversation key: a second message
// for the same key queues behind the in-flight one, different keys run in
// parallel. Entries are reference-counted so idle conversations do not
// accumulate locks.
type turnGate struct {
	mu    sync.Mutex
	gates map[model.ConversationKey]*gateEntry
}

type gateEntry struct {
	mu   sync.Mutex
	refs int
}

func newTurnGate() *turnGate {
	return &turnGate{
		gates: make(map[model.ConversationKey]*gateEntry),
	}
}

// lock acquires the conversation's gate and returns its release function
func (g *turnGate) lock(key model.ConversationKey) func() {
	g.mu.Lock()
	e, ok := g.gates[key]
	if !ok {
		e = &gateEntry{}
		g.gates[key] = e
	}
	e.refs++
	g.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		g.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(g.gates, key)
		}
		g.mu.Unlock()
	}
}
