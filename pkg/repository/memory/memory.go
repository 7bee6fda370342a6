package memory

import (
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
	memory *memoryRepository
	timer  *timerRepository
	turn   *turnRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		memory: newMemoryRepository(),
		timer:  newTimerRepository(),
		turn:   newTurnRepository(),
	}
}

func (m *Memory) Memory() interfaces.MemoryRepository {
	return m.memory
}

func (m *Memory) Timer() interfaces.TimerRepository {
	return m.timer
}

func (m *Memory) Turn() interfaces.TurnRepository {
	return m.turn
}

func (m *Memory) Close() error {
	return nil
}
