package memory

import (
	"github.com/musubi-dev/musubi/pkg/domain/interfaces"
)

// Backend errors, shared with every other repository implementation
var (
	ErrNotFound      = interfaces.ErrNotFound
	ErrAlreadyExists = interfaces.ErrAlreadyExists
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory keeps all state in process memory. Nothing survives a restart.
type Memory struct {
	action *actionRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		action: newActionRepository(),
	}
}

func (m *Memory) Action() interfaces.ActionRepository {
	return m.action
}

func (m *Memory) Close() error {
	return nil
}
