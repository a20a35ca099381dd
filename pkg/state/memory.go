package state

import (
	"fmt"
	"sync"

	gametypes "github.com/cbodonnell/memoria/pkg/game/types"
)

type InMemoryStateManager struct {
	lock     sync.RWMutex
	snapshot *gametypes.Snapshot
}

func NewInMemoryStateManager() *InMemoryStateManager {
	return &InMemoryStateManager{}
}

func (m *InMemoryStateManager) Get() (*gametypes.Snapshot, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.snapshot == nil {
		return nil, fmt.Errorf("no snapshot has been set")
	}
	return m.snapshot, nil
}

func (m *InMemoryStateManager) Set(snapshot *gametypes.Snapshot) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if snapshot == nil {
		return fmt.Errorf("snapshot is nil")
	}

	m.snapshot = snapshot
	return nil
}
