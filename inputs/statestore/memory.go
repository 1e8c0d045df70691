package statestore

import (
	"sync"

	"github.com/minyk/dcos-metrics/inputs"
)

// Memory is an inputs.StateCache that never touches disk. Assignments are
// lost when the agent exits, which suits agents running without a state
// directory and keeps tests off the filesystem.
type Memory struct {
	mu         sync.RWMutex
	containers map[inputs.ContainerID]inputs.UDPEndpoint
}

var _ inputs.StateCache = (*Memory)(nil)

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{containers: make(map[inputs.ContainerID]inputs.UDPEndpoint)}
}

// GetContainers returns a copy of the current assignments.
func (m *Memory) GetContainers() map[inputs.ContainerID]inputs.UDPEndpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	containers := make(map[inputs.ContainerID]inputs.UDPEndpoint, len(m.containers))
	for id, endpoint := range m.containers {
		containers[id] = endpoint
	}

	return containers
}

// AddContainer records one assignment.
func (m *Memory) AddContainer(id inputs.ContainerID, endpoint inputs.UDPEndpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.containers[id] = endpoint
	return nil
}

// RemoveContainer forgets one assignment. Unknown containers are a no-op.
func (m *Memory) RemoveContainer(id inputs.ContainerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.containers, id)
	return nil
}

// Path identifies the cache in log messages.
func (m *Memory) Path() string {
	return "(in-memory)"
}

// Close exists so both cache implementations share a lifecycle surface.
func (m *Memory) Close() error {
	return nil
}
