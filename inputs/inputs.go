// Package inputs assigns per-container UDP endpoints for metrics input and
// remembers the assignments across agent restarts.
package inputs

// ContainerID uniquely identifies a container on this agent.
type ContainerID string

// ExecutorInfo carries the executor identity launched with a container. The
// assigner treats it as an opaque payload for the strategy.
type ExecutorInfo struct {
	FrameworkID string `json:"framework_id"`
	ExecutorID  string `json:"executor_id"`
}

// ContainerState pairs a container with its executor identity. Recovery
// receives one per container still running on the agent.
type ContainerState struct {
	ContainerID  ContainerID  `json:"container_id"`
	ExecutorInfo ExecutorInfo `json:"executor_info"`
}

// Strategy decides which endpoint each container sends its metrics to.
// Implementations need not be goroutine safe; the assigner serializes every
// call through its dispatcher.
type Strategy interface {
	// RegisterContainer chooses an endpoint for a container the agent has
	// not seen before.
	RegisterContainer(id ContainerID, info ExecutorInfo) (UDPEndpoint, error)

	// InsertContainer adopts a container whose endpoint was decided in a
	// previous agent run. Implementations absorb and log their own
	// failures.
	InsertContainer(id ContainerID, info ExecutorInfo, endpoint UDPEndpoint)

	// UnregisterContainer releases whatever the strategy holds for the
	// container. Unknown containers are a no-op.
	UnregisterContainer(id ContainerID)
}

// StateCache persists container endpoint assignments across agent restarts.
type StateCache interface {
	// GetContainers returns a snapshot of every persisted assignment.
	// Implementations log read failures and return what they can.
	GetContainers() map[ContainerID]UDPEndpoint

	// AddContainer persists one assignment, replacing any previous record
	// for the container.
	AddContainer(id ContainerID, endpoint UDPEndpoint) error

	// RemoveContainer deletes an assignment. Removing a container the
	// cache has no record of is not an error.
	RemoveContainer(id ContainerID) error

	// Path describes where the cache lives, for log messages.
	Path() string
}

// Dispatcher runs functions one at a time. Dispatch may return before fn
// executes; the only guarantee is that no two dispatched functions run
// concurrently, in any order the implementation likes. Callers that need
// completion arrange it themselves.
type Dispatcher interface {
	Dispatch(fn func())
}
