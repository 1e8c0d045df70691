package agent

import "github.com/pkg/errors"

var (
	// errAgentStarted is returned by Run when the agent has already been
	// started once.
	errAgentStarted = errors.New("agent: already started")
)
