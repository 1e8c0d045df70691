package agent

import (
	"time"

	"github.com/pkg/errors"

	"github.com/minyk/dcos-metrics/inputs/strategies"
)

// Config provides values for an Agent.
type Config struct {
	// ListenHost is the address container input endpoints are bound on.
	// It must be reachable from the containers on this node, which in
	// practice means the agent host's private IP.
	ListenHost string

	// PortMode selects the assignment strategy. One of "single",
	// "ephemeral" or "range".
	PortMode string

	// SinglePort is the shared endpoint port used in single mode.
	SinglePort uint32

	// PortRangeBegin and PortRangeEnd bound the pool used in range mode.
	// The range is inclusive on both ends.
	PortRangeBegin uint32
	PortRangeEnd   uint32

	// StateDir is where the assignment cache database lives. When empty
	// the agent runs on an in-memory cache and forgets assignments on
	// exit.
	StateDir string

	// APIAddr is the HTTP listen address for the control API.
	APIAddr string

	// StatsdAddr is the upstream statsd collector records are forwarded
	// to. When empty, received records are counted and dropped.
	StatsdAddr string

	// FlushInterval overrides the forwarder's flush cadence. Zero uses
	// the forwarder default.
	FlushInterval time.Duration

	// MesosAgent is the HTTP address of the local mesos agent, queried
	// once at startup to recover containers that are still running. When
	// empty the agent still reconciles the cache, treating every cached
	// assignment as stale.
	MesosAgent string
}

func (c *Config) validate() error {
	if c.ListenHost == "" {
		return errors.New("config: ListenHost required")
	}
	if c.APIAddr == "" {
		return errors.New("config: APIAddr required")
	}

	switch c.PortMode {
	case strategies.ModeSingle:
		if c.SinglePort == 0 {
			return errors.New("config: SinglePort required in single port mode")
		}
	case strategies.ModeEphemeral:
	case strategies.ModeRange:
		if c.PortRangeEnd <= c.PortRangeBegin {
			return errors.Errorf("config: invalid port range [%d, %d]", c.PortRangeBegin, c.PortRangeEnd)
		}
	default:
		return errors.Errorf("config: unknown port mode %q", c.PortMode)
	}

	return nil
}
