// Package strategies provides the endpoint selection policies behind the
// input assigner.
//
// Strategies keep their bookkeeping in plain maps and counters. They rely
// on the assigner funneling every call through its dispatcher and must not
// be called concurrently; Close is the one exception, reserved for daemon
// shutdown after the dispatcher has drained.
package strategies

import (
	"io"

	"github.com/pkg/errors"

	"github.com/minyk/dcos-metrics/inputs"
	"github.com/minyk/dcos-metrics/reader"
)

// Port assignment modes.
const (
	// ModeSingle shares one operator-chosen port between every container.
	ModeSingle = "single"
	// ModeEphemeral gives every container its own kernel-assigned port.
	ModeEphemeral = "ephemeral"
	// ModeRange gives every container its own port from a fixed range.
	ModeRange = "range"
)

// Strategy extends the assigner's contract with the daemon shutdown
// lifecycle.
type Strategy interface {
	inputs.Strategy
	io.Closer
}

// Config carries the listen settings shared by all strategies.
type Config struct {
	// Host is the address readers bind on and containers send to.
	Host string

	// Port pins the shared endpoint for the single mode.
	Port uint32

	// PortRangeBegin and PortRangeEnd bound the range mode's pool,
	// inclusive.
	PortRangeBegin uint32
	PortRangeEnd   uint32
}

// New builds the strategy selected by mode.
func New(mode string, cfg Config, factory reader.Factory) (Strategy, error) {
	switch mode {
	case ModeSingle:
		return NewSingle(cfg, factory), nil
	case ModeEphemeral:
		return NewEphemeral(cfg, factory), nil
	case ModeRange:
		return NewPortRange(cfg, factory)
	}

	return nil, errors.Errorf("unknown port mode %q", mode)
}
