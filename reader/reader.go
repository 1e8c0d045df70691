// Package reader receives statsd lines from containers over per-endpoint
// UDP sockets, tags them with the originating container identity, and
// publishes them downstream as events.
package reader

import (
	"github.com/minyk/dcos-metrics/inputs"
)

// Record is one statsd line received from a container, tagged and ready to
// forward.
type Record struct {
	ContainerID inputs.ContainerID
	Line        string
}

// A Reader owns one UDP socket that containers send statsd lines to.
type Reader interface {
	// Endpoint reports the socket's bound address.
	Endpoint() inputs.UDPEndpoint

	// RegisterContainer attributes records arriving on this socket to the
	// container. Sockets shared by several containers cannot attribute;
	// their records are tagged unknown.
	RegisterContainer(id inputs.ContainerID, info inputs.ExecutorInfo)

	// UnregisterContainer stops attributing records to the container.
	UnregisterContainer(id inputs.ContainerID)

	// Close shuts the socket down and stops the read loop.
	Close() error
}

// Factory opens a Reader bound to host:port. Port 0 asks the kernel for an
// ephemeral port; the reader's Endpoint reports the port actually bound.
type Factory func(host string, port uint32) (Reader, error)
