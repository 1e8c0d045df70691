package inputs

import (
	"net"
	"strconv"
)

// UDPEndpoint locates the UDP socket a container sends its metrics to.
type UDPEndpoint struct {
	Host string `json:"host"`
	Port uint32 `json:"port"`
}

// String renders the endpoint as a dialable host:port address.
func (e UDPEndpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.FormatUint(uint64(e.Port), 10))
}
