package reader

import (
	"net"
	"strings"
	"sync"

	"github.com/docker/go-events"
	"github.com/pkg/errors"

	"github.com/minyk/dcos-metrics/inputs"
	"github.com/minyk/dcos-metrics/log"
)

// maxDatagramSize bounds a single statsd datagram read.
const maxDatagramSize = 65536

// unknownContainerTag marks records that cannot be attributed to exactly
// one container.
const unknownContainerTag = "unknown_container"

// NewUDP returns a Factory whose readers publish tagged records to sink.
func NewUDP(sink events.Sink) Factory {
	return func(host string, port uint32) (Reader, error) {
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, errors.Errorf("invalid listen host %q", host)
		}

		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: int(port)})
		if err != nil {
			return nil, errors.Wrapf(err, "binding udp %s:%d", host, port)
		}

		r := &udpReader{
			conn: conn,
			endpoint: inputs.UDPEndpoint{
				Host: host,
				Port: uint32(conn.LocalAddr().(*net.UDPAddr).Port),
			},
			sink:       sink,
			containers: make(map[inputs.ContainerID]inputs.ExecutorInfo),
			done:       make(chan struct{}),
		}
		go r.read()

		return r, nil
	}
}

type udpReader struct {
	conn     *net.UDPConn
	endpoint inputs.UDPEndpoint
	sink     events.Sink

	mu         sync.Mutex
	containers map[inputs.ContainerID]inputs.ExecutorInfo

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func (r *udpReader) Endpoint() inputs.UDPEndpoint {
	return r.endpoint
}

func (r *udpReader) RegisterContainer(id inputs.ContainerID, info inputs.ExecutorInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.containers[id] = info
}

func (r *udpReader) UnregisterContainer(id inputs.ContainerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.containers, id)
}

func (r *udpReader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.conn.Close()
	})
	<-r.done

	return r.closeErr
}

func (r *udpReader) read() {
	defer close(r.done)

	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.L.WithError(err).WithField("endpoint", r.endpoint.String()).Error("udp read failed")
			}
			return
		}

		packetsReceived.Inc()
		bytesReceived.Inc(float64(n))
		r.publish(string(buf[:n]))
	}
}

// publish splits a datagram into statsd lines, tags each with the socket's
// container identity, and writes them to the sink.
func (r *udpReader) publish(datagram string) {
	id, tags := r.attribution()

	for _, line := range strings.Split(datagram, "\n") {
		if line == "" {
			continue
		}

		record := Record{ContainerID: id, Line: AddTags(line, tags)}
		if err := r.sink.Write(record); err != nil {
			log.L.WithError(err).WithField("endpoint", r.endpoint.String()).Debug("record dropped, sink closed")
			return
		}

		recordsEmitted.Inc()
		if id == "" {
			unattributedRecords.Inc()
		}
	}
}

// attribution resolves the tag set for records arriving on this socket.
// Exactly one registered container means full attribution; zero or several
// means records cannot be traced back to a container.
func (r *udpReader) attribution() (inputs.ContainerID, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.containers) == 1 {
		for id, info := range r.containers {
			return id, []string{
				"container_id:" + string(id),
				"executor_id:" + info.ExecutorID,
				"framework_id:" + info.FrameworkID,
			}
		}
	}

	return "", []string{unknownContainerTag}
}
