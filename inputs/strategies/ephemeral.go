package strategies

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/minyk/dcos-metrics/inputs"
	"github.com/minyk/dcos-metrics/log"
	"github.com/minyk/dcos-metrics/reader"
)

// Ephemeral gives every container its own reader on a kernel-assigned
// port.
type Ephemeral struct {
	cfg     Config
	factory reader.Factory
	readers map[inputs.ContainerID]reader.Reader
}

var _ Strategy = (*Ephemeral)(nil)

// NewEphemeral returns a strategy that lets the kernel pick every port.
func NewEphemeral(cfg Config, factory reader.Factory) *Ephemeral {
	return &Ephemeral{
		cfg:     cfg,
		factory: factory,
		readers: make(map[inputs.ContainerID]reader.Reader),
	}
}

// RegisterContainer opens a fresh socket for the container. Registering a
// container that already has one keeps the existing socket.
func (s *Ephemeral) RegisterContainer(id inputs.ContainerID, info inputs.ExecutorInfo) (inputs.UDPEndpoint, error) {
	if r, ok := s.readers[id]; ok {
		r.RegisterContainer(id, info)
		return r.Endpoint(), nil
	}

	r, err := s.factory(s.cfg.Host, 0)
	if err != nil {
		return inputs.UDPEndpoint{}, errors.Wrap(err, "opening container reader")
	}

	r.RegisterContainer(id, info)
	s.readers[id] = r
	return r.Endpoint(), nil
}

// InsertContainer rebinds the port a recovered container was already told
// about. The kernel may have handed the port to someone else while the
// agent was down; the container then keeps a dead address until it is
// unregistered.
func (s *Ephemeral) InsertContainer(id inputs.ContainerID, info inputs.ExecutorInfo, endpoint inputs.UDPEndpoint) {
	r, err := s.factory(s.cfg.Host, endpoint.Port)
	if err != nil {
		log.L.WithError(err).WithFields(logrus.Fields{
			"container.id": id,
			"endpoint":     endpoint.String(),
		}).Error("failed to rebind recovered endpoint")
		return
	}

	r.RegisterContainer(id, info)
	s.readers[id] = r
}

// UnregisterContainer closes the container's socket.
func (s *Ephemeral) UnregisterContainer(id inputs.ContainerID) {
	r, ok := s.readers[id]
	if !ok {
		return
	}

	delete(s.readers, id)
	if err := r.Close(); err != nil {
		log.L.WithError(err).WithField("container.id", id).Error("failed to close container reader")
	}
}

// Close shuts every remaining socket down.
func (s *Ephemeral) Close() error {
	for id, r := range s.readers {
		if err := r.Close(); err != nil {
			log.L.WithError(err).WithField("container.id", id).Error("failed to close container reader")
		}
	}

	s.readers = make(map[inputs.ContainerID]reader.Reader)
	return nil
}
