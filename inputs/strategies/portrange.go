package strategies

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/minyk/dcos-metrics/inputs"
	"github.com/minyk/dcos-metrics/internal/idm"
	"github.com/minyk/dcos-metrics/log"
	"github.com/minyk/dcos-metrics/reader"
)

// PortRange gives every container its own reader on a port drawn from a
// fixed pool. Ports come back to the pool when their container
// unregisters, so a drained cluster frees the whole range again.
type PortRange struct {
	cfg     Config
	factory reader.Factory
	pool    *idm.IDM
	readers map[inputs.ContainerID]reader.Reader
}

var _ Strategy = (*PortRange)(nil)

// NewPortRange returns a strategy allocating from
// [cfg.PortRangeBegin, cfg.PortRangeEnd].
func NewPortRange(cfg Config, factory reader.Factory) (*PortRange, error) {
	pool, err := idm.New(int(cfg.PortRangeBegin), int(cfg.PortRangeEnd))
	if err != nil {
		return nil, errors.Wrap(err, "building port pool")
	}

	return &PortRange{
		cfg:     cfg,
		factory: factory,
		pool:    pool,
		readers: make(map[inputs.ContainerID]reader.Reader),
	}, nil
}

// RegisterContainer binds the lowest free port in the range for the
// container. Registering a container that already holds a port keeps it.
func (s *PortRange) RegisterContainer(id inputs.ContainerID, info inputs.ExecutorInfo) (inputs.UDPEndpoint, error) {
	if r, ok := s.readers[id]; ok {
		r.RegisterContainer(id, info)
		return r.Endpoint(), nil
	}

	port, err := s.pool.GetID(false)
	if err != nil {
		return inputs.UDPEndpoint{}, errors.Wrapf(err, "allocating port in [%d, %d]", s.cfg.PortRangeBegin, s.cfg.PortRangeEnd)
	}

	r, err := s.factory(s.cfg.Host, uint32(port))
	if err != nil {
		s.pool.Release(port)
		return inputs.UDPEndpoint{}, errors.Wrapf(err, "binding allocated port %d", port)
	}

	r.RegisterContainer(id, info)
	s.readers[id] = r
	return r.Endpoint(), nil
}

// InsertContainer claims the exact port a recovered container was already
// told about and rebinds it. Claims outside the configured range or on a
// port something else now holds are logged and dropped.
func (s *PortRange) InsertContainer(id inputs.ContainerID, info inputs.ExecutorInfo, endpoint inputs.UDPEndpoint) {
	port := int(endpoint.Port)
	if err := s.pool.GetSpecificID(port); err != nil {
		log.L.WithError(err).WithFields(logrus.Fields{
			"container.id": id,
			"endpoint":     endpoint.String(),
		}).Error("cannot reclaim recovered port")
		return
	}

	r, err := s.factory(s.cfg.Host, endpoint.Port)
	if err != nil {
		s.pool.Release(port)
		log.L.WithError(err).WithFields(logrus.Fields{
			"container.id": id,
			"endpoint":     endpoint.String(),
		}).Error("failed to rebind recovered endpoint")
		return
	}

	r.RegisterContainer(id, info)
	s.readers[id] = r
}

// UnregisterContainer closes the container's socket and returns its port
// to the pool.
func (s *PortRange) UnregisterContainer(id inputs.ContainerID) {
	r, ok := s.readers[id]
	if !ok {
		return
	}

	delete(s.readers, id)
	port := int(r.Endpoint().Port)
	if err := r.Close(); err != nil {
		log.L.WithError(err).WithField("container.id", id).Error("failed to close container reader")
	}
	s.pool.Release(port)
}

// Close shuts every remaining socket down without touching the pool.
func (s *PortRange) Close() error {
	for id, r := range s.readers {
		if err := r.Close(); err != nil {
			log.L.WithError(err).WithField("container.id", id).Error("failed to close container reader")
		}
	}

	s.readers = make(map[inputs.ContainerID]reader.Reader)
	return nil
}
