package strategies

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/minyk/dcos-metrics/inputs"
	"github.com/minyk/dcos-metrics/log"
	"github.com/minyk/dcos-metrics/reader"
)

// Single points every container at one shared endpoint. The reader opens
// lazily on first registration; records on the shared socket carry no
// per-container attribution once more than one container uses it.
type Single struct {
	cfg     Config
	factory reader.Factory
	reader  reader.Reader
}

var _ Strategy = (*Single)(nil)

// NewSingle returns a strategy sharing cfg.Port between all containers.
func NewSingle(cfg Config, factory reader.Factory) *Single {
	return &Single{cfg: cfg, factory: factory}
}

// RegisterContainer hands out the shared endpoint.
func (s *Single) RegisterContainer(id inputs.ContainerID, info inputs.ExecutorInfo) (inputs.UDPEndpoint, error) {
	if err := s.ensureReader(); err != nil {
		return inputs.UDPEndpoint{}, err
	}

	s.reader.RegisterContainer(id, info)
	return s.reader.Endpoint(), nil
}

// InsertContainer adopts a recovered container onto the shared endpoint. A
// cached endpoint that no longer matches the configured port is noted and
// overridden.
func (s *Single) InsertContainer(id inputs.ContainerID, info inputs.ExecutorInfo, endpoint inputs.UDPEndpoint) {
	if endpoint.Port != s.cfg.Port {
		log.L.WithFields(logrus.Fields{
			"container.id":    id,
			"cached.endpoint": endpoint.String(),
			"configured.port": s.cfg.Port,
		}).Warn("cached endpoint does not match the configured single port, re-registering")
	}

	if _, err := s.RegisterContainer(id, info); err != nil {
		log.L.WithError(err).WithField("container.id", id).Error("failed to adopt recovered container")
	}
}

// UnregisterContainer drops the container from the shared reader. The
// reader itself stays open for the others.
func (s *Single) UnregisterContainer(id inputs.ContainerID) {
	if s.reader == nil {
		return
	}

	s.reader.UnregisterContainer(id)
}

// Close shuts the shared reader down.
func (s *Single) Close() error {
	if s.reader == nil {
		return nil
	}

	return s.reader.Close()
}

func (s *Single) ensureReader() error {
	if s.reader != nil {
		return nil
	}

	r, err := s.factory(s.cfg.Host, s.cfg.Port)
	if err != nil {
		return errors.Wrapf(err, "opening shared reader on port %d", s.cfg.Port)
	}

	s.reader = r
	return nil
}
