package agent

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/docker/go-events"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/minyk/dcos-metrics/inputs"
	"github.com/minyk/dcos-metrics/inputs/statestore"
	"github.com/minyk/dcos-metrics/inputs/strategies"
	"github.com/minyk/dcos-metrics/log"
	"github.com/minyk/dcos-metrics/mesos"
	"github.com/minyk/dcos-metrics/output"
	"github.com/minyk/dcos-metrics/reader"
	"github.com/minyk/dcos-metrics/runner"
	"github.com/minyk/dcos-metrics/watch"
)

// shutdownTimeout bounds how long in-flight API requests may run once
// the agent starts tearing down.
const shutdownTimeout = 5 * time.Second

// Agent assigns metrics input endpoints to the containers on a mesos
// agent and forwards whatever arrives on them. It owns the assignment
// strategy, the state cache, the dispatcher and the control API, and
// tears them down in order when its context is cancelled.
type Agent struct {
	config Config

	assigner *inputs.Assigner
	cache    inputs.StateCache
	queue    *watch.Queue
	logger   *logrus.Entry

	started chan struct{}
}

// New returns an agent ready for Run.
func New(config Config) (*Agent, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Agent{
		config:   config,
		assigner: inputs.NewAssigner(),
		queue:    watch.NewQueue(),
		logger: log.L.WithFields(logrus.Fields{
			"listen.host": config.ListenHost,
			"port.mode":   config.PortMode,
		}),
		started: make(chan struct{}),
	}, nil
}

// Run builds the input pipeline, recovers container assignments and
// serves the control API until ctx is cancelled. It may be called once.
func (a *Agent) Run(ctx context.Context) error {
	select {
	case <-a.started:
		return errAgentStarted
	default:
		close(a.started)
	}

	ctx = log.WithModule(log.WithLogger(ctx, a.logger), "agent")
	log.G(ctx).Debugf("(*Agent).Run")

	cache, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	a.cache = &watchingCache{StateCache: cache, queue: a.queue}
	defer a.queue.Close()

	sink, closeSink, err := a.openSink(ctx)
	if err != nil {
		return err
	}
	defer closeSink()

	strategy, err := strategies.New(a.config.PortMode, strategies.Config{
		Host:           a.config.ListenHost,
		Port:           a.config.SinglePort,
		PortRangeBegin: a.config.PortRangeBegin,
		PortRangeEnd:   a.config.PortRangeEnd,
	}, reader.NewUDP(sink))
	if err != nil {
		return err
	}
	defer func() {
		if err := strategy.Close(); err != nil {
			log.G(ctx).WithError(err).Error("closing strategy")
		}
	}()

	dispatcher := runner.New()
	defer dispatcher.Close()

	a.assigner.Init(strategy, a.cache, dispatcher)

	go a.watchAssignments(ctx)

	if err := a.recoverContainers(ctx); err != nil {
		return err
	}

	server := a.newAPIServer()
	errs := make(chan error, 1)
	go func() {
		errs <- server.Start(a.config.APIAddr)
	}()
	log.G(ctx).WithField("api.addr", a.config.APIAddr).Info("agent ready")

	var serveErr error
	select {
	case <-ctx.Done():
		log.G(ctx).Info("shutting down")
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.G(ctx).WithError(err).Error("shutting down api server")
	}

	return serveErr
}

// openCache opens the bolt-backed assignment cache under the state
// directory, or falls back to a memory cache when none is configured.
func (a *Agent) openCache(ctx context.Context) (inputs.StateCache, func(), error) {
	if a.config.StateDir == "" {
		log.G(ctx).Warn("no state directory configured, assignments will not survive restarts")
		return statestore.NewMemory(), func() {}, nil
	}

	cache, err := statestore.Open(filepath.Join(a.config.StateDir, "inputs.db"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening assignment cache")
	}

	return cache, func() {
		if err := cache.Close(); err != nil {
			log.G(ctx).WithError(err).Error("closing assignment cache")
		}
	}, nil
}

// openSink builds the record sink readers publish into. With a collector
// configured this is the statsd forwarder, otherwise records are
// counted by the reader and dropped here.
func (a *Agent) openSink(ctx context.Context) (events.Sink, func(), error) {
	if a.config.StatsdAddr == "" {
		log.G(ctx).Warn("no collector configured, received records will be dropped")
		return discardSink{}, func() {}, nil
	}

	forwarder, err := output.NewForwarder(output.Config{
		Address:       a.config.StatsdAddr,
		FlushInterval: a.config.FlushInterval,
	}, clock.NewClock())
	if err != nil {
		return nil, nil, errors.Wrap(err, "starting forwarder")
	}

	return forwarder, func() {
		if err := forwarder.Close(); err != nil {
			log.G(ctx).WithError(err).Error("closing forwarder")
		}
	}, nil
}

// recoverContainers reconciles the cache against the containers the
// mesos agent reports as running. Without a mesos agent configured the
// live set is empty and every cached assignment is released.
func (a *Agent) recoverContainers(ctx context.Context) error {
	var live []inputs.ContainerState
	if a.config.MesosAgent != "" {
		var err error
		live, err = mesos.NewClient(a.config.MesosAgent).Containers(ctx)
		if err != nil {
			return errors.Wrap(err, "listing live containers")
		}
	}

	a.assigner.RecoverContainers(ctx, live)
	return nil
}

// watchAssignments keeps the assigned container gauge in step with the
// cache as register, unregister and recovery operations land.
func (a *Agent) watchAssignments(ctx context.Context) {
	ch, cancel := a.queue.Watch()
	defer cancel()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			assignedContainers.Set(float64(len(a.cache.GetContainers())))
			log.G(ctx).WithFields(logrus.Fields{
				"container.id": event.ContainerID,
				"event":        string(event.Type),
			}).Debug("assignment changed")
		case <-ctx.Done():
			return
		}
	}
}
