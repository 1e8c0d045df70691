package inputs

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/minyk/dcos-metrics/log"
)

// Assigner hands out metrics input endpoints to containers and remembers
// the assignments across agent restarts. Endpoint decisions are delegated
// to a Strategy and persisted in a StateCache; every operation is funneled
// through a single Dispatcher so strategy and cache implementations never
// see concurrent calls.
//
// An Assigner starts unbound. Init must be called exactly once before any
// container operation; violating that contract is a programming error and
// panics.
type Assigner struct {
	mu         sync.Mutex
	strategy   Strategy
	cache      StateCache
	dispatcher Dispatcher
}

// NewAssigner returns an unbound Assigner. Call Init before use.
func NewAssigner() *Assigner {
	return &Assigner{}
}

// Init binds the assigner to its collaborators. A second call panics.
func (a *Assigner) Init(strategy Strategy, cache StateCache, dispatcher Dispatcher) {
	if strategy == nil || cache == nil || dispatcher == nil {
		panic("inputs: (*Assigner).Init requires a strategy, a cache, and a dispatcher")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dispatcher != nil {
		panic("inputs: (*Assigner).Init called twice")
	}

	a.strategy = strategy
	a.cache = cache
	a.dispatcher = dispatcher
}

// ensureInit panics unless Init has completed. The lock acquisition also
// publishes the collaborator fields to the calling goroutine.
func (a *Assigner) ensureInit(op string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dispatcher == nil {
		panic("inputs: (*Assigner).Init must be called before " + op)
	}
}

// RegisterContainer assigns an endpoint for the container to send its
// metrics to. The strategy decides the endpoint; on success the assignment
// is persisted so it survives agent restarts. A cache write failure is
// logged but does not undo the registration.
func (a *Assigner) RegisterContainer(ctx context.Context, id ContainerID, info ExecutorInfo) (UDPEndpoint, error) {
	a.ensureInit("RegisterContainer")

	var (
		endpoint UDPEndpoint
		err      error
		done     = make(chan struct{})
	)
	a.dispatcher.Dispatch(func() {
		defer close(done)
		endpoint, err = a.registerContainer(ctx, id, info)
	})
	<-done

	return endpoint, err
}

// UnregisterContainer releases the container's endpoint assignment. The
// strategy is always notified, even for containers the assigner has no
// record of, so implementations can reconcile readers they opened on their
// own.
func (a *Assigner) UnregisterContainer(ctx context.Context, id ContainerID) {
	a.ensureInit("UnregisterContainer")

	done := make(chan struct{})
	a.dispatcher.Dispatch(func() {
		defer close(done)
		a.unregisterContainer(ctx, id)
	})
	<-done
}

// RecoverContainers reconciles the live containers reported by the agent
// against the assignments persisted by a previous run. Containers present
// in both are re-adopted at their recorded endpoints, live containers the
// cache has never seen are registered fresh, and stale cache entries are
// released and deleted. The whole batch runs as one dispatched unit.
func (a *Assigner) RecoverContainers(ctx context.Context, states []ContainerState) {
	a.ensureInit("RecoverContainers")

	done := make(chan struct{})
	a.dispatcher.Dispatch(func() {
		defer close(done)
		a.recoverContainers(ctx, states)
	})
	<-done
}

func (a *Assigner) registerContainer(ctx context.Context, id ContainerID, info ExecutorInfo) (UDPEndpoint, error) {
	endpoint, err := a.strategy.RegisterContainer(id, info)
	if err != nil {
		return UDPEndpoint{}, errors.Wrapf(err, "assigning endpoint to container %s", id)
	}

	if err := a.cache.AddContainer(id, endpoint); err != nil {
		log.G(ctx).WithError(err).WithFields(logrus.Fields{
			"container.id": id,
			"cache.path":   a.cache.Path(),
		}).Error("failed to persist container endpoint")
	}

	log.G(ctx).WithFields(logrus.Fields{
		"container.id": id,
		"endpoint":     endpoint.String(),
	}).Debug("assigned container endpoint")

	return endpoint, nil
}

func (a *Assigner) unregisterContainer(ctx context.Context, id ContainerID) {
	a.strategy.UnregisterContainer(id)

	if err := a.cache.RemoveContainer(id); err != nil {
		log.G(ctx).WithError(err).WithFields(logrus.Fields{
			"container.id": id,
			"cache.path":   a.cache.Path(),
		}).Error("failed to remove container endpoint from cache")
	}
}

func (a *Assigner) recoverContainers(ctx context.Context, states []ContainerState) {
	recovered := a.cache.GetContainers()

	log.G(ctx).WithFields(logrus.Fields{
		"live.containers":   len(states),
		"cached.containers": len(recovered),
		"cache.path":        a.cache.Path(),
	}).Info("reconciling container endpoint assignments")

	seen := make(map[ContainerID]struct{}, len(states))
	for _, state := range states {
		if _, ok := seen[state.ContainerID]; ok {
			log.G(ctx).WithField("container.id", state.ContainerID).
				Warn("duplicate container in recovery batch, skipping")
			continue
		}
		seen[state.ContainerID] = struct{}{}

		if endpoint, ok := recovered[state.ContainerID]; ok {
			a.strategy.InsertContainer(state.ContainerID, state.ExecutorInfo, endpoint)
			delete(recovered, state.ContainerID)
			continue
		}

		if _, err := a.registerContainer(ctx, state.ContainerID, state.ExecutorInfo); err != nil {
			log.G(ctx).WithError(err).WithField("container.id", state.ContainerID).
				Error("failed to register recovered container")
		}
	}

	// Whatever is left in the snapshot belongs to containers that are gone.
	for id := range recovered {
		log.G(ctx).WithField("container.id", id).Debug("dropping stale container assignment")
		a.unregisterContainer(ctx, id)
	}
}
