package inputs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minyk/dcos-metrics/runner"
)

func TestOperationsBeforeInitPanic(t *testing.T) {
	ctx := context.Background()

	require.PanicsWithValue(t, "inputs: (*Assigner).Init must be called before RegisterContainer", func() {
		NewAssigner().RegisterContainer(ctx, "ctr-a", ExecutorInfo{})
	})
	require.PanicsWithValue(t, "inputs: (*Assigner).Init must be called before UnregisterContainer", func() {
		NewAssigner().UnregisterContainer(ctx, "ctr-a")
	})
	require.PanicsWithValue(t, "inputs: (*Assigner).Init must be called before RecoverContainers", func() {
		NewAssigner().RecoverContainers(ctx, nil)
	})
}

func TestInitTwicePanics(t *testing.T) {
	a := NewAssigner()
	a.Init(newFakeStrategy(), newFakeCache(), syncDispatcher{})

	require.PanicsWithValue(t, "inputs: (*Assigner).Init called twice", func() {
		a.Init(newFakeStrategy(), newFakeCache(), syncDispatcher{})
	})
}

func TestInitNilCollaboratorPanics(t *testing.T) {
	require.PanicsWithValue(t, "inputs: (*Assigner).Init requires a strategy, a cache, and a dispatcher", func() {
		NewAssigner().Init(nil, newFakeCache(), syncDispatcher{})
	})
}

func TestRegisterContainer(t *testing.T) {
	ctx := context.Background()
	strategy, cache := newFakeStrategy(), newFakeCache()

	a := NewAssigner()
	a.Init(strategy, cache, syncDispatcher{})

	endpoint, err := a.RegisterContainer(ctx, "ctr-a", ExecutorInfo{FrameworkID: "fw", ExecutorID: "exec-a"})
	require.NoError(t, err)
	assert.Equal(t, []ContainerID{"ctr-a"}, strategy.registered)
	assert.Equal(t, map[ContainerID]UDPEndpoint{"ctr-a": endpoint}, cache.containers)
}

func TestRegisterStrategyError(t *testing.T) {
	ctx := context.Background()
	strategy, cache := newFakeStrategy(), newFakeCache()
	strategy.failFor["ctr-a"] = errors.New("port range exhausted")

	a := NewAssigner()
	a.Init(strategy, cache, syncDispatcher{})

	_, err := a.RegisterContainer(ctx, "ctr-a", ExecutorInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ctr-a")
	assert.Equal(t, "port range exhausted", errors.Cause(err).Error())
	assert.Empty(t, cache.containers, "failed registration must not touch the cache")
}

func TestRegisterCacheWriteFailure(t *testing.T) {
	ctx := context.Background()
	strategy, cache := newFakeStrategy(), newFakeCache()
	cache.addErr = errors.New("disk full")

	a := NewAssigner()
	a.Init(strategy, cache, syncDispatcher{})

	endpoint, err := a.RegisterContainer(ctx, "ctr-a", ExecutorInfo{})
	require.NoError(t, err, "cache write failures must not fail the registration")
	assert.NotZero(t, endpoint.Port)
	assert.Empty(t, cache.containers)
}

func TestUnregisterContainer(t *testing.T) {
	ctx := context.Background()
	strategy, cache := newFakeStrategy(), newFakeCache()

	a := NewAssigner()
	a.Init(strategy, cache, syncDispatcher{})

	_, err := a.RegisterContainer(ctx, "ctr-a", ExecutorInfo{})
	require.NoError(t, err)

	a.UnregisterContainer(ctx, "ctr-a")
	assert.Equal(t, []ContainerID{"ctr-a"}, strategy.released)
	assert.Empty(t, cache.containers)
}

func TestUnregisterUnknownContainer(t *testing.T) {
	ctx := context.Background()
	strategy, cache := newFakeStrategy(), newFakeCache()

	a := NewAssigner()
	a.Init(strategy, cache, syncDispatcher{})

	a.UnregisterContainer(ctx, "never-seen")
	assert.Equal(t, []ContainerID{"never-seen"}, strategy.released,
		"the strategy hears about every unregistration, known or not")
}

func TestRecoverContainers(t *testing.T) {
	ctx := context.Background()
	strategy, cache := newFakeStrategy(), newFakeCache()

	// ctr-a survives from the previous run, ctr-c died while the agent was
	// down, and ctr-b started before the agent came back.
	cachedA := UDPEndpoint{Host: "192.168.0.4", Port: 30001}
	cachedC := UDPEndpoint{Host: "192.168.0.4", Port: 30002}
	cache.containers["ctr-a"] = cachedA
	cache.containers["ctr-c"] = cachedC

	a := NewAssigner()
	a.Init(strategy, cache, syncDispatcher{})

	a.RecoverContainers(ctx, []ContainerState{
		{ContainerID: "ctr-a", ExecutorInfo: ExecutorInfo{FrameworkID: "fw", ExecutorID: "exec-a"}},
		{ContainerID: "ctr-b", ExecutorInfo: ExecutorInfo{FrameworkID: "fw", ExecutorID: "exec-b"}},
	})

	assert.Equal(t, map[ContainerID]UDPEndpoint{"ctr-a": cachedA}, strategy.inserted)
	assert.Equal(t, []ContainerID{"ctr-b"}, strategy.registered)
	assert.Equal(t, []ContainerID{"ctr-c"}, strategy.released)

	assert.Contains(t, cache.containers, "ctr-a")
	assert.Contains(t, cache.containers, "ctr-b")
	assert.NotContains(t, cache.containers, "ctr-c")

	assert.Equal(t, 1, cache.getCalls, "recovery reads the cache exactly once")
	assert.Equal(t, 1, cache.pathCalls)
}

func TestRecoverIdempotent(t *testing.T) {
	ctx := context.Background()
	strategy, cache := newFakeStrategy(), newFakeCache()

	a := NewAssigner()
	a.Init(strategy, cache, syncDispatcher{})

	states := []ContainerState{
		{ContainerID: "ctr-a"},
		{ContainerID: "ctr-b"},
	}
	a.RecoverContainers(ctx, states)
	require.Equal(t, []ContainerID{"ctr-a", "ctr-b"}, strategy.registered)

	a.RecoverContainers(ctx, states)
	assert.Equal(t, []ContainerID{"ctr-a", "ctr-b"}, strategy.registered,
		"a second recovery finds everything cached and registers nothing")
	assert.Len(t, strategy.inserted, 2)
	assert.Empty(t, strategy.released)
}

func TestRecoverDuplicateLiveContainers(t *testing.T) {
	ctx := context.Background()
	strategy, cache := newFakeStrategy(), newFakeCache()

	a := NewAssigner()
	a.Init(strategy, cache, syncDispatcher{})

	a.RecoverContainers(ctx, []ContainerState{
		{ContainerID: "ctr-a"},
		{ContainerID: "ctr-a"},
	})

	assert.Equal(t, []ContainerID{"ctr-a"}, strategy.registered,
		"later duplicates in one batch are skipped")
}

func TestRecoverRegisterFailure(t *testing.T) {
	ctx := context.Background()
	strategy, cache := newFakeStrategy(), newFakeCache()
	strategy.failFor["ctr-bad"] = errors.New("no ports left")

	a := NewAssigner()
	a.Init(strategy, cache, syncDispatcher{})

	a.RecoverContainers(ctx, []ContainerState{
		{ContainerID: "ctr-bad"},
		{ContainerID: "ctr-good"},
	})

	assert.Equal(t, []ContainerID{"ctr-good"}, strategy.registered,
		"one failed registration must not abort the rest of the batch")
	assert.NotContains(t, cache.containers, "ctr-bad")
	assert.Contains(t, cache.containers, "ctr-good")
}

func TestOperationsAreDispatchedOnce(t *testing.T) {
	ctx := context.Background()
	dispatcher := &countingDispatcher{}

	a := NewAssigner()
	a.Init(newFakeStrategy(), newFakeCache(), dispatcher)

	_, err := a.RegisterContainer(ctx, "ctr-a", ExecutorInfo{})
	require.NoError(t, err)
	a.UnregisterContainer(ctx, "ctr-a")
	a.RecoverContainers(ctx, []ContainerState{{ContainerID: "ctr-b"}, {ContainerID: "ctr-c"}})

	assert.Equal(t, 3, dispatcher.calls, "a recovery batch is a single dispatched unit")
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	ctx := context.Background()

	r := runner.New()
	defer r.Close()

	strategy, cache := newFakeStrategy(), newFakeCache()

	var inFlight, overlapped int32
	strategy.probe = func() {
		if atomic.AddInt32(&inFlight, 1) != 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		atomic.AddInt32(&inFlight, -1)
	}

	a := NewAssigner()
	a.Init(strategy, cache, r)

	const workers = 250
	var wg sync.WaitGroup
	wg.Add(workers)
	for n := 0; n < workers; n++ {
		go func(n int) {
			defer wg.Done()

			id := ContainerID(fmt.Sprintf("ctr-%d", n))
			_, err := a.RegisterContainer(ctx, id, ExecutorInfo{ExecutorID: string(id)})
			assert.NoError(t, err)
			a.UnregisterContainer(ctx, id)
		}(n)
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlapped), "strategy calls must never overlap")
	assert.Len(t, strategy.registered, workers)
	assert.Len(t, strategy.released, workers)
	assert.Empty(t, cache.containers, "every registration was matched by an unregistration")
}

// syncDispatcher runs every function inline on the calling goroutine.
type syncDispatcher struct{}

func (syncDispatcher) Dispatch(fn func()) { fn() }

type countingDispatcher struct {
	calls int
}

func (d *countingDispatcher) Dispatch(fn func()) {
	d.calls++
	fn()
}

// fakeStrategy records every call. It is only safe under a serializing
// dispatcher, which is exactly the contract being tested.
type fakeStrategy struct {
	nextPort   uint32
	registered []ContainerID
	inserted   map[ContainerID]UDPEndpoint
	released   []ContainerID
	failFor    map[ContainerID]error
	probe      func()
}

func newFakeStrategy() *fakeStrategy {
	return &fakeStrategy{
		nextPort: 31000,
		inserted: make(map[ContainerID]UDPEndpoint),
		failFor:  make(map[ContainerID]error),
	}
}

func (s *fakeStrategy) RegisterContainer(id ContainerID, info ExecutorInfo) (UDPEndpoint, error) {
	if s.probe != nil {
		s.probe()
	}
	if err := s.failFor[id]; err != nil {
		return UDPEndpoint{}, err
	}
	s.registered = append(s.registered, id)
	s.nextPort++
	return UDPEndpoint{Host: "192.168.0.4", Port: s.nextPort}, nil
}

func (s *fakeStrategy) InsertContainer(id ContainerID, info ExecutorInfo, endpoint UDPEndpoint) {
	if s.probe != nil {
		s.probe()
	}
	s.inserted[id] = endpoint
}

func (s *fakeStrategy) UnregisterContainer(id ContainerID) {
	if s.probe != nil {
		s.probe()
	}
	s.released = append(s.released, id)
}

// fakeCache keeps assignments in a plain map and counts reads.
type fakeCache struct {
	containers map[ContainerID]UDPEndpoint
	addErr     error
	removeErr  error
	getCalls   int
	pathCalls  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{containers: make(map[ContainerID]UDPEndpoint)}
}

func (c *fakeCache) GetContainers() map[ContainerID]UDPEndpoint {
	c.getCalls++
	snapshot := make(map[ContainerID]UDPEndpoint, len(c.containers))
	for id, endpoint := range c.containers {
		snapshot[id] = endpoint
	}
	return snapshot
}

func (c *fakeCache) AddContainer(id ContainerID, endpoint UDPEndpoint) error {
	if c.addErr != nil {
		return c.addErr
	}
	c.containers[id] = endpoint
	return nil
}

func (c *fakeCache) RemoveContainer(id ContainerID) error {
	if c.removeErr != nil {
		return c.removeErr
	}
	delete(c.containers, id)
	return nil
}

func (c *fakeCache) Path() string {
	c.pathCalls++
	return "/var/lib/fake/inputs.db"
}
