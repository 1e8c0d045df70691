// Package watch publishes container endpoint assignment changes to
// interested subscribers.
package watch

import (
	"sync"

	"github.com/docker/go-events"

	"github.com/minyk/dcos-metrics/inputs"
)

// EventType distinguishes assignment lifecycle events.
type EventType string

const (
	// EventAssigned fires when a container receives an endpoint.
	EventAssigned EventType = "assigned"
	// EventReleased fires when a container's endpoint is released.
	EventReleased EventType = "released"
)

// Event describes one assignment change.
type Event struct {
	Type        EventType
	ContainerID inputs.ContainerID
	Endpoint    inputs.UDPEndpoint
}

// Queue fans assignment events out to watchers. Slow watchers are decoupled
// from publishers by an unbounded queue per watcher, so Publish never
// blocks on a subscriber.
type Queue struct {
	broadcast *events.Broadcaster

	mu      sync.Mutex
	closed  bool
	cancels map[events.Sink]func()
}

// NewQueue returns an empty queue ready for watchers.
func NewQueue() *Queue {
	return &Queue{
		broadcast: events.NewBroadcaster(),
		cancels:   make(map[events.Sink]func()),
	}
}

// Watch returns a channel receiving every event published after the call
// and a cancel function that releases the watcher. The channel closes on
// cancel and on queue Close.
func (q *Queue) Watch() (<-chan Event, func()) {
	return q.watch(nil)
}

// FilteredWatch narrows a watch to the events matcher accepts.
func (q *Queue) FilteredWatch(matcher func(Event) bool) (<-chan Event, func()) {
	return q.watch(matcher)
}

// Publish fans one event out to every watcher.
func (q *Queue) Publish(event Event) {
	q.broadcast.Write(event)
}

// Close releases every watcher and shuts the queue down. Watches taken
// after Close return closed channels.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true

	cancels := make([]func(), 0, len(q.cancels))
	for _, cancel := range q.cancels {
		cancels = append(cancels, cancel)
	}
	q.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	return q.broadcast.Close()
}

func (q *Queue) watch(matcher func(Event) bool) (<-chan Event, func()) {
	ch := events.NewChannel(0)
	sink := events.Sink(events.NewQueue(ch))

	if matcher != nil {
		sink = events.NewFilter(sink, events.MatcherFunc(func(event events.Event) bool {
			e, ok := event.(Event)
			return ok && matcher(e)
		}))
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			q.broadcast.Remove(sink)
			ch.Close()
			sink.Close()

			q.mu.Lock()
			delete(q.cancels, sink)
			q.mu.Unlock()
		})
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		ch.Close()
		sink.Close()

		out := make(chan Event)
		close(out)
		return out, func() {}
	}
	q.cancels[sink] = cancel
	q.mu.Unlock()

	q.broadcast.Add(sink)

	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case event := <-ch.C:
				e, ok := event.(Event)
				if !ok {
					continue
				}
				select {
				case out <- e:
				case <-ch.Done():
					return
				}
			case <-ch.Done():
				return
			}
		}
	}()

	return out, cancel
}
