package agent

import (
	"github.com/docker/go-events"

	"github.com/minyk/dcos-metrics/inputs"
	"github.com/minyk/dcos-metrics/watch"
)

// discardSink drops every record. It stands in for the forwarder when
// no collector address is configured.
type discardSink struct{}

func (discardSink) Write(events.Event) error { return nil }
func (discardSink) Close() error             { return nil }

// watchingCache decorates a state cache so that every persisted
// assignment change is published on the agent's watch queue. Reads pass
// through untouched.
type watchingCache struct {
	inputs.StateCache

	queue *watch.Queue
}

func (c *watchingCache) AddContainer(id inputs.ContainerID, endpoint inputs.UDPEndpoint) error {
	if err := c.StateCache.AddContainer(id, endpoint); err != nil {
		return err
	}

	c.queue.Publish(watch.Event{
		Type:        watch.EventAssigned,
		ContainerID: id,
		Endpoint:    endpoint,
	})
	return nil
}

func (c *watchingCache) RemoveContainer(id inputs.ContainerID) error {
	if err := c.StateCache.RemoveContainer(id); err != nil {
		return err
	}

	c.queue.Publish(watch.Event{
		Type:        watch.EventReleased,
		ContainerID: id,
	})
	return nil
}
