// Package mesos queries the local Mesos agent for its running containers.
package mesos

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/minyk/dcos-metrics/inputs"
)

// Client fetches container listings from a Mesos agent.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient talks to the agent at addr, e.g. "localhost:5051".
func NewClient(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type containerEntry struct {
	ContainerID string `json:"container_id"`
	ExecutorID  string `json:"executor_id"`
	FrameworkID string `json:"framework_id"`
}

// Containers lists the containers currently running on the agent, shaped
// for assignment recovery.
func (c *Client) Containers(ctx context.Context) ([]inputs.ContainerState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/containers", nil)
	if err != nil {
		return nil, errors.Wrap(err, "building containers request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "querying agent containers")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("agent containers returned status %s", resp.Status)
	}

	var entries []containerEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "decoding containers response")
	}

	states := make([]inputs.ContainerState, 0, len(entries))
	for _, e := range entries {
		states = append(states, inputs.ContainerState{
			ContainerID: inputs.ContainerID(e.ContainerID),
			ExecutorInfo: inputs.ExecutorInfo{
				FrameworkID: e.FrameworkID,
				ExecutorID:  e.ExecutorID,
			},
		})
	}

	return states, nil
}
