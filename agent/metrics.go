package agent

import metrics "github.com/docker/go-metrics"

var (
	assignedContainers metrics.Gauge
	registerRequests   metrics.Counter
	unregisterRequests metrics.Counter
)

func init() {
	ns := metrics.NewNamespace("dcos_metrics", "agent", nil)
	assignedContainers = ns.NewGauge("assigned_containers", "Number of containers currently holding an input endpoint", "")
	registerRequests = ns.NewCounter("register_requests", "Number of container register requests handled by the API")
	unregisterRequests = ns.NewCounter("unregister_requests", "Number of container unregister requests handled by the API")
	metrics.Register(ns)
}
