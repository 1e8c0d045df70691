package output

import metrics "github.com/docker/go-metrics"

var (
	forwardedRecords metrics.Counter
	flushedBatches   metrics.Counter
	droppedRecords   metrics.Counter
)

func init() {
	ns := metrics.NewNamespace("dcos_metrics", "output", nil)
	forwardedRecords = ns.NewCounter("records", "Number of statsd records forwarded to the collector")
	flushedBatches = ns.NewCounter("batches", "Number of UDP batches sent to the collector")
	droppedRecords = ns.NewCounter("dropped_records", "Number of records dropped because the forward queue was full")
	metrics.Register(ns)
}
