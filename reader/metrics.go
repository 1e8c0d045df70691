package reader

import metrics "github.com/docker/go-metrics"

var (
	packetsReceived     metrics.Counter
	bytesReceived       metrics.Counter
	recordsEmitted      metrics.Counter
	unattributedRecords metrics.Counter
)

func init() {
	ns := metrics.NewNamespace("dcos_metrics", "reader", nil)
	packetsReceived = ns.NewCounter("packets_received", "Number of UDP datagrams received from containers")
	bytesReceived = ns.NewCounter("bytes_received", "Number of UDP payload bytes received from containers")
	recordsEmitted = ns.NewCounter("records", "Number of statsd records published downstream")
	unattributedRecords = ns.NewCounter("unattributed_records", "Number of records received on sockets with zero or several registered containers")
	metrics.Register(ns)
}
