// Package metrics derives latency and throughput figures from the probe and
// sort timing samples.
package metrics

import (
	"fmt"

	"globesort/internal/timing"
)

// Report holds the metrics of one run. All durations are milliseconds.
type Report struct {
	Values                int     `json:"values"`
	PingRTTMs             float64 `json:"ping_rtt_ms"`
	OneWayLatencyMs       float64 `json:"one_way_latency_ms"`
	RPCRTTMs              float64 `json:"rpc_rtt_ms"`
	ServerSortMs          int32   `json:"server_sort_ms"`
	ApplicationThroughput float64 `json:"application_throughput"` // values per second
	ThroughputDefined     bool    `json:"throughput_defined"`
	OneWayNetworkMs       float64 `json:"one_way_network_ms"`
}

// Compute derives a Report. Both one-way figures assume a symmetric path and
// that the server-reported duration is commensurate with wall-clock RTT.
// A zero RPC RTT leaves throughput at 0 with ThroughputDefined false.
func Compute(ping, rpc timing.Sample, serverDurationMs int32, n int) Report {
	r := Report{
		Values:       n,
		PingRTTMs:    ping.Millis(),
		RPCRTTMs:     rpc.Millis(),
		ServerSortMs: serverDurationMs,
	}
	r.OneWayLatencyMs = r.PingRTTMs / 2
	if r.RPCRTTMs > 0 {
		r.ApplicationThroughput = float64(n) / (r.RPCRTTMs / 1000.0)
		r.ThroughputDefined = true
	}
	r.OneWayNetworkMs = (r.RPCRTTMs - float64(serverDurationMs)) / 2.0
	return r
}

// Anomalies lists measurement inconsistencies, typically caused by clock
// skew between client and server. They are reported, never fatal.
func (r Report) Anomalies() []string {
	var out []string
	if r.ServerSortMs < 0 {
		out = append(out, fmt.Sprintf("server reported negative sort duration (%d ms)", r.ServerSortMs))
	}
	if float64(r.ServerSortMs) > r.RPCRTTMs {
		out = append(out, fmt.Sprintf("server sort duration (%d ms) exceeds rpc round trip (%.3f ms)",
			r.ServerSortMs, r.RPCRTTMs))
	}
	if r.OneWayNetworkMs < 0 {
		out = append(out, fmt.Sprintf("negative one-way network time (%.3f ms)", r.OneWayNetworkMs))
	}
	if r.PingRTTMs < 0 || r.RPCRTTMs < 0 {
		out = append(out, "negative round trip time")
	}
	return out
}
