package metrics

import (
	"math"
	"slices"
)

// Stats contains distribution statistics for one metric, in milliseconds.
type Stats struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Summary aggregates the reports of repeated or parallel runs.
type Summary struct {
	Runs           int     `json:"runs"`
	PingRTT        Stats   `json:"ping_rtt_ms"`
	RPCRTT         Stats   `json:"rpc_rtt_ms"`
	ServerSort     Stats   `json:"server_sort_ms"`
	OneWayNetwork  Stats   `json:"one_way_network_ms"`
	MeanThroughput float64 `json:"mean_throughput"`
	ThroughputRuns int     `json:"throughput_runs"`
	AnomalousRuns  int     `json:"anomalous_runs"`
}

// Summarize computes statistics over reports. Throughput is averaged over
// runs where it is defined.
func Summarize(reports []Report) Summary {
	s := Summary{Runs: len(reports)}
	if len(reports) == 0 {
		return s
	}

	ping := make([]float64, 0, len(reports))
	rpc := make([]float64, 0, len(reports))
	server := make([]float64, 0, len(reports))
	network := make([]float64, 0, len(reports))
	var throughput float64

	for _, r := range reports {
		ping = append(ping, r.PingRTTMs)
		rpc = append(rpc, r.RPCRTTMs)
		server = append(server, float64(r.ServerSortMs))
		network = append(network, r.OneWayNetworkMs)
		if r.ThroughputDefined {
			throughput += r.ApplicationThroughput
			s.ThroughputRuns++
		}
		if len(r.Anomalies()) > 0 {
			s.AnomalousRuns++
		}
	}

	s.PingRTT = CalculateStats(ping)
	s.RPCRTT = CalculateStats(rpc)
	s.ServerSort = CalculateStats(server)
	s.OneWayNetwork = CalculateStats(network)
	if s.ThroughputRuns > 0 {
		s.MeanThroughput = throughput / float64(s.ThroughputRuns)
	}
	return s
}

// CalculateStats computes statistics over samples. The slice is sorted in
// place.
func CalculateStats(samples []float64) Stats {
	if len(samples) == 0 {
		return Stats{}
	}

	var total float64
	low, high := math.Inf(1), math.Inf(-1)
	for _, v := range samples {
		total += v
		low = math.Min(low, v)
		high = math.Max(high, v)
	}

	slices.Sort(samples)

	return Stats{
		Avg: total / float64(len(samples)),
		Min: low,
		Max: high,
		P50: Percentile(samples, 50),
		P95: Percentile(samples, 95),
		P99: Percentile(samples, 99),
	}
}

// Percentile returns the p-th percentile of a sorted slice.
func Percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := (p * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
