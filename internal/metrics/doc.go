// Package metrics holds the per-run metric registry shared by every virtual user.
//
// Four kinds of metric are supported:
//   - [Counter]: monotonic int64 sum.
//   - [Rate]: fraction of non-zero observations (e.g. failed requests).
//   - [Gauge]: last value plus high-water mark.
//   - [Trend]: multiset of float64 samples (milliseconds for durations).
//
// Metrics are created on first use by name:
//
//	reg := metrics.NewRegistry()
//	reg.Reset() // run start
//	reg.Counter("failed_connections").Inc()
//	reg.Trend("http_req_duration").AddDuration(latency)
//	reg.Freeze() // run end
//	snap := reg.Snapshot()
//	p95, ok := snap.Percentile("http_req_duration", 95)
//
// # Thread Safety
//
// Every metric is split across a fixed number of shards chosen at random per
// write, so concurrent virtual users never contend on one lock. Counters use
// padded atomics; trends use a mutex per shard. Reads merge the shards.
//
// Snapshots are exact: percentiles are computed over the sorted raw samples
// with linear interpolation. [Trend.Live] serves cheaper approximate stats from
// an HDR histogram for progress output and dashboards.
package metrics
