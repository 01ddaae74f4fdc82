// Package prometheus renders engine metrics in Prometheus text exposition
// format.
//
// [NewExporter] accepts an [authcore.Engine] and exposes an [net/http.Handler]
// serving all counters and the authenticate latency histogram. Counter names
// are prefixed authcore_*_total; the histogram is
// authcore_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the
//     Handler where they want it.
//   - Mutate engine state.
package prometheus
