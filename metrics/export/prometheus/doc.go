// Package prometheus renders guard metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] wraps a [sessionguard.Guard] and exposes an
// [http.Handler]. Counters are named sessionguard_*_total; the only histogram
// is sessionguard_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in a global Prometheus registry. Callers mount the Handler.
//   - Mutate guard state.
package prometheus
