// Package metrics records acquisition and readiness observations.
//
// Components receive a Recorder through options and default to NoopRecorder.
// The xwalk watch command swaps in a PrometheusRecorder and serves it on
// /metrics.
package metrics
