package metrics

import "time"

// DownloadOutcomeLabel enumerates terminal download outcomes for counters.
type DownloadOutcomeLabel string

const (
	DownloadSuccess        DownloadOutcomeLabel = "success"
	DownloadFailed         DownloadOutcomeLabel = "failed"
	DownloadPausedTimeout  DownloadOutcomeLabel = "paused_timeout"
	DownloadRunningTimeout DownloadOutcomeLabel = "running_timeout"
	DownloadCancelled      DownloadOutcomeLabel = "cancelled"
)

// Recorder defines observability hooks for the readiness workflow.
type Recorder interface {
	IncStatus(status string)
	IncDownloadOutcome(outcome DownloadOutcomeLabel)
	SetDownloadBytes(done, total int64)
	ObserveDownloadDuration(d time.Duration)
	ObserveDecompressDuration(d time.Duration, success bool)
	AddDeferredDrained(objects, invocations int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncStatus(string) {}
func (NoopRecorder) IncDownloadOutcome(DownloadOutcomeLabel) {}
func (NoopRecorder) SetDownloadBytes(int64, int64) {}
func (NoopRecorder) ObserveDownloadDuration(time.Duration) {}
func (NoopRecorder) ObserveDecompressDuration(time.Duration, bool) {}
func (NoopRecorder) AddDeferredDrained(int, int) {}
