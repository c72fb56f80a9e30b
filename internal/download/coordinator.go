package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhuyongyong/crosswalk/internal/failure"
	"github.com/zhuyongyong/crosswalk/internal/logging"
	"github.com/zhuyongyong/crosswalk/internal/metrics"
)

// Polling defaults: one sample every 100ms, give up after 10 minutes paused
// or 30 minutes running.
const (
	DefaultInterval          = 100 * time.Millisecond
	DefaultMaxPausedSamples  = 6000
	DefaultMaxRunningSamples = 18000
)

// Outcome is the terminal state of a download task.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomePausedTimeout
	OutcomeRunningTimeout
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomePausedTimeout:
		return "paused_timeout"
	case OutcomeRunningTimeout:
		return "running_timeout"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (o Outcome) label() metrics.DownloadOutcomeLabel {
	return metrics.DownloadOutcomeLabel(o.String())
}

// Result describes how a task ended.
type Result struct {
	TaskID     string
	URL        string
	Outcome    Outcome
	Artifact   string // local file, for OutcomeSuccess
	Reason     Reason // for OutcomeFailed
	Err        error  // failure.Error for every outcome but success and cancel
	BytesSoFar int64
	Total      int64
	Samples    int
	Duration   time.Duration
}

// Message returns the text shown to the user for a result that is not a
// success. A paused timeout uses the generic failure message.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeRunningTimeout:
		return "download failed: time-out"
	case OutcomeFailed:
		return r.Reason.Message()
	case OutcomeCancelled:
		return "download cancelled"
	default:
		return ReasonUnknown.Message()
	}
}

// Sink receives task events. Both methods are called from the task goroutine;
// Progress calls arrive in order and Finished is always last.
type Sink interface {
	Progress(taskID string, soFar, total int64)
	Finished(Result)
}

// Task is a running download.
type Task struct {
	ID  string
	URL string

	transferID string
	cancel     context.CancelFunc
	cancelled  atomic.Bool
	done       chan struct{}

	mu     sync.Mutex
	result Result
}

// Cancel requests cancellation. The polling loop observes it within one
// interval, and the task then reports OutcomeCancelled even if the transfer
// completed.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// Cancelled reports whether Cancel was called.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed after the task finished and its sink was notified.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Coordinator starts download tasks on a Manager and supervises them.
type Coordinator struct {
	manager    Manager
	dir        string
	interval   time.Duration
	maxPaused  int
	maxRunning int
	checksum   string
	log        *zap.Logger
	metrics    metrics.Recorder
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval sets the polling interval. Non-positive values keep
// DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		c.interval = d
	}
}

// WithMaxPausedSamples sets how many paused samples end a task. Samples are
// counted over the task's lifetime, not only consecutive ones. Values below
// one keep DefaultMaxPausedSamples.
func WithMaxPausedSamples(n int) Option {
	return func(c *Coordinator) {
		c.maxPaused = n
	}
}

// WithMaxRunningSamples sets how many running samples end a task, counted
// like paused samples. Values below one keep DefaultMaxRunningSamples.
func WithMaxRunningSamples(n int) Option {
	return func(c *Coordinator) {
		c.maxRunning = n
	}
}

// WithChecksum sets the expected hex SHA-256 of downloaded artifacts.
func WithChecksum(sum string) Option {
	return func(c *Coordinator) {
		c.checksum = strings.ToLower(strings.TrimSpace(sum))
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Coordinator) {
		c.metrics = r
	}
}

// NewCoordinator creates a Coordinator that downloads into dir.
func NewCoordinator(m Manager, dir string, opts ...Option) *Coordinator {
	c := &Coordinator{
		manager:    m,
		dir:        dir,
		interval:   DefaultInterval,
		maxPaused:  DefaultMaxPausedSamples,
		maxRunning: DefaultMaxRunningSamples,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	if c.maxPaused < 1 {
		c.maxPaused = DefaultMaxPausedSamples
	}
	if c.maxRunning < 1 {
		c.maxRunning = DefaultMaxRunningSamples
	}
	c.log = logging.OrNop(c.log)
	if c.metrics == nil {
		c.metrics = metrics.NoopRecorder{}
	}
	return c
}

// Start enqueues a download of url and polls it in a new goroutine.
// An empty url is a failure.KindConfigurationMissing error.
func (c *Coordinator) Start(ctx context.Context, url string, sink Sink) (*Task, error) {
	if strings.TrimSpace(url) == "" {
		return nil, failure.New(failure.KindConfigurationMissing, "start download", "no download url configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	dest := filepath.Join(c.dir, ArtifactName(url))
	transferID, err := c.manager.Enqueue(ctx, Request{URL: url, Dest: dest})
	if err != nil {
		cancel()
		return nil, failure.Wrap(failure.KindTransferFailed, "enqueue download", err)
	}

	t := &Task{
		ID:         uuid.NewString(),
		URL:        url,
		transferID: transferID,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	c.log.Info("Download started", zap.String("task_id", t.ID), zap.String("url", url))

	go c.supervise(ctx, t, sink)
	return t, nil
}

func (c *Coordinator) supervise(ctx context.Context, t *Task, sink Sink) {
	start := time.Now()
	res := c.poll(ctx, t, sink)
	res.TaskID, res.URL = t.ID, t.URL

	if t.Cancelled() {
		res = Result{TaskID: t.ID, URL: t.URL, Outcome: OutcomeCancelled,
			BytesSoFar: res.BytesSoFar, Total: res.Total, Samples: res.Samples}
	}

	if res.Outcome == OutcomeSuccess && c.checksum != "" {
		if err := verifyChecksum(res.Artifact, c.checksum); err != nil {
			res.Outcome, res.Reason = OutcomeFailed, ReasonChecksumMismatch
			res.Err = failure.Wrap(failure.KindIntegrity, "verify download", err)
			os.Remove(res.Artifact)
			res.Artifact = ""
		}
	}

	if err := c.manager.Remove(t.transferID); err != nil {
		c.log.Warn("Removing transfer failed", zap.String("task_id", t.ID), zap.Error(err))
	}

	res.Duration = time.Since(start)
	c.metrics.IncDownloadOutcome(res.Outcome.label())
	c.metrics.ObserveDownloadDuration(res.Duration)
	c.log.Info("Download finished",
		zap.String("task_id", t.ID),
		zap.Stringer("outcome", res.Outcome),
		zap.Int64("bytes", res.BytesSoFar),
		zap.Int("samples", res.Samples),
		zap.Error(res.Err))

	t.mu.Lock()
	t.result = res
	t.mu.Unlock()
	if sink != nil {
		sink.Finished(res)
	}
	close(t.done)
}

// poll samples the transfer until it reaches a terminal state.
func (c *Coordinator) poll(ctx context.Context, t *Task, sink Sink) Result {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var res Result
	var paused, running int
	for {
		select {
		case <-ctx.Done():
			// Parent context gone: treated as a cancel.
			t.cancelled.Store(true)
			return res
		case <-ticker.C:
		}
		if t.Cancelled() {
			return res
		}

		snap, ok := c.manager.Query(t.transferID)
		if !ok {
			continue
		}
		res.Samples++
		res.BytesSoFar, res.Total = snap.BytesSoFar, snap.Total
		if snap.Total > 0 {
			c.metrics.SetDownloadBytes(snap.BytesSoFar, snap.Total)
			if sink != nil {
				sink.Progress(t.ID, snap.BytesSoFar, snap.Total)
			}
		}

		switch snap.Status {
		case StatusSuccessful:
			res.Outcome, res.Artifact = OutcomeSuccess, snap.Path
			return res
		case StatusFailed:
			reason := snap.Reason
			if reason == ReasonNone {
				reason = ReasonUnknown
			}
			res.Outcome, res.Reason = OutcomeFailed, reason
			res.Err = failure.Wrap(failure.KindTransferFailed, "download "+t.URL, transferErr(snap))
			return res
		case StatusPaused:
			paused++
			if paused == c.maxPaused {
				res.Outcome = OutcomePausedTimeout
				res.Err = failure.New(failure.KindTransferTimedOut, "download "+t.URL,
					fmt.Sprintf("paused for %d samples", paused))
				return res
			}
		case StatusRunning:
			running++
			if running == c.maxRunning {
				res.Outcome = OutcomeRunningTimeout
				res.Err = failure.New(failure.KindTransferTimedOut, "download "+t.URL,
					fmt.Sprintf("running for %d samples", running))
				return res
			}
		}
	}
}

func transferErr(s Snapshot) error {
	if s.Err != nil {
		return s.Err
	}
	return errors.New(s.Reason.Message())
}

func verifyChecksum(path, expected string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening artifact for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("computing checksum: %w", err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
