package extract

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zhuyongyong/crosswalk/internal/logging"
	"github.com/zhuyongyong/crosswalk/internal/metrics"
)

// Outcome is the terminal state of a decompression task.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result describes how a task ended.
type Result struct {
	Archive  string
	Dest     string
	Outcome  Outcome
	Entries  int
	Bytes    int64
	Err      error
	Duration time.Duration
}

// Sink receives task events from the task goroutine. Finished is last.
type Sink interface {
	Progress(entries int, name string)
	Finished(Result)
}

// Task is a running decompression.
type Task struct {
	Archive string
	Dest    string

	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}

	mu     sync.Mutex
	result Result
}

// Cancel requests cancellation. It is observed between entries and between
// copy chunks.
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

// Coordinator runs decompression tasks.
type Coordinator struct {
	log     *zap.Logger
	metrics metrics.Recorder
}

// Option configures a Coordinator.
type Option func(*Coordinator)

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

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.OrNop(c.log)
	if c.metrics == nil {
		c.metrics = metrics.NoopRecorder{}
	}
	return c
}

// Start extracts archive into dest in a new goroutine.
func (c *Coordinator) Start(ctx context.Context, archive, dest string, sink Sink) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		Archive: archive,
		Dest:    dest,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.log.Info("Decompression started", zap.String("archive", archive), zap.String("dest", dest))

	go c.run(ctx, t, sink)
	return t
}

func (c *Coordinator) run(ctx context.Context, t *Task, sink Sink) {
	defer t.cancel()
	start := time.Now()

	var progress Progress
	if sink != nil {
		progress = sink.Progress
	}
	stats, err := ExtractTo(ctx, t.Archive, t.Dest, progress)

	res := Result{
		Archive:  t.Archive,
		Dest:     t.Dest,
		Entries:  stats.Entries,
		Bytes:    stats.Bytes,
		Duration: time.Since(start),
	}
	switch {
	case t.Cancelled() || errors.Is(err, ErrCancelled):
		res.Outcome = OutcomeCancelled
	case err != nil:
		res.Outcome, res.Err = OutcomeFailed, err
	default:
		res.Outcome = OutcomeSuccess
	}

	c.metrics.ObserveDecompressDuration(res.Duration, res.Outcome == OutcomeSuccess)
	c.log.Info("Decompression finished",
		zap.String("archive", t.Archive),
		zap.Stringer("outcome", res.Outcome),
		zap.Int("entries", res.Entries),
		zap.Error(res.Err))

	t.mu.Lock()
	t.result = res
	t.mu.Unlock()
	if sink != nil {
		sink.Finished(res)
	}
	close(t.done)
}
