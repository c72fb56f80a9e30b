package deferred

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhuyongyong/crosswalk/internal/failure"
	"github.com/zhuyongyong/crosswalk/internal/logging"
)

// Stats counts what a drain replayed.
type Stats struct {
	Objects     int
	Invocations int
	Failed      int
}

// Queue holds deferred objects and invocations until Drain.
type Queue struct {
	objects []Object
	calls   []*Invocation
	drained bool
	log     *zap.Logger
}

// NewQueue returns an empty queue. A nil logger disables logging.
func NewQueue(log *zap.Logger) *Queue {
	return &Queue{log: logging.OrNop(log)}
}

// DeferObject appends obj to the object queue. Calling it after Drain is a
// programming error and panics.
func (q *Queue) DeferObject(obj Object) {
	if q.drained {
		failure.Fatal("defer object", fmt.Sprintf("%T deferred after readiness", obj), nil)
	}
	if obj == nil {
		failure.Fatal("defer object", "nil object", nil)
	}
	q.log.Debug("Reserve object", zap.String("type", fmt.Sprintf("%T", obj)))
	q.objects = append(q.objects, obj)
}

// DeferInvocation appends call to the invocation queue. Calling it after
// Drain is a programming error and panics.
func (q *Queue) DeferInvocation(call *Invocation) {
	if q.drained {
		failure.Fatal("defer invocation", "invocation deferred after readiness", nil)
	}
	if call == nil {
		failure.Fatal("defer invocation", "nil invocation", nil)
	}
	q.log.Debug("Reserve invocation", zap.Stringer("invocation", call))
	q.calls = append(q.calls, call)
}

// Len returns the number of pending objects and invocations.
func (q *Queue) Len() (objects, invocations int) {
	return len(q.objects), len(q.calls)
}

// Drained reports whether Drain has run.
func (q *Queue) Drained() bool {
	return q.drained
}

// Drain replays the queue exactly once: every object's LateInit in FIFO
// order, then every invocation in FIFO order. A LateInit failure panics.
// Invocation failures do not stop the drain; they are joined and returned.
func (q *Queue) Drain() (Stats, error) {
	if q.drained {
		failure.Fatal("drain", "deferred queue drained twice", nil)
	}
	q.drained = true

	var stats Stats
	for len(q.objects) > 0 {
		obj := q.objects[0]
		q.objects[0] = nil
		q.objects = q.objects[1:]

		q.log.Debug("Init reserved object", zap.String("type", fmt.Sprintf("%T", obj)))
		if err := obj.LateInit(); err != nil {
			failure.Fatal("late init", fmt.Sprintf("%T", obj), err)
		}
		stats.Objects++
	}
	q.objects = nil

	var errs []error
	for len(q.calls) > 0 {
		call := q.calls[0]
		q.calls[0] = nil
		q.calls = q.calls[1:]

		q.log.Debug("Call reserved invocation", zap.Stringer("invocation", call))
		if _, err := call.Invoke(); err != nil {
			q.log.Warn("Reserved invocation failed", zap.Stringer("invocation", call), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", call.Name, err))
			stats.Failed++
		}
		stats.Invocations++
	}
	q.calls = nil

	return stats, errors.Join(errs...)
}
