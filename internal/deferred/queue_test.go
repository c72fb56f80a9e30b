package deferred

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhuyongyong/crosswalk/internal/failure"
)

// requireFatal asserts fn panics with an InternalConsistency error.
func requireFatal(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(*failure.Error)
		require.True(t, ok, "panic value should be *failure.Error, got %T", r)
		assert.Equal(t, failure.KindInternalConsistency, err.Kind)
	}()
	fn()
}

func TestDrain_ObjectsBeforeInvocationsInOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		q := NewQueue(nil)
		var log []string
		var wantObjects, wantCalls []string

		n := rng.Intn(20)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("%d", i)
			if rng.Intn(2) == 0 {
				wantObjects = append(wantObjects, "obj"+id)
				q.DeferObject(ObjectFunc(func() error {
					log = append(log, "obj"+id)
					return nil
				}))
			} else {
				wantCalls = append(wantCalls, "call"+id)
				q.DeferInvocation(NewInvocation("call"+id, func(...any) (any, error) {
					log = append(log, "call"+id)
					return nil, nil
				}))
			}
		}

		stats, err := q.Drain()
		require.NoError(t, err)
		assert.Equal(t, len(wantObjects), stats.Objects)
		assert.Equal(t, len(wantCalls), stats.Invocations)

		want := append(append([]string{}, wantObjects...), wantCalls...)
		if len(want) == 0 {
			want = nil
		}
		assert.Equal(t, want, log, "round %d", round)

		objects, calls := q.Len()
		assert.Zero(t, objects)
		assert.Zero(t, calls)
	}
}

func TestInvoke_NestedArgumentsResolveFirst(t *testing.T) {
	for depth := 1; depth <= 6; depth++ {
		t.Run(fmt.Sprintf("depth=%d", depth), func(t *testing.T) {
			var order []int

			// Innermost returns 0; each level adds one to its argument.
			var build func(level int) *Invocation
			build = func(level int) *Invocation {
				if level == depth {
					return NewInvocation("leaf", func(...any) (any, error) {
						order = append(order, level)
						return 0, nil
					})
				}
				return NewInvocation(fmt.Sprintf("level%d", level), func(args ...any) (any, error) {
					order = append(order, level)
					return args[0].(int) + 1, nil
				}, build(level+1))
			}

			q := NewQueue(nil)
			var got any
			q.DeferInvocation(NewInvocation("outer", func(args ...any) (any, error) {
				got = args[0]
				return nil, nil
			}, build(0)))

			_, err := q.Drain()
			require.NoError(t, err)
			assert.Equal(t, depth, got)

			// Deepest first.
			require.Len(t, order, depth+1)
			for i, level := range order {
				assert.Equal(t, depth-i, level)
			}
		})
	}
}

func TestInvoke_ArgumentsLeftToRight(t *testing.T) {
	var order []string
	mk := func(name string, args ...any) *Invocation {
		return NewInvocation(name, func(...any) (any, error) {
			order = append(order, name)
			return name, nil
		}, args...)
	}

	var received []any
	outer := NewInvocation("outer", func(args ...any) (any, error) {
		received = args
		return nil, nil
	}, mk("a", mk("a1"), mk("a2")), "plain", mk("b"))

	_, err := outer.Invoke()
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "a", "b"}, order)
	assert.Equal(t, []any{"a", "plain", "b"}, received)
}

func TestInvoke_NestedErrorSkipsOuter(t *testing.T) {
	outerRan := false
	outer := NewInvocation("outer", func(...any) (any, error) {
		outerRan = true
		return nil, nil
	}, NewInvocation("inner", func(...any) (any, error) {
		return nil, errors.New("boom")
	}))

	_, err := outer.Invoke()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving argument 0 of outer")
	assert.False(t, outerRan)
}

func TestDrain_InvocationErrorsAreCollected(t *testing.T) {
	q := NewQueue(nil)
	var ran []string
	q.DeferInvocation(NewInvocation("first", func(...any) (any, error) {
		ran = append(ran, "first")
		return nil, errors.New("first failed")
	}))
	q.DeferInvocation(NewInvocation("second", func(...any) (any, error) {
		ran = append(ran, "second")
		return nil, nil
	}))

	stats, err := q.Drain()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.Invocations)
}

func TestDrain_LateInitFailureIsFatal(t *testing.T) {
	q := NewQueue(nil)
	q.DeferObject(ObjectFunc(func() error { return errors.New("no runtime bridge") }))

	requireFatal(t, func() { _, _ = q.Drain() })
}

func TestDeferAfterDrainIsFatal(t *testing.T) {
	q := NewQueue(nil)
	_, err := q.Drain()
	require.NoError(t, err)
	assert.True(t, q.Drained())

	requireFatal(t, func() { q.DeferObject(ObjectFunc(func() error { return nil })) })
	requireFatal(t, func() {
		q.DeferInvocation(NewInvocation("late", func(...any) (any, error) { return nil, nil }))
	})
	requireFatal(t, func() { _, _ = q.Drain() })
}

func TestDeferDuringDrainIsFatal(t *testing.T) {
	q := NewQueue(nil)
	q.DeferObject(ObjectFunc(func() error {
		q.DeferObject(ObjectFunc(func() error { return nil }))
		return nil
	}))

	requireFatal(t, func() { _, _ = q.Drain() })
}

func TestInvoke_Twice(t *testing.T) {
	call := NewInvocation("once", func(...any) (any, error) { return nil, nil })
	_, err := call.Invoke()
	require.NoError(t, err)

	requireFatal(t, func() { _, _ = call.Invoke() })
}

func TestInvoke_NoTarget(t *testing.T) {
	_, err := (&Invocation{Name: "empty"}).Invoke()
	assert.Error(t, err)
}
