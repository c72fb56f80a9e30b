package deferred

import (
	"fmt"

	"github.com/zhuyongyong/crosswalk/internal/failure"
)

// Object is a handle awaiting its late initialization.
type Object interface {
	LateInit() error
}

// ObjectFunc adapts a function to Object.
type ObjectFunc func() error

// LateInit calls f.
func (f ObjectFunc) LateInit() error { return f() }

// Func is the target of an Invocation.
type Func func(args ...any) (any, error)

// Invocation is a deferred method call. Any argument that is itself an
// *Invocation is invoked first and replaced by its result.
type Invocation struct {
	Name string
	Fn   Func
	Args []any

	invoked bool
}

// NewInvocation returns an invocation of fn with args.
func NewInvocation(name string, fn Func, args ...any) *Invocation {
	return &Invocation{Name: name, Fn: fn, Args: args}
}

func (c *Invocation) String() string {
	return fmt.Sprintf("%s/%d", c.Name, len(c.Args))
}

// Invoke resolves nested invocation arguments depth-first, left to right, and
// then calls Fn. An invocation runs at most once.
func (c *Invocation) Invoke() (any, error) {
	if c.invoked {
		failure.Fatal("invoke", "invocation "+c.Name+" replayed twice", nil)
	}
	c.invoked = true

	if c.Fn == nil {
		return nil, fmt.Errorf("invocation %s has no target", c.Name)
	}

	args := make([]any, len(c.Args))
	for i, arg := range c.Args {
		nested, ok := arg.(*Invocation)
		if !ok {
			args[i] = arg
			continue
		}
		v, err := nested.Invoke()
		if err != nil {
			return nil, fmt.Errorf("resolving argument %d of %s: %w", i, c.Name, err)
		}
		args[i] = v
	}
	return c.Fn(args...)
}
