package dispatch

import (
	"fmt"

	"github.com/dispatchrun/dispatch-go/coroutine"
	"github.com/dispatchrun/dispatch-go/dispatchcontext"
	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

// Func is a one-shot function (spec.md §4.B): it runs start to finish
// within a single RunRequest and never suspends. I is the input type it
// expects once unboxed; O is the output type it produces.
type Func[I, O any] struct {
	name string
	fn   func(I) (O, error)
}

// NewFunc wraps fn as a one-shot function named name.
func NewFunc[I, O any](name string, fn func(I) (O, error)) *Func[I, O] {
	return &Func[I, O]{name: name, fn: fn}
}

// Name is the name this function was registered under.
func (f *Func[I, O]) Name() string { return f.name }

// Register adds f to r under its name. WithVersion may be passed to tie
// this registration to a specific snapshot version (spec.md §4.E).
func (f *Func[I, O]) Register(r *Registry, opts ...RegisterOption) error {
	// Registering I lets a boxed input unbox as I rather than as a generic
	// []any, so durable's type assertion holds.
	coroutine.RegisterType[I]()
	fd := FunctionDescriptor{Name: f.name, Kind: KindOneShot}
	for _, opt := range opts {
		opt(&fd)
	}
	fd.entry = func(req dispatchproto.RunRequest) (dispatchproto.RunResponse, error) {
		return runRequest(f.durable(), fd.Version, req)
	}
	return r.Register(fd)
}

func (f *Func[I, O]) durable() dispatchcontext.Func {
	return func(_ *dispatchcontext.Context, input any) (any, error) {
		in, ok := input.(I)
		if !ok {
			return nil, fmt.Errorf("dispatch: %s: expected input of type %T, got %T", f.name, *new(I), input)
		}
		return f.fn(in)
	}
}

// Coroutine is a durable function (spec.md §4.B, §4.D): it may suspend any
// number of times through the Context it is given, each suspension
// surviving a process restart.
type Coroutine[I, O any] struct {
	name string
	fn   func(*dispatchcontext.Context, I) (O, error)
}

// NewCoroutine wraps fn as a durable coroutine named name.
func NewCoroutine[I, O any](name string, fn func(*dispatchcontext.Context, I) (O, error)) *Coroutine[I, O] {
	return &Coroutine[I, O]{name: name, fn: fn}
}

// Name is the name this coroutine was registered under.
func (c *Coroutine[I, O]) Name() string { return c.name }

// Register adds c to r under its name. WithVersion may be passed to tie
// this registration to a specific snapshot version (spec.md §4.E): a
// snapshot captured under a different version is refused on restore
// rather than replayed against a coroutine body it no longer matches.
func (c *Coroutine[I, O]) Register(r *Registry, opts ...RegisterOption) error {
	// Registering I lets a boxed input (and the input captured in a
	// snapshot) unbox as I rather than as a generic []any.
	coroutine.RegisterType[I]()
	fd := FunctionDescriptor{Name: c.name, Kind: KindCoroutine}
	for _, opt := range opts {
		opt(&fd)
	}
	fd.entry = func(req dispatchproto.RunRequest) (dispatchproto.RunResponse, error) {
		return runRequest(c.durable(), fd.Version, req)
	}
	return r.Register(fd)
}

func (c *Coroutine[I, O]) durable() dispatchcontext.Func {
	return func(ctx *dispatchcontext.Context, input any) (any, error) {
		in, ok := input.(I)
		if !ok {
			return nil, fmt.Errorf("dispatch: %s: expected input of type %T, got %T", c.name, *new(I), input)
		}
		return c.fn(ctx, in)
	}
}
