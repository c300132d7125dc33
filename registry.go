package dispatch

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

// Kind discriminates a FunctionDescriptor's calling convention.
type Kind int

const (
	KindOneShot Kind = iota
	KindCoroutine
)

// entry is the shape every registered function is reduced to, regardless
// of Kind: take a boxed input, any prior poll result on resume, and return
// either a final directive or a poll directive. One-shot functions never
// return a poll directive.
type entry func(req dispatchproto.RunRequest) (dispatchproto.RunResponse, error)

// FunctionDescriptor is the immutable record a registered function is
// reduced to (spec.md §3). Names are globally unique within a process;
// registering the same name twice with a different descriptor is an
// error, registering an identical one is a no-op (spec.md §4.C).
type FunctionDescriptor struct {
	Name    string
	Kind    Kind
	Version string

	entry entry
}

func (f FunctionDescriptor) equivalent(g FunctionDescriptor) bool {
	return f.Name == g.Name && f.Kind == g.Kind && f.Version == g.Version &&
		reflect.ValueOf(f.entry).Pointer() == reflect.ValueOf(g.entry).Pointer()
}

// RegisterOption configures a FunctionDescriptor as Func.Register or
// Coroutine.Register builds it.
type RegisterOption func(*FunctionDescriptor)

// WithVersion sets the version a restored snapshot must match (spec.md
// §4.E, §9's "Version skew"). Left empty, every snapshot for that function
// is treated as the same version — fine for a process that never changes
// a registered coroutine's frame layout across deploys, but a function
// whose code can change shape between deploys should set one so a stale
// snapshot is refused instead of restored onto an incompatible body.
func WithVersion(v string) RegisterOption {
	return func(fd *FunctionDescriptor) { fd.Version = v }
}

// Registry is the process-wide Function Registry (component C). It is
// safe for concurrent Lookup once registration has finished; Register is
// expected to run only during process startup, per spec.md §5's "treat it
// as a write-once table... frozen after startup" guidance — Registry
// itself does not enforce freezing, but a concurrent Register racing with
// a Lookup is a programming error, not a supported usage.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]FunctionDescriptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]FunctionDescriptor)}
}

// DefaultRegistry is the registry Register/Lookup operate on when callers
// don't need more than one process-wide table, matching the teacher
// pack's convention of a package-level default plus an explicit
// constructor for tests (e.g. a fresh Registry per dispatchtest.Scheduler).
var DefaultRegistry = NewRegistry()

// Register adds fd to the registry. Registering the identical descriptor
// twice is a no-op; registering a different descriptor under a name
// already taken is an error (spec.md invariant 4: "exactly one
// FunctionDescriptor for the lifetime of the process").
func (r *Registry) Register(fd FunctionDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[fd.Name]; ok {
		if existing.equivalent(fd) {
			return nil
		}
		return fmt.Errorf("dispatch: register %q: already registered with a different implementation", fd.Name)
	}
	r.byName[fd.Name] = fd
	return nil
}

// Lookup finds the descriptor registered under name.
func (r *Registry) Lookup(name string) (FunctionDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fd, ok := r.byName[name]
	if !ok {
		return FunctionDescriptor{}, newError("lookup", dispatchproto.StatusNotFound, fmt.Errorf("function %q is not registered", name))
	}
	return fd, nil
}
