package dispatch

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/pithecene-io/sluice/state"
	"github.com/pithecene-io/sluice/types"
)

// Handler processes one intent. It may call emit zero or more times to
// produce changes, then returns. A non-nil error aborts the current
// transformation attempt and is surfaced to the retry policy.
//
// emit blocks while the accumulator applies backpressure and becomes a
// no-op once ctx is canceled.
type Handler[S, E any] func(ctx context.Context, it types.Intent, emit func(state.Change[S, E])) error

// Resolution classifies how a handler lookup resolved.
type Resolution int

const (
	// ResolvedNone means no handler matched and no default is installed.
	ResolvedNone Resolution = iota
	// ResolvedDirect means a handler registered for the intent's concrete
	// type matched.
	ResolvedDirect
	// ResolvedDefault means the lookup fell back to the default handler.
	ResolvedDefault
)

// Registry maps concrete intent types to handlers. Lookups use the
// intent's runtime type; register the concrete type that will be
// dispatched, not an interface it implements.
//
// All methods are safe for concurrent use, including registration during
// an active run.
type Registry[S, E any] struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]Handler[S, E]
	def      Handler[S, E]
}

// NewRegistry creates an empty Registry with no default handler.
func NewRegistry[S, E any]() *Registry[S, E] {
	return &Registry[S, E]{
		handlers: make(map[reflect.Type]Handler[S, E]),
	}
}

// Register binds h to intents of concrete type T, replacing any previous
// binding for T.
func Register[T any, S, E any](r *Registry[S, E], h Handler[S, E]) {
	r.RegisterType(reflect.TypeFor[T](), h)
}

// RegisterType binds h to intents of the given concrete type.
func (r *Registry[S, E]) RegisterType(t reflect.Type, h Handler[S, E]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Unregister removes the binding for concrete type T, if any.
func Unregister[T any, S, E any](r *Registry[S, E]) {
	r.UnregisterType(reflect.TypeFor[T]())
}

// UnregisterType removes the binding for the given type, if any.
func (r *Registry[S, E]) UnregisterType(t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, t)
}

// SetDefault installs the fallback handler for intents with no direct
// binding. A nil handler clears the fallback.
func (r *Registry[S, E]) SetDefault(h Handler[S, E]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = h
}

// Resolve looks up the handler for an intent's runtime type, falling back
// to the default handler when no direct binding exists.
func (r *Registry[S, E]) Resolve(it types.Intent) (Handler[S, E], Resolution) {
	t := reflect.TypeOf(it)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if t != nil {
		if h, ok := r.handlers[t]; ok {
			return h, ResolvedDirect
		}
	}
	if r.def != nil {
		return r.def, ResolvedDefault
	}
	return nil, ResolvedNone
}

// Len returns the number of direct bindings.
func (r *Registry[S, E]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// HasDefault reports whether a fallback handler is installed.
func (r *Registry[S, E]) HasDefault() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def != nil
}

// Types returns the names of all directly bound intent types, sorted.
func (r *Registry[S, E]) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		names = append(names, t.String())
	}
	sort.Strings(names)
	return names
}
