package core

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// MacroFunc extends the builder with a named, reusable chain of calls.
type MacroFunc func(b *Builder, args ...any) *Builder

// MacroRegistry holds the macros available to the builders of one
// connection. It is safe for concurrent use.
type MacroRegistry struct {
	mu     sync.RWMutex
	macros map[string]MacroFunc
}

// NewMacroRegistry returns an empty registry.
func NewMacroRegistry() *MacroRegistry {
	return &MacroRegistry{macros: make(map[string]MacroFunc)}
}

var builderType = reflect.TypeOf(&Builder{})

// Register adds a macro. Names must be unique and must not shadow a
// Builder method.
func (r *MacroRegistry) Register(name string, fn MacroFunc) error {
	if name == "" {
		return invalidArgument("macro name must not be empty")
	}
	if fn == nil {
		return invalidArgument("macro %q has a nil function", name)
	}
	if _, ok := builderType.MethodByName(name); ok {
		return invalidArgument("macro %q collides with a builder method", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.macros[name]; ok {
		return invalidArgument("macro %q is already registered", name)
	}
	r.macros[name] = fn
	return nil
}

// Has reports whether name is registered.
func (r *MacroRegistry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Get returns the macro registered under name.
func (r *MacroRegistry) Get(name string) (MacroFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.macros[name]
	return fn, ok
}

// Names lists the registered macros in sorted order.
func (r *MacroRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.macros))
	for n := range r.macros {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Macro applies the named macro to the builder. An unknown name is
// recorded as ErrMacroNotFound.
func (b *Builder) Macro(name string, args ...any) *Builder {
	if b.macros == nil {
		return b.setErr(fmt.Errorf("%w: %s", ErrMacroNotFound, name))
	}
	fn, ok := b.macros.Get(name)
	if !ok {
		return b.setErr(fmt.Errorf("%w: %s", ErrMacroNotFound, name))
	}
	if nb := fn(b, args...); nb != nil {
		return nb
	}
	return b
}
