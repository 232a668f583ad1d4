package serial

import (
	"fmt"
	"slices"
	"strings"
)

// Serializable is implemented by every type that can be encoded as a
// constructor envelope. Types enumerate their fields explicitly.
type Serializable interface {
	// TypePath is the namespace path plus type name identifying the type.
	TypePath() []string
	// ConstructorArgs are the arguments needed to rebuild default state.
	ConstructorArgs() map[string]any
	// Fields is the full current-state snapshot.
	Fields() map[string]any
}

// FieldSetter receives obj fields after construction during decode.
type FieldSetter interface {
	SetField(name string, value any) error
}

// Finalizer is implemented by decode-time values that validate their state
// or hand back a different value (such as an immutable result) once every
// obj field has been applied.
type Finalizer interface {
	Finalize() (any, error)
}

// Constructor builds a fresh value from decoded constructor arguments.
type Constructor func(kwargs map[string]any) (any, error)

// Registration binds a type path to its constructor.
type Registration struct {
	Path []string
	New  Constructor
}

// Registry maps type paths to constructors. It is assembled once and is
// read-only afterwards, so it is safe for concurrent lookups.
type Registry struct {
	entries map[string]Registration
	order   []string
}

// NewRegistry builds a registry from groups of registrations, typically one
// group per package. A path registered twice is an error.
func NewRegistry(groups ...[]Registration) (*Registry, error) {
	r := &Registry{entries: make(map[string]Registration)}
	for _, group := range groups {
		for _, reg := range group {
			if len(reg.Path) == 0 {
				return nil, fmt.Errorf("serial: registration with empty type path")
			}
			if reg.New == nil {
				return nil, fmt.Errorf("serial: %s has no constructor", pathKey(reg.Path))
			}
			key := pathKey(reg.Path)
			if _, exists := r.entries[key]; exists {
				return nil, fmt.Errorf("serial: %s registered twice", key)
			}
			r.entries[key] = Registration{Path: slices.Clone(reg.Path), New: reg.New}
			r.order = append(r.order, key)
		}
	}
	return r, nil
}

// Lookup returns the constructor registered for path.
func (r *Registry) Lookup(path []string) (Constructor, bool) {
	if r == nil {
		return nil, false
	}
	reg, ok := r.entries[pathKey(path)]
	return reg.New, ok
}

// Has reports whether path is registered.
func (r *Registry) Has(path []string) bool {
	_, ok := r.Lookup(path)
	return ok
}

// Paths returns every registered path in registration order.
func (r *Registry) Paths() [][]string {
	out := make([][]string, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, slices.Clone(r.entries[key].Path))
	}
	return out
}

func pathKey(path []string) string {
	return strings.Join(path, ".")
}
