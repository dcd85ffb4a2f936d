// Package registry holds verified converter pairs. The in-memory set is
// append-only: a converter is inserted once, after its roundtrip passes, and
// later generations for the same struct are rejected rather than silently
// replaced. Persistence goes through a bbolt store so verified work survives
// restarts.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one registered converter pair. Deps names the structs whose
// converters this entry's source delegates to; embedding an entry in a
// harness crate requires embedding its dependency closure too.
type Entry struct {
	StructName    string    `json:"struct_name"`
	IdiomaticType string    `json:"idiomatic_type"`
	Source        string    `json:"source"`
	SpecVersion   string    `json:"spec_version,omitempty"`
	Deps          []string  `json:"deps,omitempty"`
	Attempts      int       `json:"attempts"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// Registry is the concurrent converter set. Safe for use from the worker
// pool: reads take the shared lock, the single insert per struct takes the
// exclusive lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register inserts a verified converter. Inserting a second converter for
// the same struct is an error: corrections must come in as a new spec
// version through the pipeline, not as an in-place swap.
func (r *Registry) Register(e *Entry) error {
	if e.StructName == "" {
		return fmt.Errorf("registry: entry without struct name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.StructName]; exists {
		return fmt.Errorf("registry: converter for %q already registered", e.StructName)
	}
	if e.RegisteredAt.IsZero() {
		e.RegisteredAt = time.Now()
	}
	r.entries[e.StructName] = e
	return nil
}

// Lookup returns the entry for a struct name.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Has reports whether a converter pair exists for the struct. Satisfies the
// resolver contract used by cross-struct ref codegen.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered struct names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Closure expands the named structs to their full dependency closure,
// dependencies first, each name once. Names with no entry pass through so
// the caller's missing-dep handling still sees them.
func (r *Registry) Closure(names ...string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	seen := make(map[string]bool)
	var walk func(name string)
	walk = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if e, ok := r.entries[name]; ok {
			for _, dep := range e.Deps {
				walk(dep)
			}
		}
		out = append(out, name)
	}
	for _, name := range names {
		walk(name)
	}
	return out
}

// CombinedSource concatenates the sources of the named converters in the
// given order, skipping names with no entry. Harness crates embed the
// result ahead of the struct under test so delegated converters link.
func (r *Registry) CombinedSource(names ...string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	for _, name := range names {
		if e, ok := r.entries[name]; ok {
			b.WriteString(e.Source)
			b.WriteString("\n")
		}
	}
	return b.String()
}
