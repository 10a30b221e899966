// Package codeloc implements a process-wide code-location registry: an
// append-only, monotonic id allocator mapping an integer id back to a
// source location, shared across every invocation and every managed
// strategy instance within a process.
//
// This is modeled as a single concurrency-safe resource, created at first
// use and never destroyed within a process; tests must not depend on ids
// being stable across processes.
package codeloc

import (
	"fmt"
	"sync"
)

// Location describes a single instrumented code site.
type Location struct {
	File     string
	Line     int
	Function string
}

func (l Location) String() string {
	if l.Function == "" {
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
	return fmt.Sprintf("%s:%d (%s)", l.File, l.Line, l.Function)
}

// Registry is a concurrency-safe, append-only id allocator.
type Registry struct {
	mu   sync.Mutex
	locs []Location
	ids  map[Location]int
}

// global is the process-wide registry consumed by the managed strategy and
// the trace renderer; callers may also construct private registries for
// tests.
var global = NewRegistry()

// Global returns the process-wide registry.
func Global() *Registry { return global }

// NewRegistry constructs an empty, independent Registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[Location]int)}
}

// Register returns the stable id for loc, allocating a new one if loc has
// not been seen before by this registry. Ids are monotonically increasing
// starting at 0, in first-registration order.
func (r *Registry) Register(loc Location) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[loc]; ok {
		return id
	}
	id := len(r.locs)
	r.locs = append(r.locs, loc)
	r.ids[loc] = id
	return id
}

// Lookup returns the Location for id, and whether it was found.
func (r *Registry) Lookup(id int) (Location, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.locs) {
		return Location{}, false
	}
	return r.locs[id], true
}

// Len returns the number of registered locations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locs)
}
