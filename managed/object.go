package managed

import "sync"

// LocalObjectTracker implements local-object tracking: an
// object created during the current invocation is "local" until it escapes
// (is stored into a field reachable from outside the invocation, returned
// from the tested method, or passed to another thread); switch-points that
// only touch local objects need not be treated as racy, since no other
// thread can yet observe them.
type LocalObjectTracker struct {
	mu      sync.Mutex
	local   map[any]bool
	escaped map[any]bool
}

// NewLocalObjectTracker returns an empty tracker.
func NewLocalObjectTracker() *LocalObjectTracker {
	return &LocalObjectTracker{
		local:   make(map[any]bool),
		escaped: make(map[any]bool),
	}
}

// Track registers obj as local, per OnNewObjectCreation.
func (t *LocalObjectTracker) Track(obj any) {
	if !isTrackable(obj) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.escaped[obj] {
		t.local[obj] = true
	}
}

// Escape marks obj as having left local scope. Values attached to obj by an
// earlier AddDependency call stay local; they escape only when AddDependency
// is called with obj after this point.
func (t *LocalObjectTracker) Escape(obj any) {
	if !isTrackable(obj) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.local, obj)
	t.escaped[obj] = true
}

// AddDependency records that receiver now holds a reference to value; if
// receiver has already escaped, value escapes transitively (
// "addDependency").
func (t *LocalObjectTracker) AddDependency(receiver, value any) {
	if !isTrackable(receiver) || !isTrackable(value) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.escaped[receiver] {
		delete(t.local, value)
		t.escaped[value] = true
	}
}

// IsLocal reports whether obj is still believed to be invocation-local.
func (t *LocalObjectTracker) IsLocal(obj any) bool {
	if !isTrackable(obj) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.local[obj]
}

func isTrackable(obj any) bool {
	if obj == nil {
		return false
	}
	switch obj.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		// Values, not references: cannot meaningfully "escape" and are not
		// valid map keys for identity purposes beyond their own value.
		return false
	}
	return true
}
