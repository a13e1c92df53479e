package device

import (
	"maps"
	"sync"
)

// Edits accumulates configuration changes until they are flushed to the
// controller. The last value recorded for a field wins.
type Edits struct {
	mu     sync.Mutex
	values map[string]string
}

// Set records value for field, replacing any earlier value.
func (e *Edits) Set(field, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.values == nil {
		e.values = make(map[string]string)
	}
	e.values[field] = value
}

// Get returns the pending value for field.
func (e *Edits) Get(field string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[field]
	return v, ok
}

// Len returns the number of pending fields.
func (e *Edits) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.values)
}

// Snapshot returns a copy of the pending edits.
func (e *Edits) Snapshot() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.values))
	maps.Copy(out, e.values)
	return out
}

// Flush returns the pending edits and leaves the set empty.
func (e *Edits) Flush() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.values
	if out == nil {
		out = map[string]string{}
	}
	e.values = nil
	return out
}

// Reset discards all pending edits.
func (e *Edits) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values = nil
}
