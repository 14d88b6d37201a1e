// Package track maintains the per-path bookkeeping for open documents:
// the last storage timestamp observed, the last local save, and the dirty
// flag. All state for one path lives in a single record so the watchers,
// reconciler, and scheduler cannot drift apart.
package track

import (
	"sync"
	"time"
)

// Document is the tracked state of one open document.
type Document struct {
	Path string

	// LastObserved is the newest storage timestamp seen for this path.
	// It is monotonically non-decreasing for the lifetime of the entry.
	LastObserved time.Time

	// LastLocalSave is when the editor last reported saving this document.
	LastLocalSave time.Time

	// Dirty reports unsaved in-memory edits.
	Dirty bool
}

// Registry tracks open documents by path.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]*Document)}
}

// Open starts tracking path with the given initial storage timestamp.
// Reopening an already-tracked path refreshes the dirty flag but keeps the
// existing timestamps so monotonicity survives a rapid close/open.
func (r *Registry) Open(path string, modTime time.Time, dirty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.docs[path]; ok {
		d.Dirty = dirty
		if modTime.After(d.LastObserved) {
			d.LastObserved = modTime
		}
		return
	}
	r.docs[path] = &Document{
		Path:         path,
		LastObserved: modTime,
		Dirty:        dirty,
	}
}

// Close stops tracking path. Closing an unknown path is a no-op.
func (r *Registry) Close(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, path)
}

// Observe records a storage timestamp for path. It returns true only when
// the timestamp advanced past LastObserved; stale or out-of-order
// observations and unknown paths return false and change nothing.
func (r *Registry) Observe(path string, ts time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.docs[path]
	if !ok {
		return false
	}
	if !ts.After(d.LastObserved) {
		return false
	}
	d.LastObserved = ts
	return true
}

// NoteLocalSave records that the editor saved path at ts. A save also
// clears the dirty flag.
func (r *Registry) NoteLocalSave(path string, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.docs[path]
	if !ok {
		return
	}
	if ts.After(d.LastLocalSave) {
		d.LastLocalSave = ts
	}
	d.Dirty = false
}

// SetDirty updates the dirty flag for path.
func (r *Registry) SetDirty(path string, dirty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.docs[path]; ok {
		d.Dirty = dirty
	}
}

// Get returns a copy of the tracked state for path.
func (r *Registry) Get(path string) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.docs[path]
	if !ok {
		return Document{}, false
	}
	return *d, true
}

// Paths returns the currently tracked paths.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.docs))
	for p := range r.docs {
		paths = append(paths, p)
	}
	return paths
}

// Len returns the number of tracked documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}
