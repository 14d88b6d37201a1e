package reconcile

import (
	"sync"
	"time"
)

// DefaultRefreshDelay is the debounce delay before a scheduled reload fires.
const DefaultRefreshDelay = 500 * time.Millisecond

// Scheduler coalesces rapid successive reload decisions for one path into a
// single reload call. At most one timer is pending per path; scheduling a
// path that already has a pending timer restarts the delay. External tools
// often write a notebook in several bursts, and reloading on every burst
// would thrash the editor view and can race a still-in-progress write.
type Scheduler struct {
	mu       sync.Mutex
	pending  map[string]*time.Timer
	delay    func() time.Duration
	reload   func(path string)
	disposed bool
}

// NewScheduler creates a scheduler. delay is read at each Schedule call so
// settings changes apply to subsequently scheduled reloads; reload performs
// the actual side effect and runs on the timer goroutine.
func NewScheduler(delay func() time.Duration, reload func(path string)) *Scheduler {
	return &Scheduler{
		pending: make(map[string]*time.Timer),
		delay:   delay,
		reload:  reload,
	}
}

// Schedule arms (or re-arms) the reload timer for path.
func (s *Scheduler) Schedule(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	if t, ok := s.pending[path]; ok {
		t.Stop()
	}

	d := s.delay()
	if d <= 0 {
		d = DefaultRefreshDelay
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		// A re-arm can land after this timer fired but before the
		// callback ran; Stop reports false then and the stale callback
		// must not steal the new timer's entry or reload early.
		if s.disposed || s.pending[path] != t {
			s.mu.Unlock()
			return
		}
		delete(s.pending, path)
		s.mu.Unlock()

		s.reload(path)
	})
	s.pending[path] = t
}

// Cancel stops any pending timer for path. It reports whether a timer was
// pending.
func (s *Scheduler) Cancel(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.pending[path]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.pending, path)
	return true
}

// Dispose cancels every pending timer and rejects all further scheduling.
// Safe to call more than once.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disposed = true
	for path, t := range s.pending {
		t.Stop()
		delete(s.pending, path)
	}
}

// Pending reports whether path has a reload timer armed.
func (s *Scheduler) Pending(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[path]
	return ok
}

// PendingCount returns the number of armed reload timers.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
