package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nbwatchd/internal/host"
	"nbwatchd/internal/logging"
	"nbwatchd/internal/track"
)

// fakeStorage is an in-memory host.Storage for watcher tests.
type fakeStorage struct {
	mu      sync.Mutex
	modTime map[string]time.Time
	errs    map[string]error
	changes chan host.ChangeEvent
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		modTime: make(map[string]time.Time),
		errs:    make(map[string]error),
		changes: make(chan host.ChangeEvent, 16),
	}
}

func (s *fakeStorage) set(path string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modTime[path] = ts
}

func (s *fakeStorage) fail(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[path] = err
}

func (s *fakeStorage) Metadata(_ context.Context, path string) (host.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.errs[path]; ok {
		return host.Metadata{}, err
	}
	ts, ok := s.modTime[path]
	if !ok {
		return host.Metadata{}, fmt.Errorf("stat %s: %w", path, host.ErrNotFound)
	}
	return host.Metadata{LastModified: ts}, nil
}

func (s *fakeStorage) Changes() <-chan host.ChangeEvent {
	return s.changes
}

func testLogger() *logging.Logger {
	log, _ := logging.New(&logging.Config{
		Level:  logging.LevelNone,
		Output: "none",
	})
	return log
}

func ipynbOnly() []string { return []string{".ipynb"} }

func TestMatchesExtension(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/nb/a.ipynb", true},
		{"/nb/a.IPYNB", true},
		{"/nb/a.txt", false},
		{"/nb/noext", false},
		{"/nb/.ipynb", true},
	}
	for _, tc := range cases {
		if got := matchesExtension(tc.path, ipynbOnly()); got != tc.want {
			t.Errorf("matchesExtension(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestPollerCycleEmitsAdvancedTimestamps(t *testing.T) {
	storage := newFakeStorage()
	registry := track.NewRegistry()
	out := make(chan Signal, 16)

	base := time.Now()
	registry.Open("/nb/a.ipynb", base, false)
	registry.Open("/nb/b.ipynb", base, false)

	storage.set("/nb/a.ipynb", base.Add(5*time.Second)) // advanced
	storage.set("/nb/b.ipynb", base)                    // unchanged

	p := NewPoller(storage, registry, func() time.Duration { return time.Hour }, out, testLogger())
	p.Cycle(context.Background())

	select {
	case sig := <-out:
		if sig.Path != "/nb/a.ipynb" {
			t.Errorf("unexpected signal path %s", sig.Path)
		}
		if sig.Source != SourcePoll {
			t.Errorf("source = %v, want poll", sig.Source)
		}
		if !sig.ObservedAt.Equal(base.Add(5 * time.Second)) {
			t.Errorf("observed at %v", sig.ObservedAt)
		}
	default:
		t.Fatal("expected a signal for the advanced document")
	}

	select {
	case sig := <-out:
		t.Fatalf("unexpected extra signal for %s", sig.Path)
	default:
	}
}

// A failing document is skipped; the rest of the cycle still runs.
func TestPollerCycleSurvivesErrors(t *testing.T) {
	storage := newFakeStorage()
	registry := track.NewRegistry()
	out := make(chan Signal, 16)

	base := time.Now()
	registry.Open("/nb/broken.ipynb", base, false)
	registry.Open("/nb/missing.ipynb", base, false)
	registry.Open("/nb/ok.ipynb", base, false)

	storage.fail("/nb/broken.ipynb", errors.New("i/o error"))
	// missing.ipynb has no entry: ErrNotFound.
	storage.set("/nb/ok.ipynb", base.Add(time.Second))

	p := NewPoller(storage, registry, func() time.Duration { return time.Hour }, out, testLogger())
	p.Cycle(context.Background())

	select {
	case sig := <-out:
		if sig.Path != "/nb/ok.ipynb" {
			t.Errorf("unexpected signal path %s", sig.Path)
		}
	default:
		t.Fatal("healthy document should still be polled")
	}
}

func TestPollerKickRunsImmediately(t *testing.T) {
	storage := newFakeStorage()
	registry := track.NewRegistry()
	out := make(chan Signal, 16)

	base := time.Now()
	registry.Open("/nb/a.ipynb", base, false)
	storage.set("/nb/a.ipynb", base.Add(time.Second))

	p := NewPoller(storage, registry, func() time.Duration { return time.Hour }, out, testLogger())
	p.Start(context.Background())
	defer p.Stop()

	p.Kick()

	select {
	case sig := <-out:
		if sig.Source != SourcePoll {
			t.Errorf("source = %v", sig.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("kick did not trigger a cycle")
	}
}

func TestEventWatcherEmitsForTrackedSaves(t *testing.T) {
	storage := newFakeStorage()
	registry := track.NewRegistry()
	out := make(chan Signal, 16)

	base := time.Now()
	registry.Open("/nb/a.ipynb", base, false)
	storage.set("/nb/a.ipynb", base.Add(time.Second))

	w := NewEventWatcher(storage, registry, ipynbOnly, out, testLogger())
	w.Start(context.Background())
	defer w.Stop()

	storage.changes <- host.ChangeEvent{Type: host.ChangeSave, Path: "/nb/a.ipynb"}

	select {
	case sig := <-out:
		if sig.Path != "/nb/a.ipynb" || sig.Source != SourceEvent {
			t.Errorf("unexpected signal %+v", sig)
		}
		if !sig.ObservedAt.Equal(base.Add(time.Second)) {
			t.Errorf("observed at %v", sig.ObservedAt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no signal emitted")
	}
}

// Create and rename events count as changes: external tools replace
// notebooks atomically via temp file plus rename.
func TestEventWatcherHandlesAtomicReplace(t *testing.T) {
	storage := newFakeStorage()
	registry := track.NewRegistry()
	out := make(chan Signal, 16)

	base := time.Now()
	registry.Open("/nb/a.ipynb", base, false)
	storage.set("/nb/a.ipynb", base.Add(time.Second))

	w := NewEventWatcher(storage, registry, ipynbOnly, out, testLogger())
	w.Start(context.Background())
	defer w.Stop()

	storage.changes <- host.ChangeEvent{Type: host.ChangeCreate, Path: "/nb/a.ipynb"}

	select {
	case sig := <-out:
		if sig.Source != SourceEvent {
			t.Errorf("source = %v", sig.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("create event was not treated as a change")
	}
}

func TestEventWatcherFiltersIrrelevantEvents(t *testing.T) {
	storage := newFakeStorage()
	registry := track.NewRegistry()
	out := make(chan Signal, 16)

	base := time.Now()
	registry.Open("/nb/a.ipynb", base, false)
	storage.set("/nb/a.ipynb", base.Add(time.Second))
	storage.set("/nb/other.txt", base.Add(time.Second))

	w := NewEventWatcher(storage, registry, ipynbOnly, out, testLogger())
	w.Start(context.Background())
	defer w.Stop()

	// Wrong extension, untracked path, empty path, irrelevant type.
	storage.changes <- host.ChangeEvent{Type: host.ChangeSave, Path: "/nb/other.txt"}
	storage.changes <- host.ChangeEvent{Type: host.ChangeSave, Path: "/nb/untracked.ipynb"}
	storage.changes <- host.ChangeEvent{Type: host.ChangeSave, Path: ""}
	storage.changes <- host.ChangeEvent{Type: host.ChangeOther, Path: "/nb/a.ipynb"}

	select {
	case sig := <-out:
		t.Fatalf("unexpected signal %+v", sig)
	case <-time.After(200 * time.Millisecond):
	}
}

// A metadata failure right after the event drops the signal; the poll
// pass catches up later.
func TestEventWatcherMetadataFailureDefersToPoll(t *testing.T) {
	storage := newFakeStorage()
	registry := track.NewRegistry()
	out := make(chan Signal, 16)

	base := time.Now()
	registry.Open("/nb/a.ipynb", base, false)
	storage.fail("/nb/a.ipynb", errors.New("file busy"))

	w := NewEventWatcher(storage, registry, ipynbOnly, out, testLogger())
	w.Start(context.Background())
	defer w.Stop()

	storage.changes <- host.ChangeEvent{Type: host.ChangeSave, Path: "/nb/a.ipynb"}

	select {
	case sig := <-out:
		t.Fatalf("unexpected signal %+v", sig)
	case <-time.After(200 * time.Millisecond):
	}

	// The write settles; a poll cycle picks it up.
	storage.mu.Lock()
	delete(storage.errs, "/nb/a.ipynb")
	storage.mu.Unlock()
	storage.set("/nb/a.ipynb", base.Add(time.Second))

	p := NewPoller(storage, registry, func() time.Duration { return time.Hour }, out, testLogger())
	p.Cycle(context.Background())

	select {
	case sig := <-out:
		if sig.Source != SourcePoll {
			t.Errorf("source = %v, want poll", sig.Source)
		}
	default:
		t.Fatal("poll should have caught the settled write")
	}
}
