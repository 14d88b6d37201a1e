package track

import (
	"testing"
	"time"
)

func TestOpenAndGet(t *testing.T) {
	r := NewRegistry()
	mod := time.Now()

	r.Open("/nb/a.ipynb", mod, false)

	d, ok := r.Get("/nb/a.ipynb")
	if !ok {
		t.Fatal("expected document to be tracked")
	}
	if !d.LastObserved.Equal(mod) {
		t.Errorf("expected LastObserved %v, got %v", mod, d.LastObserved)
	}
	if d.Dirty {
		t.Error("expected clean document")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 tracked document, got %d", r.Len())
	}
}

func TestCloseUntracksPath(t *testing.T) {
	r := NewRegistry()
	r.Open("/nb/a.ipynb", time.Now(), false)

	r.Close("/nb/a.ipynb")

	if _, ok := r.Get("/nb/a.ipynb"); ok {
		t.Error("expected document to be gone after Close")
	}
	// Closing again must not panic or change anything.
	r.Close("/nb/a.ipynb")
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestObserveAdvancesMonotonically(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	r.Open("/nb/a.ipynb", base, false)

	if !r.Observe("/nb/a.ipynb", base.Add(time.Second)) {
		t.Error("newer timestamp should advance")
	}
	if r.Observe("/nb/a.ipynb", base.Add(time.Second)) {
		t.Error("equal timestamp must not advance")
	}
	if r.Observe("/nb/a.ipynb", base.Add(500*time.Millisecond)) {
		t.Error("older timestamp must not advance")
	}

	d, _ := r.Get("/nb/a.ipynb")
	if !d.LastObserved.Equal(base.Add(time.Second)) {
		t.Errorf("LastObserved regressed: %v", d.LastObserved)
	}
}

// A poll result and an event for the same write can arrive in either
// order; whichever lands second must be rejected as stale.
func TestObserveUnorderedSources(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	r.Open("/nb/a.ipynb", base, false)

	writeTime := base.Add(3 * time.Second)

	if !r.Observe("/nb/a.ipynb", writeTime) {
		t.Fatal("first observation should advance")
	}
	// Same write surfacing through the other source.
	if r.Observe("/nb/a.ipynb", writeTime) {
		t.Error("duplicate observation from second source should be stale")
	}
}

func TestObserveUnknownPath(t *testing.T) {
	r := NewRegistry()
	if r.Observe("/nb/unknown.ipynb", time.Now()) {
		t.Error("unknown path must not be observable")
	}
}

func TestNoteLocalSaveClearsDirty(t *testing.T) {
	r := NewRegistry()
	r.Open("/nb/a.ipynb", time.Now(), true)

	saveTime := time.Now()
	r.NoteLocalSave("/nb/a.ipynb", saveTime)

	d, _ := r.Get("/nb/a.ipynb")
	if d.Dirty {
		t.Error("save should clear the dirty flag")
	}
	if !d.LastLocalSave.Equal(saveTime) {
		t.Errorf("expected LastLocalSave %v, got %v", saveTime, d.LastLocalSave)
	}
}

func TestNoteLocalSaveKeepsNewestTimestamp(t *testing.T) {
	r := NewRegistry()
	r.Open("/nb/a.ipynb", time.Now(), false)

	newer := time.Now()
	older := newer.Add(-time.Second)
	r.NoteLocalSave("/nb/a.ipynb", newer)
	r.NoteLocalSave("/nb/a.ipynb", older)

	d, _ := r.Get("/nb/a.ipynb")
	if !d.LastLocalSave.Equal(newer) {
		t.Errorf("LastLocalSave regressed to %v", d.LastLocalSave)
	}
}

func TestReopenKeepsTimestamps(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	r.Open("/nb/a.ipynb", base, false)
	r.Observe("/nb/a.ipynb", base.Add(2*time.Second))

	// Reopen with an older mod time, as after a quick close/open where the
	// stat raced a slow write.
	r.Open("/nb/a.ipynb", base, true)

	d, _ := r.Get("/nb/a.ipynb")
	if !d.LastObserved.Equal(base.Add(2 * time.Second)) {
		t.Errorf("reopen must not regress LastObserved, got %v", d.LastObserved)
	}
	if !d.Dirty {
		t.Error("reopen should refresh the dirty flag")
	}
}

func TestSetDirty(t *testing.T) {
	r := NewRegistry()
	r.Open("/nb/a.ipynb", time.Now(), false)

	r.SetDirty("/nb/a.ipynb", true)
	d, _ := r.Get("/nb/a.ipynb")
	if !d.Dirty {
		t.Error("expected dirty after SetDirty(true)")
	}

	r.SetDirty("/nb/a.ipynb", false)
	d, _ = r.Get("/nb/a.ipynb")
	if d.Dirty {
		t.Error("expected clean after SetDirty(false)")
	}
}

func TestPaths(t *testing.T) {
	r := NewRegistry()
	r.Open("/nb/a.ipynb", time.Now(), false)
	r.Open("/nb/b.ipynb", time.Now(), false)

	paths := r.Paths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	seen := map[string]bool{}
	for _, p := range paths {
		seen[p] = true
	}
	if !seen["/nb/a.ipynb"] || !seen["/nb/b.ipynb"] {
		t.Errorf("unexpected paths: %v", paths)
	}
}
