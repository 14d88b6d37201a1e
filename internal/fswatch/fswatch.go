// Package fswatch implements the storage collaborator against the local
// filesystem: metadata queries via stat and a change notification stream
// via fsnotify. Watches are per directory and reference counted, since
// editors and external tools replace files atomically (temp file plus
// rename), which breaks watches on individual files.
package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"nbwatchd/internal/host"
	"nbwatchd/internal/logging"
)

// Watcher is a filesystem-backed host.Storage.
type Watcher struct {
	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	dirs   map[string]int // watched directory -> tracked document count
	closed bool

	changes chan host.ChangeEvent
	log     *logging.Logger
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a filesystem watcher and starts its notification loop.
func New(log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:     fsw,
		dirs:    make(map[string]int),
		changes: make(chan host.ChangeEvent, 64),
		log:     log,
		done:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Track starts watching the directory containing path. Call once per
// opened document; watches are shared between documents in one directory.
func (w *Watcher) Track(path string) error {
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return host.ErrClosed
	}
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	return nil
}

// Untrack releases the directory watch taken by Track.
func (w *Watcher) Untrack(path string) {
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.dirs[dir] == 0 {
		return
	}
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		if err := w.fsw.Remove(dir); err != nil {
			w.log.Debug("remove directory watch failed", "dir", dir, "error", err)
		}
	}
}

// Metadata implements host.Storage.
func (w *Watcher) Metadata(_ context.Context, path string) (host.Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return host.Metadata{}, fmt.Errorf("stat %s: %w", path, host.ErrNotFound)
		}
		return host.Metadata{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return host.Metadata{LastModified: info.ModTime()}, nil
}

// Changes implements host.Storage.
func (w *Watcher) Changes() <-chan host.ChangeEvent {
	return w.changes
}

// Close stops the notification loop and releases all watches. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	close(w.changes)
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			var typ host.ChangeType
			switch {
			case ev.Op&fsnotify.Write != 0:
				typ = host.ChangeSave
			case ev.Op&fsnotify.Create != 0:
				typ = host.ChangeCreate
			case ev.Op&fsnotify.Rename != 0:
				typ = host.ChangeRename
			default:
				// Remove/Chmod carry no new content to reconcile.
				continue
			}

			select {
			case w.changes <- host.ChangeEvent{Type: typ, Path: ev.Name}:
			case <-w.done:
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("filesystem watcher error", "error", err)
		}
	}
}
