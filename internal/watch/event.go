package watch

import (
	"context"
	"sync"

	"nbwatchd/internal/host"
	"nbwatchd/internal/logging"
	"nbwatchd/internal/track"
)

// EventWatcher consumes the storage change stream and emits a Signal for
// every save-like notification hitting an open tracked document. Malformed
// or irrelevant notifications are dropped with a debug log; a metadata
// failure skips the event and leaves it for the poll watcher to catch up.
type EventWatcher struct {
	storage    host.Storage
	registry   *track.Registry
	extensions func() []string
	out        chan<- Signal
	log        *logging.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewEventWatcher creates an event watcher. extensions is read per event
// so settings changes apply immediately.
func NewEventWatcher(storage host.Storage, registry *track.Registry, extensions func() []string, out chan<- Signal, log *logging.Logger) *EventWatcher {
	return &EventWatcher{
		storage:    storage,
		registry:   registry,
		extensions: extensions,
		out:        out,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Start begins consuming the change stream.
func (w *EventWatcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.loop(ctx)
	})
}

// Stop detaches from the change stream. Safe to call more than once and
// without a prior Start.
func (w *EventWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

func (w *EventWatcher) loop(ctx context.Context) {
	defer w.wg.Done()

	changes := w.storage.Changes()
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		}
	}
}

func (w *EventWatcher) handle(ctx context.Context, ev host.ChangeEvent) {
	switch ev.Type {
	case host.ChangeSave, host.ChangeCreate, host.ChangeRename:
	default:
		w.log.Debug("ignoring storage event", "type", ev.Type.String(), "path", ev.Path)
		return
	}
	if ev.Path == "" {
		w.log.Debug("ignoring storage event without path")
		return
	}
	if !matchesExtension(ev.Path, w.extensions()) {
		return
	}
	if _, ok := w.registry.Get(ev.Path); !ok {
		return
	}

	meta, err := w.storage.Metadata(ctx, ev.Path)
	if err != nil {
		// The poll cycle will pick the change up once the file settles.
		w.log.Debug("metadata query after storage event failed", "path", ev.Path, "error", err)
		return
	}

	sig := Signal{Path: ev.Path, ObservedAt: meta.LastModified, Source: SourceEvent}
	select {
	case w.out <- sig:
	case <-w.done:
	case <-ctx.Done():
	}
}
