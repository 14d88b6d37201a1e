// Package monitor runs the reconciliation engine: it seeds and maintains
// the document registry, consumes change signals from both watchers,
// classifies them, applies the conflict policy, and owns the debounced
// reload and prompt flows.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nbwatchd/internal/config"
	"nbwatchd/internal/host"
	"nbwatchd/internal/journal"
	"nbwatchd/internal/logging"
	"nbwatchd/internal/reconcile"
	"nbwatchd/internal/track"
	"nbwatchd/internal/watch"
)

// Prompt labels shown for a dirty document with an external change.
const (
	ChoiceKeepLocal   = "Keep My Version"
	ChoiceUseExternal = "Reload from Disk"
	ChoiceCancel      = "Dismiss"
)

// Presentation lock key prefixes: prompts and passive notices are gated
// independently per path.
const (
	promptKeyPrefix = "prompt:"
	noticeKeyPrefix = "notice:"
)

// TrackHook is notified when documents enter or leave tracking, so the
// storage collaborator can follow with directory watches. Both methods
// must tolerate repeated calls.
type TrackHook interface {
	Track(path string) error
	Untrack(path string)
}

// Options configure a Monitor. Editor, Storage, and Log are required;
// Notifier, Journal, and TrackHook are optional.
type Options struct {
	Config   *config.Config
	Editor   host.Editor
	Storage  host.Storage
	Notifier host.Notifier
	Journal  *journal.Journal
	Hook     TrackHook
	Log      *logging.Logger
}

// Status is a point-in-time snapshot for the status surface.
type Status struct {
	Running        bool `json:"running"`
	TrackedCount   int  `json:"tracked_count"`
	PendingReloads int  `json:"pending_reloads"`
}

// Monitor is the reconciliation engine.
type Monitor struct {
	mu  sync.RWMutex
	cfg *config.Config

	editor   host.Editor
	storage  host.Storage
	notifier host.Notifier
	jour     *journal.Journal
	hook     TrackHook
	log      *logging.Logger

	registry *track.Registry
	sched    *reconcile.Scheduler
	gate     *reconcile.Gate

	signals chan watch.Signal
	events  *watch.EventWatcher
	poller  *watch.Poller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started  bool
	disposed bool
}

// New creates a Monitor. Call Initialize to start it.
func New(opts Options) *Monitor {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Notifier == nil {
		opts.Notifier = host.NotifierFunc(func(string, string) {})
	}
	if opts.Log == nil {
		opts.Log = logging.Default()
	}

	m := &Monitor{
		cfg:      opts.Config,
		editor:   opts.Editor,
		storage:  opts.Storage,
		notifier: opts.Notifier,
		jour:     opts.Journal,
		hook:     opts.Hook,
		log:      opts.Log,
		registry: track.NewRegistry(),
		gate:     reconcile.NewGate(),
		signals:  make(chan watch.Signal, 64),
	}

	m.sched = reconcile.NewScheduler(
		func() time.Duration { return m.config().Watch.RefreshDelay() },
		m.performReload,
	)
	m.events = watch.NewEventWatcher(m.storage, m.registry,
		func() []string { return m.config().Watch.Extensions },
		m.signals, m.log.WithComponent("watch.event"))
	m.poller = watch.NewPoller(m.storage, m.registry,
		func() time.Duration { return m.config().Watch.PollInterval() },
		m.signals, m.log.WithComponent("watch.poll"))

	return m
}

func (m *Monitor) config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// UpdateConfig swaps the active configuration. The new values apply to
// subsequently scheduled operations; already-armed timers keep their delay
// until the next debounce re-arms them.
func (m *Monitor) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.log.Info("configuration updated",
		"enabled", cfg.Watch.Enabled,
		"refresh_delay_ms", cfg.Watch.RefreshDelayMs,
		"resolution", cfg.Conflict.Resolution)
}

// Initialize wires the watchers and seeds the registry from the editor's
// currently open documents. It is a no-op when watching is disabled (no
// loops or timers are started) and when already started or disposed.
func (m *Monitor) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.disposed {
		m.mu.Unlock()
		return nil
	}
	cfg := m.cfg
	if !cfg.Watch.Enabled {
		m.mu.Unlock()
		m.log.Info("watching disabled, monitor not started")
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.seed(m.ctx)

	m.wg.Add(1)
	go m.run()
	m.events.Start(m.ctx)
	m.poller.Start(m.ctx)

	m.log.Info("monitor started",
		"tracked", m.registry.Len(),
		"poll_interval", cfg.Watch.PollInterval().String())
	return nil
}

// seed registers every currently open tracked document with its current
// storage timestamp.
func (m *Monitor) seed(ctx context.Context) {
	docs, err := m.editor.ListOpenDocuments(ctx)
	if err != nil {
		m.log.Warn("listing open documents failed, starting empty", "error", err)
		return
	}
	for _, doc := range docs {
		m.DocumentOpened(ctx, doc.Path, doc.Dirty)
	}
}

func (m *Monitor) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case sig := <-m.signals:
			m.handleSignal(sig)
		}
	}
}

// handleSignal classifies one change signal and routes it through the
// conflict policy.
func (m *Monitor) handleSignal(sig watch.Signal) {
	cfg := m.config()
	if !cfg.Watch.Enabled {
		m.log.Debug("signal dropped, watching disabled", "path", sig.Path)
		return
	}

	// Monotonic check: stale and duplicate signals stop here, which is
	// what lets unordered poll/event interleavings converge.
	if !m.registry.Observe(sig.Path, sig.ObservedAt) {
		m.log.Debug("stale signal dropped",
			"path", sig.Path, "source", sig.Source.String())
		return
	}

	entry, ok := m.registry.Get(sig.Path)
	if !ok {
		return
	}

	class := reconcile.Classify(sig.ObservedAt, entry.LastLocalSave, cfg.Watch.EchoWindow())
	if class == reconcile.ClassEcho {
		m.log.Debug("save echo absorbed", "path", sig.Path, "source", sig.Source.String())
		m.journal(sig, class, "none", "", "")
		return
	}

	action := reconcile.Decide(entry.Dirty, reconcile.Resolution(cfg.Conflict.Resolution))
	m.log.Info("external change detected",
		"path", sig.Path,
		"source", sig.Source.String(),
		"dirty", entry.Dirty,
		"action", action.String())

	switch action {
	case reconcile.ActionReload:
		m.journal(sig, class, action.String(), "scheduled", "")
		m.sched.Schedule(sig.Path)

	case reconcile.ActionIgnore:
		m.journal(sig, class, action.String(), "kept-local", "")
		if cfg.Conflict.ShowNotifications {
			m.notifyKeptLocal(sig.Path)
		}

	case reconcile.ActionPrompt:
		key := promptKeyPrefix + sig.Path
		if !m.gate.TryAcquire(key) {
			// An open prompt already covers this path; its resolution
			// reads current storage content, so this signal is superseded.
			m.log.Debug("prompt already open, dropping signal", "path", sig.Path)
			m.journal(sig, class, action.String(), "dropped", "prompt already open")
			return
		}
		m.journal(sig, class, action.String(), "shown", "")
		m.wg.Add(1)
		go m.promptAndResolve(sig.Path, key)
	}
}

// notifyKeptLocal surfaces a passive notice, gated to one visible notice
// per path.
func (m *Monitor) notifyKeptLocal(path string) {
	key := noticeKeyPrefix + path
	if !m.gate.TryAcquire(key) {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.gate.Release(key)
		m.notifier.Notify("Notebook changed on disk",
			fmt.Sprintf("%s was modified outside the editor; your unsaved changes were kept.", filepath.Base(path)))
	}()
}

// promptAndResolve shows the three-way conflict prompt and applies the
// user's choice. The gate key is released on every exit path.
func (m *Monitor) promptAndResolve(path, key string) {
	defer m.wg.Done()
	defer m.gate.Release(key)

	title := "Notebook changed on disk"
	body := fmt.Sprintf("%s was modified outside the editor and you have unsaved changes. Reloading discards them.", filepath.Base(path))
	choices := []string{ChoiceKeepLocal, ChoiceUseExternal, ChoiceCancel}

	choice, err := m.editor.Prompt(m.ctx, title, body, choices)
	if err != nil {
		m.log.Debug("prompt dismissed", "path", path, "error", err)
		return
	}

	m.journalOutcome(path, "prompt", choice, "")

	if choice != ChoiceUseExternal {
		return
	}
	// The document may have closed while the prompt was open.
	if _, ok := m.registry.Get(path); !ok {
		m.log.Debug("document closed during prompt", "path", path)
		return
	}
	m.sched.Schedule(path)
}

// performReload runs on the scheduler's timer goroutine when a debounced
// reload fires.
func (m *Monitor) performReload(path string) {
	if _, ok := m.registry.Get(path); !ok {
		m.log.Debug("document closed before reload fired", "path", path)
		return
	}

	err := m.editor.Reload(m.ctx, path)
	if err != nil {
		if errors.Is(err, host.ErrNotFound) {
			m.log.Debug("document gone at reload time", "path", path)
			return
		}
		// LastObserved already advanced, so a later unrelated change is
		// still detected; no automatic retry.
		m.log.Error("reload failed", "path", path, "error", err)
		m.journalOutcome(path, "reload", "error", err.Error())
		if m.config().Conflict.ShowNotifications {
			m.notifier.Notify("Reload failed",
				fmt.Sprintf("%s could not be reloaded: %v", filepath.Base(path), err))
		}
		return
	}

	m.log.Info("document reloaded from storage", "path", path)
	m.journalOutcome(path, "reload", "ok", "")
}

// DocumentOpened starts tracking a document the editor reports open. Paths
// outside the tracked extensions are ignored; the host declares documents
// explicitly, no structural sniffing happens here.
func (m *Monitor) DocumentOpened(ctx context.Context, path string, dirty bool) {
	cfg := m.config()
	found := false
	for _, ext := range cfg.Watch.Extensions {
		if strings.EqualFold(filepath.Ext(path), ext) {
			found = true
			break
		}
	}
	if !found {
		return
	}

	var modTime time.Time
	meta, err := m.storage.Metadata(ctx, path)
	if err != nil {
		m.log.Debug("seeding metadata query failed", "path", path, "error", err)
	} else {
		modTime = meta.LastModified
	}

	m.registry.Open(path, modTime, dirty)
	if m.hook != nil {
		if err := m.hook.Track(path); err != nil {
			m.log.Warn("tracking hook failed", "path", path, "error", err)
		}
	}
	m.log.Debug("document tracked", "path", path, "dirty", dirty)
}

// DocumentClosed stops tracking a document: its pending reload timer is
// cancelled and its presentation locks released.
func (m *Monitor) DocumentClosed(path string) {
	m.registry.Close(path)
	m.sched.Cancel(path)
	m.gate.Release(promptKeyPrefix + path)
	m.gate.Release(noticeKeyPrefix + path)
	if m.hook != nil {
		m.hook.Untrack(path)
	}
	m.log.Debug("document untracked", "path", path)
}

// DocumentSaved records a local save, arming the echo window. A zero time
// means "now".
func (m *Monitor) DocumentSaved(path string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	m.registry.NoteLocalSave(path, at)
}

// SetDirty updates the dirty flag the conflict policy reads.
func (m *Monitor) SetDirty(path string, dirty bool) {
	m.registry.SetDirty(path, dirty)
}

// CheckNow forces an immediate poll cycle.
func (m *Monitor) CheckNow() {
	m.poller.Kick()
}

// Status returns a snapshot for the status surface.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	running := m.started && !m.disposed
	m.mu.RUnlock()

	return Status{
		Running:        running,
		TrackedCount:   m.registry.Len(),
		PendingReloads: m.sched.PendingCount(),
	}
}

// Dispose shuts the engine down: pending reload timers are cancelled, the
// poll loop and event subscription stop, and presentation locks are
// released. Idempotent, never fails, and safe to call when Initialize
// never started anything. Cleanup steps are independent; one failing
// cannot block the rest.
func (m *Monitor) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	started := m.started
	m.mu.Unlock()

	m.sched.Dispose()
	if started {
		if m.cancel != nil {
			m.cancel()
		}
		m.events.Stop()
		m.poller.Stop()
	}
	m.gate.ReleaseAll()
	if started {
		m.wg.Wait()
	}
	m.log.Info("monitor disposed")
}

func (m *Monitor) journal(sig watch.Signal, class reconcile.Class, action, outcome, detail string) {
	if m.jour == nil {
		return
	}
	_, err := m.jour.Record(journal.Entry{
		Path:       sig.Path,
		ObservedAt: sig.ObservedAt,
		Source:     sig.Source.String(),
		Class:      class.String(),
		Action:     action,
		Outcome:    outcome,
		Detail:     detail,
	})
	if err != nil {
		m.log.Warn("journal write failed", "error", err)
	}
}

func (m *Monitor) journalOutcome(path, action, outcome, detail string) {
	if m.jour == nil {
		return
	}
	_, err := m.jour.Record(journal.Entry{
		Path:    path,
		Source:  "engine",
		Class:   "external",
		Action:  action,
		Outcome: outcome,
		Detail:  detail,
	})
	if err != nil {
		m.log.Warn("journal write failed", "error", err)
	}
}
