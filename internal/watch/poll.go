package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"nbwatchd/internal/host"
	"nbwatchd/internal/logging"
	"nbwatchd/internal/track"
)

// Poller re-reads storage metadata for every open tracked document on an
// interval, emitting a Signal whenever a timestamp moved past the last
// observed one. It is the reliability fallback when change notifications
// are dropped or delayed (atomic replaces, network filesystems). A failed
// metadata query logs and skips that document; the cycle never aborts.
type Poller struct {
	storage  host.Storage
	registry *track.Registry
	interval func() time.Duration
	out      chan<- Signal
	log      *logging.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	kick      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewPoller creates a poll watcher. interval is read before each cycle so
// settings changes apply to the next wait.
func NewPoller(storage host.Storage, registry *track.Registry, interval func() time.Duration, out chan<- Signal, log *logging.Logger) *Poller {
	return &Poller{
		storage:  storage,
		registry: registry,
		interval: interval,
		out:      out,
		log:      log,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start begins the poll loop.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.loop(ctx)
	})
}

// Stop halts the poll loop. Safe to call more than once and without a
// prior Start.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

// Kick requests an immediate poll cycle ahead of the next interval.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	timer := time.NewTimer(p.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-p.kick:
			p.Cycle(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.nextInterval())
		case <-timer.C:
			p.Cycle(ctx)
			timer.Reset(p.nextInterval())
		}
	}
}

func (p *Poller) nextInterval() time.Duration {
	d := p.interval()
	if d <= 0 {
		d = time.Second
	}
	return d
}

// Cycle runs one poll pass over all tracked documents.
func (p *Poller) Cycle(ctx context.Context) {
	for _, path := range p.registry.Paths() {
		entry, ok := p.registry.Get(path)
		if !ok {
			// Closed between listing and lookup.
			continue
		}

		meta, err := p.storage.Metadata(ctx, path)
		if err != nil {
			if errors.Is(err, host.ErrNotFound) {
				p.log.Debug("tracked document missing from storage", "path", path)
			} else {
				p.log.Warn("metadata query failed, skipping document", "path", path, "error", err)
			}
			continue
		}

		if !meta.LastModified.After(entry.LastObserved) {
			continue
		}

		sig := Signal{Path: path, ObservedAt: meta.LastModified, Source: SourcePoll}
		select {
		case p.out <- sig:
		case <-p.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
