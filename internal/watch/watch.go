// Package watch produces change signals for open tracked documents. Two
// strategies feed the same signal channel: an event watcher reacting to
// storage change notifications, and a poll watcher re-reading metadata on
// an interval as a fallback for dropped or delayed notifications. Both
// normalize to "this path's stored timestamp advanced"; ordering between
// the two is not guaranteed and is reconciled downstream by the registry's
// monotonic timestamp check.
package watch

import (
	"path/filepath"
	"strings"
	"time"
)

// Source identifies which strategy produced a signal.
type Source int

const (
	// SourceEvent signals originate from storage change notifications.
	SourceEvent Source = iota

	// SourcePoll signals originate from the metadata poll cycle.
	SourcePoll
)

// String returns the journal/log name of the source.
func (s Source) String() string {
	if s == SourceEvent {
		return "event"
	}
	return "poll"
}

// Signal reports that a tracked path's storage timestamp advanced.
type Signal struct {
	Path       string
	ObservedAt time.Time
	Source     Source
}

// matchesExtension reports whether path carries one of the tracked
// extensions (case-insensitive, dot included).
func matchesExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, tracked := range extensions {
		if strings.EqualFold(ext, tracked) {
			return true
		}
	}
	return false
}
