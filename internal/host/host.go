// Package host defines the collaborator interfaces nbwatchd needs from its
// environment: the editor front-end that owns open documents, the storage
// layer that owns file metadata and change notifications, and a notification
// sink. The reconciliation engine depends only on these interfaces so it can
// run against a real editor bridge, the local filesystem, or test fakes.
package host

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by storage and editor collaborators.
var (
	// ErrNotFound indicates the path has no backing file or open document.
	ErrNotFound = errors.New("host: not found")

	// ErrClosed indicates the collaborator has been shut down or the
	// connection to it was lost.
	ErrClosed = errors.New("host: closed")
)

// Document describes an open, tracked document as reported by the editor.
type Document struct {
	// Path is the storage path of the document, unique among open documents.
	Path string

	// Dirty reports whether the document has unsaved in-memory edits.
	Dirty bool
}

// Metadata is the storage-level metadata for a path. No content is carried.
type Metadata struct {
	LastModified time.Time
}

// ChangeType classifies a storage change notification.
type ChangeType int

const (
	// ChangeSave is an in-place write to an existing file.
	ChangeSave ChangeType = iota

	// ChangeCreate is a newly created file. Atomic writers produce these
	// when they replace a file via a temp file.
	ChangeCreate

	// ChangeRename covers rename/move onto a tracked path.
	ChangeRename

	// ChangeOther is any notification the watcher does not act on.
	ChangeOther
)

// String returns the journal/log name of the change type.
func (t ChangeType) String() string {
	switch t {
	case ChangeSave:
		return "save"
	case ChangeCreate:
		return "create"
	case ChangeRename:
		return "rename"
	default:
		return "other"
	}
}

// ChangeEvent is a single storage change notification.
type ChangeEvent struct {
	Type ChangeType
	Path string
}

// Storage is the storage-layer collaborator: metadata queries and a change
// notification stream. Implementations: internal/fswatch (local filesystem).
type Storage interface {
	// Metadata returns current metadata for path without fetching content.
	// Returns ErrNotFound if the path does not exist.
	Metadata(ctx context.Context, path string) (Metadata, error)

	// Changes returns the storage change notification stream. The channel
	// is closed when the storage collaborator shuts down.
	Changes() <-chan ChangeEvent
}

// Editor is the editor front-end collaborator. All methods may be called
// concurrently; prompt calls can block for as long as the user takes.
type Editor interface {
	// ListOpenDocuments enumerates currently open tracked documents.
	ListOpenDocuments(ctx context.Context) ([]Document, error)

	// Reload discards the in-memory content of the document at path and
	// re-reads it from storage. Returns ErrNotFound if the document is no
	// longer open.
	Reload(ctx context.Context, path string) error

	// Prompt presents an ordered set of choices to the user and returns
	// the chosen label. An error or empty label means the prompt was
	// dismissed without a choice.
	Prompt(ctx context.Context, title, body string, choices []string) (string, error)
}

// Notifier delivers fire-and-forget user-visible notices.
type Notifier interface {
	Notify(title, body string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(title, body string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(title, body string) { f(title, body) }
