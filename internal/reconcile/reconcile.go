// Package reconcile decides what to do when a tracked document's storage
// timestamp advances: classify the change as a local save echo or a genuine
// external edit, apply the conflict policy, and coalesce the resulting
// reloads through a per-path debounced scheduler. The decision functions are
// pure; all I/O stays with the callers.
package reconcile

import "time"

// DefaultEchoWindow is the trailing window after a local save during which
// a storage change is attributed to that save rather than an external edit.
const DefaultEchoWindow = 2 * time.Second

// Class is the classification of an observed storage change.
type Class int

const (
	// ClassEcho is the editor's own just-completed save surfacing through
	// the storage layer.
	ClassEcho Class = iota

	// ClassExternal is a change not attributable to a recent local save.
	ClassExternal
)

// String returns the journal/log name of the classification.
func (c Class) String() string {
	if c == ClassEcho {
		return "echo"
	}
	return "external"
}

// Classify decides whether a change observed at observed is an echo of a
// local save at lastLocalSave. The boundary sits exactly at echoWindow:
// a delta strictly below the window is an echo, everything else is
// external. A non-positive window disables echo suppression.
func Classify(observed, lastLocalSave time.Time, echoWindow time.Duration) Class {
	if echoWindow <= 0 || lastLocalSave.IsZero() {
		return ClassExternal
	}
	if observed.Sub(lastLocalSave) < echoWindow {
		return ClassEcho
	}
	return ClassExternal
}

// Resolution is the configured conflict policy mode.
type Resolution string

const (
	// ResolutionAsk prompts the user when local edits would be lost.
	ResolutionAsk Resolution = "ask"

	// ResolutionKeepLocal never reloads over unsaved local edits.
	ResolutionKeepLocal Resolution = "keepLocal"

	// ResolutionUseExternal always reloads, discarding local edits.
	ResolutionUseExternal Resolution = "useExternal"
)

// Valid reports whether r is a known resolution mode.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionAsk, ResolutionKeepLocal, ResolutionUseExternal:
		return true
	}
	return false
}

// Action is the outcome of applying the conflict policy to an external
// change.
type Action int

const (
	// ActionReload schedules a debounced reload.
	ActionReload Action = iota

	// ActionIgnore leaves the in-memory document untouched.
	ActionIgnore

	// ActionPrompt asks the user to choose.
	ActionPrompt
)

// String returns the journal/log name of the action.
func (a Action) String() string {
	switch a {
	case ActionReload:
		return "reload"
	case ActionIgnore:
		return "ignore"
	default:
		return "prompt"
	}
}

// Decide applies the conflict decision table. Clean documents always
// reload; dirty documents follow the configured resolution. Unknown modes
// fall back to ask, the conservative default.
func Decide(dirty bool, mode Resolution) Action {
	if !dirty {
		return ActionReload
	}
	switch mode {
	case ResolutionUseExternal:
		return ActionReload
	case ResolutionKeepLocal:
		return ActionIgnore
	default:
		return ActionPrompt
	}
}
