package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEchoWithinWindow(t *testing.T) {
	save := time.Now()

	assert.Equal(t, ClassEcho, Classify(save.Add(100*time.Millisecond), save, DefaultEchoWindow))
	assert.Equal(t, ClassEcho, Classify(save, save, DefaultEchoWindow))
}

// The boundary is strict: a delta of exactly the window is external.
func TestClassifyBoundary(t *testing.T) {
	save := time.Now()
	window := 2 * time.Second

	assert.Equal(t, ClassEcho, Classify(save.Add(1999*time.Millisecond), save, window))
	assert.Equal(t, ClassExternal, Classify(save.Add(2000*time.Millisecond), save, window))
	assert.Equal(t, ClassExternal, Classify(save.Add(2001*time.Millisecond), save, window))
}

func TestClassifyNoLocalSave(t *testing.T) {
	assert.Equal(t, ClassExternal, Classify(time.Now(), time.Time{}, DefaultEchoWindow))
}

func TestClassifyDisabledWindow(t *testing.T) {
	save := time.Now()

	// A non-positive window turns echo suppression off entirely.
	assert.Equal(t, ClassExternal, Classify(save.Add(time.Millisecond), save, 0))
	assert.Equal(t, ClassExternal, Classify(save.Add(time.Millisecond), save, -time.Second))
}

func TestClassifyObservedBeforeSave(t *testing.T) {
	save := time.Now()

	// Negative delta is below the window, so it counts as echo: clock skew
	// between the save notification and the storage timestamp is common.
	assert.Equal(t, ClassEcho, Classify(save.Add(-time.Second), save, DefaultEchoWindow))
}

func TestDecideCleanAlwaysReloads(t *testing.T) {
	for _, mode := range []Resolution{ResolutionAsk, ResolutionKeepLocal, ResolutionUseExternal} {
		assert.Equal(t, ActionReload, Decide(false, mode), "mode %s", mode)
	}
}

func TestDecideDirty(t *testing.T) {
	assert.Equal(t, ActionPrompt, Decide(true, ResolutionAsk))
	assert.Equal(t, ActionIgnore, Decide(true, ResolutionKeepLocal))
	assert.Equal(t, ActionReload, Decide(true, ResolutionUseExternal))
}

func TestDecideUnknownModeFallsBackToPrompt(t *testing.T) {
	assert.Equal(t, ActionPrompt, Decide(true, Resolution("sideways")))
}

func TestResolutionValid(t *testing.T) {
	assert.True(t, ResolutionAsk.Valid())
	assert.True(t, ResolutionKeepLocal.Valid())
	assert.True(t, ResolutionUseExternal.Valid())
	assert.False(t, Resolution("").Valid())
	assert.False(t, Resolution("KeepLocal").Valid())
}

func TestStringNames(t *testing.T) {
	assert.Equal(t, "echo", ClassEcho.String())
	assert.Equal(t, "external", ClassExternal.String())
	assert.Equal(t, "reload", ActionReload.String())
	assert.Equal(t, "ignore", ActionIgnore.String())
	assert.Equal(t, "prompt", ActionPrompt.String())
}
