package arp

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"
)

func TestInputAccumulatesHeldKeys(t *testing.T) {
	input := newInputState()
	input.press(glfw.KeyW)

	input.mu.Lock()
	input.accumulateLocked(0.016)
	input.accumulateLocked(0.016)
	assert.InDelta(t, 0.032, input.keyTimeLocked(glfw.KeyW), 1e-12)
	assert.Zero(t, input.keyTimeLocked(glfw.KeyA))
	input.mu.Unlock()
}

func TestInputReleasedKeyStopsAccumulating(t *testing.T) {
	input := newInputState()
	input.press(glfw.KeyW)

	input.mu.Lock()
	input.accumulateLocked(0.01)
	input.mu.Unlock()

	input.release(glfw.KeyW)

	input.mu.Lock()
	input.accumulateLocked(0.01)
	// Hold time up to the release is retained until the next submission.
	assert.InDelta(t, 0.01, input.keyTimeLocked(glfw.KeyW), 1e-12)
	input.mu.Unlock()
}

func TestInputClearTimesKeepsPressedSet(t *testing.T) {
	input := newInputState()
	input.press(glfw.KeyW)

	input.mu.Lock()
	input.accumulateLocked(0.5)
	input.mu.Unlock()

	input.clearTimes()

	input.mu.Lock()
	assert.Zero(t, input.keyTimeLocked(glfw.KeyW))
	input.accumulateLocked(0.25)
	assert.InDelta(t, 0.25, input.keyTimeLocked(glfw.KeyW), 1e-12)
	input.mu.Unlock()
}

func TestPredictionKeyTimeSnapshot(t *testing.T) {
	input := newInputState()
	input.press(glfw.KeyW)

	keyTime := input.predictionKeyTime(0.05)

	assert.InDelta(t, 0.05, keyTime(glfw.KeyW), 1e-12)
	assert.Zero(t, keyTime(glfw.KeyA))

	// The snapshot is immune to later input changes.
	input.release(glfw.KeyW)
	input.press(glfw.KeyA)
	assert.InDelta(t, 0.05, keyTime(glfw.KeyW), 1e-12)
	assert.Zero(t, keyTime(glfw.KeyA))
}
