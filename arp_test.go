package arp

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestContext builds a context whose GPU flush and clock are stubbed out,
// so submission and prediction can run without a GL context.
func newTestContext() *ReprojectionContext {
	c := newReprojectionContext()
	c.flush = func() {}
	c.now = func() float64 { return 0 }
	return c
}

func submitAt(c *ReprojectionContext, time float64) {
	c.submitFrame(FrameSubmitInfo{PoseInfo: PoseInfo{Time: time}})
}

func TestPredictedDisplayTimeSeedsAt60Hz(t *testing.T) {
	c := newTestContext()
	assert.InDelta(t, 1.0/60.0, c.getPredictedDisplayTime(), 1e-12)

	submitAt(c, 0)
	assert.InDelta(t, 1.0/60.0, c.getPredictedDisplayTime(), 1e-12)
}

func TestPredictedDisplayTimeExtrapolates(t *testing.T) {
	c := newTestContext()
	submitAt(c, 0)
	submitAt(c, 0.016)
	submitAt(c, 0.032)

	assert.InDelta(t, 0.048, c.getPredictedDisplayTime(), 1e-9)
}

func TestPredictedCameraPoseHalvesDeltas(t *testing.T) {
	c := newTestContext()
	c.now = func() float64 { return 0.1 }

	var gotDx, gotDy, gotDt float64
	c.poseFunc = func(original Pose, dx, dy, dt float64, keyTime KeyTimeFunc) Pose {
		gotDx, gotDy, gotDt = dx, dy, dt
		return original
	}

	c.exchange.mu.Lock()
	c.exchange.lastFrame.PoseInfo = PoseInfo{MouseX: 0, MouseY: 0, Time: 0.08}
	c.exchange.cameraPoseInfo = PoseInfo{MouseX: 100, MouseY: -40, Time: 0.1}
	c.exchange.cameraPose = IdentityPose()
	c.exchange.mu.Unlock()

	c.getPredictedCameraPose(0.2)

	assert.InDelta(t, 50, gotDx, 1e-12)
	assert.InDelta(t, -20, gotDy, 1e-12)
	assert.InDelta(t, 0.05, gotDt, 1e-12)
}

func TestPredictedCameraPoseKeyTimes(t *testing.T) {
	c := newTestContext()
	c.now = func() float64 { return 0 }
	c.input.press(glfw.KeyW)

	var heldTime, idleTime float64
	c.poseFunc = func(original Pose, dx, dy, dt float64, keyTime KeyTimeFunc) Pose {
		heldTime = keyTime(glfw.KeyW)
		idleTime = keyTime(glfw.KeyA)
		return original
	}

	c.getPredictedCameraPose(0.1)

	assert.InDelta(t, 0.05, heldTime, 1e-12)
	assert.Zero(t, idleTime)
}

func TestPredictedCameraPoseReturnsLiveInfo(t *testing.T) {
	c := newTestContext()
	c.poseFunc = func(original Pose, dx, dy, dt float64, keyTime KeyTimeFunc) Pose {
		original.Position = original.Position.Add(mgl32.Vec3{1, 0, 0})
		return original
	}

	c.exchange.mu.Lock()
	c.exchange.cameraPose = IdentityPose()
	c.exchange.cameraPoseInfo = PoseInfo{MouseX: 3, MouseY: 4, Time: 5}
	c.exchange.mu.Unlock()

	pose, info := c.getPredictedCameraPose(0.1)

	assert.InDelta(t, 1, float64(pose.Position.X()), 1e-6)
	assert.Equal(t, 3.0, info.MouseX)
	assert.Equal(t, 4.0, info.MouseY)
	assert.Equal(t, 5.0, info.Time)
}

func TestSubmitFrameClearsKeyTimes(t *testing.T) {
	c := newTestContext()
	c.input.press(glfw.KeyW)
	c.input.mu.Lock()
	c.input.accumulateLocked(0.5)
	c.input.mu.Unlock()

	submitAt(c, 0.1)

	c.input.mu.Lock()
	assert.Zero(t, c.input.keyTimeLocked(glfw.KeyW))
	c.input.mu.Unlock()
}

func TestSubmitFrameFlushesBeforePublishing(t *testing.T) {
	c := newTestContext()

	flushed := false
	c.flush = func() {
		flushed = true
		_, _, valid := c.exchange.snapshot()
		assert.False(t, valid, "frame published before the GPU flush")
	}

	submitAt(c, 0)
	require.True(t, flushed)

	_, _, valid := c.exchange.snapshot()
	assert.True(t, valid)
}

func TestGetCameraPoseCopies(t *testing.T) {
	c := newTestContext()

	want := IdentityPose()
	want.Position = mgl32.Vec3{1, 2, 3}
	c.exchange.mu.Lock()
	c.exchange.cameraPose = want
	c.exchange.cameraPoseInfo = PoseInfo{Time: 7, RealPose: want}
	c.exchange.mu.Unlock()

	pose, info := c.getCameraPose()
	assert.Equal(t, want.Position, pose.Position)
	assert.Equal(t, 7.0, info.Time)
	assert.Equal(t, want.Position, info.RealPose.Position)
}
