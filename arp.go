// Package arp is an asynchronous reprojection library for OpenGL
// applications. The application renders off-screen at whatever rate it can
// while a reprojection loop, running at display rate, warps the most recent
// frame to the latest camera pose before presenting it. Camera motion stays
// responsive even when rendering is slow.
//
// The application keeps its main loop in an ApplicationCallback running on a
// secondary thread with a hidden shared context, renders into Swapchain
// images, and publishes them with SubmitFrame. StartReprojection takes over
// the calling thread to drive input sampling, pose evaluation, and
// presentation.
package arp

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/gl/v3.2-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/loov/hrtime"
)

// ReprojectionContext carries the whole state of one reprojection pipeline:
// registered pose function, projection, frame exchange, pose history, input
// accumulation, and the window pair. The package-level API drives the single
// process-wide instance.
type ReprojectionContext struct {
	initialized bool

	poseFunc   PoseFunction
	projection projectionParams

	window       *glfw.Window
	hiddenWindow *glfw.Window

	cursorCaptured atomic.Bool

	exchange frameExchange
	input    inputState
	render   renderState

	prevKeyCallback             glfw.KeyCallback
	prevFramebufferSizeCallback glfw.FramebufferSizeCallback

	// now and flush are swappable so the coordination logic is testable
	// without a GL context.
	now   func() float64
	flush func()
}

func newReprojectionContext() *ReprojectionContext {
	return &ReprojectionContext{
		exchange: frameExchange{history: newPoseHistory(HistorySize)},
		input:    newInputState(),
		now:      func() float64 { return hrtime.Now().Seconds() },
		flush:    gl.Flush,
	}
}

var ctx = newReprojectionContext()

// Initialize prepares the library against the current GL context. It must be
// called with a context current on the calling thread, before any swapchain
// is created.
func Initialize() error {
	return ctx.initialize()
}

func (c *ReprojectionContext) initialize() error {
	if glfw.GetCurrentContext() == nil {
		return errors.New("arp: cannot initialize with no current OpenGL context")
	}
	if err := gl.Init(); err != nil {
		return errors.Wrap(err, "arp: initializing OpenGL bindings")
	}
	c.initialized = true
	return nil
}

// RegisterPoseFunction registers the function used to derive camera poses
// from input. It must be registered before StartReprojection.
func RegisterPoseFunction(f PoseFunction) {
	ctx.poseFunc = f
}

// UpdateProjection tells reprojection the perspective the application
// renders with, so submitted frames can be warped accurately.
func UpdateProjection(near, far, fovY, aspect float32) {
	ctx.projection = projectionParams{near: near, far: far, fovY: fovY, aspect: aspect}
}

// CaptureCursor makes the main window capture the mouse cursor.
func CaptureCursor() {
	ctx.cursorCaptured.Store(true)
}

// ReleaseCursor releases a captured cursor.
func ReleaseCursor() {
	ctx.cursorCaptured.Store(false)
}

// GetCameraPose returns the live camera pose and the inputs it was computed
// from.
func GetCameraPose() (Pose, PoseInfo) {
	return ctx.getCameraPose()
}

func (c *ReprojectionContext) getCameraPose() (Pose, PoseInfo) {
	c.exchange.mu.Lock()
	defer c.exchange.mu.Unlock()
	return c.exchange.cameraPose, c.exchange.cameraPoseInfo
}

// GetNextPose is the pose the application should render its next frame
// from: the live camera pose.
func GetNextPose() Pose {
	pose, _ := ctx.getCameraPose()
	return pose
}

// GetPredictedDisplayTime estimates when the next frame submission will be
// displayed, based on the spacing of recent submissions. With fewer than two
// submissions recorded it returns the fixed value 1/60 of a second, not an
// offset from the last submission.
func GetPredictedDisplayTime() float64 {
	return ctx.getPredictedDisplayTime()
}

func (c *ReprojectionContext) getPredictedDisplayTime() float64 {
	c.exchange.mu.Lock()
	defer c.exchange.mu.Unlock()

	interval, ok := c.exchange.history.averageInterval()
	if !ok {
		return 1.0 / 60.0
	}
	return c.exchange.lastFrame.PoseInfo.Time + interval
}

// GetPredictedCameraPose extrapolates the camera pose out to the given
// display time. The cursor is assumed to continue its most recent movement;
// deltas are halved to land the prediction midway between the last published
// frame and the next expected one.
func GetPredictedCameraPose(time float64) (Pose, PoseInfo) {
	return ctx.getPredictedCameraPose(time)
}

func (c *ReprojectionContext) getPredictedCameraPose(time float64) (Pose, PoseInfo) {
	c.exchange.mu.Lock()
	poseInfo := c.exchange.cameraPoseInfo
	base := c.exchange.cameraPose

	dt := 0.5 * (time - c.now())
	dx := 0.5 * (c.exchange.cameraPoseInfo.MouseX - c.exchange.lastFrame.PoseInfo.MouseX)
	dy := 0.5 * (c.exchange.cameraPoseInfo.MouseY - c.exchange.lastFrame.PoseInfo.MouseY)
	c.exchange.mu.Unlock()

	// Every currently pressed key is assumed held for the whole predicted
	// interval. The snapshot travels with the callback, so the pose function
	// reads no shared state.
	keyTime := c.input.predictionKeyTime(dt)

	pose := c.poseFunc(base, dx, dy, dt, keyTime)
	return pose, poseInfo
}

// SubmitFrame publishes a rendered frame. The GPU is flushed first so the
// reprojection context never samples half-written images; the images of the
// previously published frame are released back to their swapchains, and the
// per-key hold times reset so the next tick measures from this submission.
func SubmitFrame(info FrameSubmitInfo) {
	ctx.submitFrame(info)
}

func (c *ReprojectionContext) submitFrame(info FrameSubmitInfo) {
	c.flush()
	c.exchange.publish(info)
	c.input.clearTimes()
}

// Shutdown stops the reprojection loop. The application callback should
// return promptly once its window reports it should close.
func Shutdown() {
	ctx.shutdown()
}

func (c *ReprojectionContext) shutdown() {
	if c.window != nil {
		c.window.SetShouldClose(true)
	}
}

// resetCamera seeds the live camera and last-frame pose before the loop
// starts, so the first ticks have a coherent base to extrapolate from.
func (c *ReprojectionContext) resetCamera() {
	c.exchange.mu.Lock()
	defer c.exchange.mu.Unlock()

	c.exchange.cameraPose = IdentityPose()
	c.exchange.cameraPoseInfo = PoseInfo{RealPose: c.exchange.cameraPose}
	c.exchange.lastFrame.Pose = c.exchange.cameraPose
	c.exchange.lastFrame.PoseInfo = c.exchange.cameraPoseInfo
	c.exchange.frameValid = false
}
