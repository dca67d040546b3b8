package arp

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/gl/v3.2-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"golang.org/x/sync/errgroup"
)

// StartReprojection hands the calling thread over to the reprojection loop
// and runs callback on a secondary thread against a hidden window whose
// context shares resources with the main one. The hidden window is an
// offscreen context: only FBO rendering has any effect there.
//
// The loop runs until the main window should close, which the callback's
// return also triggers. On exit the hidden window is flagged to close and
// StartReprojection blocks until the callback has returned.
func StartReprojection(callback ApplicationCallback) error {
	return ctx.startReprojection(callback)
}

func (c *ReprojectionContext) startReprojection(callback ApplicationCallback) error {
	if c.poseFunc == nil {
		return errors.New("arp: no pose function registered, not starting reprojection")
	}

	c.window = glfw.GetCurrentContext()
	if c.window == nil {
		return errors.New("arp: starting reprojection requires a current OpenGL context")
	}

	c.resetCamera()

	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 2)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Visible, glfw.False)
	hidden, err := glfw.CreateWindow(1, 1, "", nil, c.window)
	glfw.WindowHint(glfw.Visible, glfw.True)
	if err != nil {
		return errors.Wrap(err, "arp: creating hidden application window")
	}
	c.hiddenWindow = hidden

	var app errgroup.Group
	app.Go(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		c.hiddenWindow.MakeContextCurrent()
		callback(c.hiddenWindow)

		// Application has finished at this point.
		c.window.SetShouldClose(true)
		return nil
	})

	c.prevKeyCallback = c.window.SetKeyCallback(c.keyCallback)
	c.prevFramebufferSizeCallback = c.window.SetFramebufferSizeCallback(c.framebufferSizeCallback)

	c.render.setup()

	frameStartTime := c.now()
	for !c.window.ShouldClose() {
		if c.cursorCaptured.Load() {
			c.window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
		} else {
			c.window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		}

		time := c.now()
		tickDuration := time - frameStartTime
		frameStartTime = time

		frame, camera, valid := c.tick(time, tickDuration)

		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		if valid {
			for i := len(frame.Layers) - 1; i >= 0; i-- {
				c.render.drawLayer(frame.Layers[i], frame.Pose, camera, c.projection)
			}
		}

		c.window.SwapBuffers()
		glfw.PollEvents()
	}

	c.hiddenWindow.SetShouldClose(true)

	err = app.Wait()
	c.render.destroy()
	return err
}

// tick advances input accumulation and the live camera pose, and snapshots
// the frame to draw. Input and exchange mutexes are held together, in that
// order, so the pose function sees key times and frame state from the same
// instant.
func (c *ReprojectionContext) tick(time, tickDuration float64) (frame FrameSubmitInfo, camera Pose, valid bool) {
	c.input.mu.Lock()
	defer c.input.mu.Unlock()
	c.exchange.mu.Lock()
	defer c.exchange.mu.Unlock()

	c.input.accumulateLocked(tickDuration)

	mouseX, mouseY := c.window.GetCursorPos()
	c.exchange.cameraPoseInfo.MouseX = mouseX
	c.exchange.cameraPoseInfo.MouseY = mouseY
	c.exchange.cameraPoseInfo.Time = time

	dx := c.exchange.cameraPoseInfo.MouseX - c.exchange.lastFrame.PoseInfo.MouseX
	dy := c.exchange.cameraPoseInfo.MouseY - c.exchange.lastFrame.PoseInfo.MouseY
	dt := c.exchange.cameraPoseInfo.Time - c.exchange.lastFrame.PoseInfo.Time

	if !c.cursorCaptured.Load() {
		dx = 0
		dy = 0
	}

	c.exchange.cameraPose = c.poseFunc(c.exchange.lastFrame.PoseInfo.RealPose, dx, dy, dt, c.input.keyTimeLocked)
	c.exchange.cameraPoseInfo.RealPose = c.exchange.cameraPose

	return c.exchange.lastFrame, c.exchange.cameraPose, c.exchange.frameValid
}

func (c *ReprojectionContext) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	switch action {
	case glfw.Press:
		c.input.press(key)
	case glfw.Release:
		c.input.release(key)
	}

	if c.prevKeyCallback != nil {
		c.prevKeyCallback(w, key, scancode, action, mods)
	}
}

func (c *ReprojectionContext) framebufferSizeCallback(w *glfw.Window, width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))

	if c.prevFramebufferSizeCallback != nil {
		c.prevFramebufferSizeCallback(w, width, height)
	}
}
