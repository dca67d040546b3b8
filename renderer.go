package arp

import (
	"log"
	"math"

	"github.com/go-gl/gl/v3.2-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// MaxParallaxIterations is the ray-march step count of the parallax shader.
const MaxParallaxIterations = 64

// parallaxPositionEpsilon widens the "positions differ" gate so the renderer
// does not ping-pong between paths on tiny jitter. It is compared against the
// squared offset, so moves shorter than 1e-3 units count as no move.
const parallaxPositionEpsilon = 1e-6

type projectionParams struct {
	near   float32
	far    float32
	fovY   float32
	aspect float32
}

// reprojectionMatrix builds the projection used to draw warp quads. The far
// plane is doubled so a quad anchored at -far stays inside the clip volume
// after rotation.
func (p projectionParams) reprojectionMatrix() mgl32.Mat4 {
	return mgl32.Perspective(p.fovY, p.aspect, p.near, p.far*2)
}

// layerModelView computes the model and view matrices that place a layer's
// warp quad in the world.
//
// The quad is scaled to fill the layer's frustum at the far plane, pushed out
// to -far, then given the submitted frame's orientation and position so it
// hangs in the world exactly where the frame saw it. A camera-locked layer
// takes the live orientation instead, nailing it to the view. The view
// matrix rotates with the live camera; translation only follows the live
// camera on the parallax path, since without depth there is nothing to
// reproject positionally.
func layerModelView(layer FrameLayer, framePose, camera Pose, p projectionParams, parallax bool) (model, view mgl32.Mat4) {
	fovY := layer.Fov
	// TODO: allow layers with different aspect ratios
	fovX := float64(p.aspect) * fovY
	xScale := p.far * float32(math.Tan(fovX/2))
	yScale := p.far * float32(math.Tan(fovY/2))

	scale := mgl32.Scale3D(xScale, yScale, 1)
	farPlaneOffset := mgl32.Translate3D(0, 0, -p.far)
	translation := mgl32.Translate3D(framePose.Position.Elem())

	var rotation mgl32.Mat4
	if layer.Flags&FrameLayerCameraLocked != 0 {
		rotation = camera.Orientation.Mat4()
	} else {
		rotation = framePose.Orientation.Mat4()
	}

	model = translation.Mul4(rotation).Mul4(farPlaneOffset).Mul4(scale)

	viewOrigin := framePose.Position
	if parallax {
		viewOrigin = camera.Position
	}
	cameraMat := mgl32.Translate3D(viewOrigin.Elem()).Mul4(camera.Orientation.Mat4())
	view = cameraMat.Inv()

	return model, view
}

// submittedViewProjection reconstructs the view-projection the layer's frame
// was rendered with, used by the parallax shader to probe the depth image.
func submittedViewProjection(layer FrameLayer, framePose Pose, p projectionParams) mgl32.Mat4 {
	proj := mgl32.Perspective(float32(layer.Fov), p.aspect, p.near, p.far)
	cameraMat := mgl32.Translate3D(framePose.Position.Elem()).Mul4(framePose.Orientation.Mat4())
	return proj.Mul4(cameraMat.Inv())
}

// parallaxActive reports whether the parallax path should draw this layer:
// the flag is set, the layer is not camera-locked, and the live camera has
// actually moved off the submitted position.
func parallaxActive(layer FrameLayer, framePose, camera Pose) bool {
	if layer.Flags&FrameLayerParallaxEnabled == 0 {
		return false
	}
	if layer.Flags&FrameLayerCameraLocked != 0 {
		return false
	}
	offset := camera.Position.Sub(framePose.Position)
	return offset.Dot(offset) > parallaxPositionEpsilon
}

// renderState holds the GL objects of the reprojection pass: the fullscreen
// quad and the two programs.
type renderState struct {
	vao uint32
	vbo uint32

	program         uint32
	parallaxProgram uint32
}

// setup creates the quad geometry and compiles both programs. A program that
// fails to build is left 0 and its path is skipped at draw time.
func (r *renderState) setup() {
	gl.GenVertexArrays(1, &r.vao)
	gl.BindVertexArray(r.vao)

	quad := []float32{
		-1, -1, 0, // bottom left
		-1, 1, 0, // top left
		1, -1, 0, // bottom right
		1, 1, 0, // top right
	}

	gl.GenBuffers(1, &r.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(quad)*4, gl.Ptr(quad), gl.STATIC_DRAW)

	var err error
	r.program, err = linkProgram(defaultVertSrc, defaultFragSrc)
	if err != nil {
		log.Printf("arp: %v", err)
	}
	r.parallaxProgram, err = linkProgram(parallaxVertSrc, parallaxFragSrc)
	if err != nil {
		log.Printf("arp: %v", err)
	}

	for _, program := range []uint32{r.program, r.parallaxProgram} {
		if program == 0 {
			continue
		}
		posLoc := uint32(gl.GetAttribLocation(program, gl.Str("pos\x00")))
		gl.EnableVertexAttribArray(posLoc)
		gl.VertexAttribPointer(posLoc, 3, gl.FLOAT, false, 0, gl.PtrOffset(0))
	}
}

func setUniformMat4(program uint32, name string, m mgl32.Mat4) {
	loc := gl.GetUniformLocation(program, gl.Str(name+"\x00"))
	gl.UniformMatrix4fv(loc, 1, false, &m[0])
}

// drawLayer draws one layer of the submitted frame as a textured quad warped
// to the live camera.
func (r *renderState) drawLayer(layer FrameLayer, framePose, camera Pose, p projectionParams) {
	parallax := parallaxActive(layer, framePose, camera)

	program := r.program
	if parallax {
		program = r.parallaxProgram
	}
	if program == 0 {
		return
	}

	model, view := layerModelView(layer, framePose, camera, p, parallax)

	gl.UseProgram(program)
	setUniformMat4(program, "model", model)
	setUniformMat4(program, "view", view)
	setUniformMat4(program, "projection", p.reprojectionMatrix())

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, layer.Swapchain.Images[layer.SwapchainIndex])
	gl.Uniform1i(gl.GetUniformLocation(program, gl.Str("tex\x00")), 0)

	if parallax {
		setUniformMat4(program, "submitViewProj", submittedViewProjection(layer, framePose, p))

		camLoc := gl.GetUniformLocation(program, gl.Str("cameraPos\x00"))
		gl.Uniform3f(camLoc, camera.Position.X(), camera.Position.Y(), camera.Position.Z())

		gl.ActiveTexture(gl.TEXTURE1)
		gl.BindTexture(gl.TEXTURE_2D, layer.Swapchain.DepthImages[layer.SwapchainIndex])
		gl.Uniform1i(gl.GetUniformLocation(program, gl.Str("depthTex\x00")), 1)
		gl.ActiveTexture(gl.TEXTURE0)
	}

	gl.BindVertexArray(r.vao)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
}

func (r *renderState) destroy() {
	if r.program != 0 {
		gl.DeleteProgram(r.program)
	}
	if r.parallaxProgram != 0 {
		gl.DeleteProgram(r.parallaxProgram)
	}
	gl.DeleteBuffers(1, &r.vbo)
	gl.DeleteVertexArrays(1, &r.vao)
}
