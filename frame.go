package arp

import "sync"

// FrameLayerFlags select how a layer is reprojected.
type FrameLayerFlags uint32

const (
	FrameLayerNone FrameLayerFlags = 0
	// FrameLayerParallaxEnabled approximates changes in camera position by
	// parallax mapping against the layer's depth image.
	FrameLayerParallaxEnabled FrameLayerFlags = 1 << 0
	// FrameLayerCameraLocked keeps the layer fixed to the camera, drawing it
	// in screen space. Useful for HUDs.
	FrameLayerCameraLocked FrameLayerFlags = 1 << 1
)

// FrameLayer is one depth-ordered element of a submitted frame: an image of
// the referenced swapchain plus how to reproject it.
type FrameLayer struct {
	// Fov is the vertical field of view the layer was rendered with, radians.
	Fov   float64
	Flags FrameLayerFlags

	Swapchain      *Swapchain
	SwapchainIndex int
}

// FrameSubmitInfo describes one rendered frame: the pose it was rendered
// from, the inputs that produced that pose, and the layers to composite.
// Submitting transfers the referenced swapchain images to the library until
// a newer frame replaces them.
type FrameSubmitInfo struct {
	Pose     Pose
	PoseInfo PoseInfo
	Layers   []FrameLayer
}

// frameExchange is the hand-off point between the application thread and the
// reprojection loop: the most recently submitted frame plus the live camera
// state the loop maintains. One mutex guards all of it, and the pose history
// rides along since it is only touched on submission and prediction.
type frameExchange struct {
	mu sync.Mutex

	frameValid bool
	lastFrame  FrameSubmitInfo

	cameraPose     Pose
	cameraPoseInfo PoseInfo

	history poseHistory
}

// publish stores info as the current frame after releasing the images pinned
// by the frame it replaces. The release happens before the swap so that an
// application blocked in AcquireImage can make progress the moment its image
// stops being presented.
func (e *frameExchange) publish(info FrameSubmitInfo) {
	e.mu.Lock()
	prevLayers := e.lastFrame.Layers
	e.mu.Unlock()

	for _, layer := range prevLayers {
		layer.Swapchain.releaseImage(layer.SwapchainIndex)
	}

	e.mu.Lock()
	e.history.push(info.PoseInfo)
	e.lastFrame = info
	e.frameValid = true
	e.mu.Unlock()
}

// snapshot copies the current frame (if any) and camera state in one
// critical section, so a draw cycle works from a consistent frame even if a
// submission lands mid-tick.
func (e *frameExchange) snapshot() (frame FrameSubmitInfo, camera Pose, valid bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFrame, e.cameraPose, e.frameValid
}
