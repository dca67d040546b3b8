package arp

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

// PoseDataSize is the capacity of the opaque payload a Pose can carry for
// application state that must travel with the pose (accumulated pitch/yaw,
// for example). The library copies it by value and never inspects it.
const PoseDataSize = 64

// Pose is the position and orientation of the virtual camera.
type Pose struct {
	Position    mgl32.Vec3
	Orientation mgl32.Quat

	// Data is application-defined state carried alongside the pose.
	Data [PoseDataSize]byte
}

// IdentityPose returns a pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{
		Position:    mgl32.Vec3{0, 0, 0},
		Orientation: mgl32.QuatIdent(),
	}
}

// PoseInfo records the absolute inputs that produced a pose: the cursor
// position, the monotonic time in seconds, and the pose itself. Prediction
// uses the deltas between two PoseInfo values to extrapolate motion.
type PoseInfo struct {
	MouseX float64
	MouseY float64
	Time   float64

	RealPose Pose
}

// KeyTimeFunc reports how long a key has been held, in seconds, within the
// interval the pose function is being evaluated over. Keys that are not held
// report 0.
type KeyTimeFunc func(key glfw.Key) float64

// PoseFunction computes a camera pose from the last known pose and the input
// deltas since it was established. It MUST have no side effects: reprojection
// calls it from both threads, possibly many times per frame for prediction.
//
// original is the last pose provided by the library, dx and dy are cursor
// movement in pixels since that pose, dt is elapsed seconds, and keyTime
// reports per-key hold durations over the same interval.
type PoseFunction func(original Pose, dx, dy, dt float64, keyTime KeyTimeFunc) Pose

// ApplicationCallback runs the application's main loop on a secondary thread.
// The window argument is a hidden window sharing a context with the main
// window; only FBO rendering has any effect in it.
type ApplicationCallback func(window *glfw.Window)

// HistorySize is how many submitted-frame samples the predictor keeps.
const HistorySize = 10

// poseHistory is a bounded FIFO of the PoseInfo attached to recent frame
// submissions. Guarded by the frame exchange mutex.
type poseHistory struct {
	samples  []PoseInfo
	capacity int
}

func newPoseHistory(capacity int) poseHistory {
	return poseHistory{capacity: capacity}
}

func (h *poseHistory) push(info PoseInfo) {
	h.samples = append(h.samples, info)
	for len(h.samples) > h.capacity {
		h.samples = h.samples[1:]
	}
}

func (h *poseHistory) len() int {
	return len(h.samples)
}

// averageInterval is the mean spacing of the recorded timestamps. Reported
// ok=false until two samples exist.
func (h *poseHistory) averageInterval() (interval float64, ok bool) {
	if len(h.samples) < 2 {
		return 0, false
	}

	total := 0.0
	for i := 1; i < len(h.samples); i++ {
		total += h.samples[i].Time - h.samples[i-1].Time
	}
	return total / float64(len(h.samples)-1), true
}
