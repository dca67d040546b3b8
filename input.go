package arp

import (
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// inputState accumulates keyboard state between frame submissions. pressed
// tracks the keys currently held; keyTimes tracks how long each key has been
// held since the last SubmitFrame, so the pose function sees hold durations
// measured from the frame it is extrapolating from.
type inputState struct {
	mu       sync.Mutex
	pressed  map[glfw.Key]struct{}
	keyTimes map[glfw.Key]float64
}

func newInputState() inputState {
	return inputState{
		pressed:  make(map[glfw.Key]struct{}),
		keyTimes: make(map[glfw.Key]float64),
	}
}

func (s *inputState) press(key glfw.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed[key] = struct{}{}
}

func (s *inputState) release(key glfw.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pressed, key)
}

// accumulateLocked adds dt seconds of hold time to every currently pressed key.
// Called once per reprojection tick. Requires s.mu held.
func (s *inputState) accumulateLocked(dt float64) {
	for key := range s.pressed {
		s.keyTimes[key] += dt
	}
}

// keyTimeLocked reports accumulated hold time for key. Requires s.mu held;
// the reprojection tick hands this to the pose function while already inside
// the input critical section.
func (s *inputState) keyTimeLocked(key glfw.Key) float64 {
	return s.keyTimes[key]
}

// clearTimes resets the per-key hold times. SubmitFrame calls this so the
// next tick measures from submit time forward.
func (s *inputState) clearTimes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.keyTimes {
		delete(s.keyTimes, key)
	}
}

// predictionKeyTime snapshots the pressed-key set and binds it, together with
// the predicted interval, into a KeyTimeFunc the pose function can call from
// any thread without touching shared state.
func (s *inputState) predictionKeyTime(predictedDt float64) KeyTimeFunc {
	s.mu.Lock()
	snapshot := make(map[glfw.Key]struct{}, len(s.pressed))
	for key := range s.pressed {
		snapshot[key] = struct{}{}
	}
	s.mu.Unlock()

	return func(key glfw.Key) float64 {
		if _, held := snapshot[key]; held {
			return predictedDt
		}
		return 0
	}
}
