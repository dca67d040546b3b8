package arp

import (
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/gl/v3.2-core/gl"
	"github.com/google/uuid"
)

// imageRing is the acquire/release bookkeeping of a swapchain: a cursor over
// a fixed ring of slots, each either free or handed out. Acquire blocks while
// the next slot is still held, which is what throttles an application that
// renders faster than it submits.
type imageRing struct {
	mu       sync.Mutex
	cond     *sync.Cond
	index    int
	acquired []bool
}

func newImageRing(n int) *imageRing {
	r := &imageRing{acquired: make([]bool, n)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// acquire blocks until the slot under the cursor is free, marks it held, and
// advances the cursor.
func (r *imageRing) acquire() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.acquired[r.index] {
		r.cond.Wait()
	}

	i := r.index
	r.acquired[i] = true
	r.index = (r.index + 1) % len(r.acquired)
	return i
}

func (r *imageRing) release(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquired[i] = false
	r.cond.Broadcast()
}

// Swapchain is a ring of color+depth texture pairs that lets the application
// render the next frame while reprojection is still presenting the last one.
// The application acquires an image, renders into its framebuffer, and
// references it in a FrameLayer; reprojection releases it when a newer frame
// replaces it.
type Swapchain struct {
	Width     int
	Height    int
	NumImages int

	// Images are the color textures, one per slot. Applications sample or
	// attach these directly after acquiring the matching index.
	Images []uint32
	// DepthImages back the parallax path; each is attached to the same
	// framebuffer as its color partner.
	DepthImages []uint32

	id   uuid.UUID
	ring *imageRing
	fbos []uint32
}

// NewSwapchain allocates numImages color (RGB8, linear, clamped) and depth
// (24-bit, nearest, clamped) textures plus a framebuffer per pair. Requires
// Initialize to have succeeded and a current GL context on the calling
// thread.
func NewSwapchain(width, height, numImages int) (*Swapchain, error) {
	if !ctx.initialized {
		return nil, errors.New("arp: attempting to create swapchain before initialization")
	}
	if numImages < 1 {
		return nil, errors.Newf("arp: swapchain needs at least one image, got %d", numImages)
	}

	s := &Swapchain{
		Width:       width,
		Height:      height,
		NumImages:   numImages,
		Images:      make([]uint32, numImages),
		DepthImages: make([]uint32, numImages),
		id:          uuid.New(),
		ring:        newImageRing(numImages),
		fbos:        make([]uint32, numImages),
	}

	gl.GenTextures(int32(numImages), &s.Images[0])
	for i := 0; i < numImages; i++ {
		gl.BindTexture(gl.TEXTURE_2D, s.Images[i])
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGB, int32(width), int32(height), 0, gl.RGB, gl.UNSIGNED_BYTE, nil)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	}

	gl.GenTextures(int32(numImages), &s.DepthImages[0])
	for i := 0; i < numImages; i++ {
		gl.BindTexture(gl.TEXTURE_2D, s.DepthImages[i])
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.DEPTH_COMPONENT24, int32(width), int32(height), 0, gl.DEPTH_COMPONENT, gl.FLOAT, nil)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	}

	var originalFramebuffer int32
	gl.GetIntegerv(gl.DRAW_FRAMEBUFFER_BINDING, &originalFramebuffer)

	gl.GenFramebuffers(int32(numImages), &s.fbos[0])
	for i := 0; i < numImages; i++ {
		gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, s.fbos[i])
		gl.FramebufferTexture2D(gl.DRAW_FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, s.Images[i], 0)
		gl.FramebufferTexture2D(gl.DRAW_FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.TEXTURE_2D, s.DepthImages[i], 0)

		status := gl.CheckFramebufferStatus(gl.DRAW_FRAMEBUFFER)
		if status != gl.FRAMEBUFFER_COMPLETE {
			log.Printf("arp: swapchain %s: framebuffer %d incomplete: 0x%x", s.id, i, status)
		}
	}

	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, uint32(originalFramebuffer))

	return s, nil
}

// AcquireImage reserves an image slot for rendering and returns its index.
// It blocks while the slot is still referenced by the last submitted frame.
// Do not render into a swapchain image without acquiring it first.
func (s *Swapchain) AcquireImage() int {
	return s.ring.acquire()
}

// BindFramebuffer makes slot i's framebuffer the current draw target.
func (s *Swapchain) BindFramebuffer(i int) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, s.fbos[i])
}

// Resize reallocates the backing storage of every slot to the new
// dimensions. Handles of currently acquired images stay valid but their
// contents are undefined afterwards.
func (s *Swapchain) Resize(width, height int) {
	s.ring.mu.Lock()
	defer s.ring.mu.Unlock()

	s.Width = width
	s.Height = height
	for i := 0; i < s.NumImages; i++ {
		gl.BindTexture(gl.TEXTURE_2D, s.Images[i])
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGB, int32(width), int32(height), 0, gl.RGB, gl.UNSIGNED_BYTE, nil)
		gl.BindTexture(gl.TEXTURE_2D, s.DepthImages[i])
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.DEPTH_COMPONENT24, int32(width), int32(height), 0, gl.DEPTH_COMPONENT, gl.FLOAT, nil)
	}
}

// releaseImage returns slot i to the ring, waking an application blocked in
// AcquireImage. SubmitFrame does this for the previously published frame;
// applications must not call it themselves.
func (s *Swapchain) releaseImage(i int) {
	s.ring.release(i)
}

// Destroy deletes the GPU objects. The swapchain must not be referenced by a
// published frame.
func (s *Swapchain) Destroy() {
	gl.DeleteTextures(int32(s.NumImages), &s.Images[0])
	gl.DeleteTextures(int32(s.NumImages), &s.DepthImages[0])
	gl.DeleteFramebuffers(int32(s.NumImages), &s.fbos[0])
}
