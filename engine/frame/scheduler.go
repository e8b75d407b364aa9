// Package frame paces rendering over a fixed set of frame slots. Each slot owns a command
// buffer, an image-available semaphore, a render-finished semaphore and a fence; the CPU never
// touches a slot's resources until its fence reports the previous use complete.
package frame

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer"
)

// SlotState is the position of a frame slot in its cycle.
type SlotState int

const (
	SlotIdle SlotState = iota
	SlotAcquiring
	SlotRecording
	SlotSubmitted
	SlotPresenting
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotAcquiring:
		return "acquiring"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	case SlotPresenting:
		return "presenting"
	default:
		return "unknown"
	}
}

// Surface is the presentation target the swapchain is sized from.
type Surface interface {
	// FramebufferSize returns the drawable size in pixels. Zero means minimized.
	FramebufferSize() (int, int)

	// WaitEvents blocks until the window system delivers an event.
	WaitEvents()
}

// FrameRecorder fills each frame with work.
type FrameRecorder interface {
	// UpdateUniforms writes the per-frame uniform data of slot. The slot's previous use is complete.
	UpdateUniforms(slot int) error

	// Record records the draw commands of slot into cmd.
	Record(slot int, cmd renderer.CommandBuffer) error

	// OnSwapchainRecreated rebuilds resolution-dependent state after the swapchain changed size.
	OnSwapchainRecreated(width, height int) error
}

// SchedulerStats counts scheduler activity.
type SchedulerStats struct {
	// Frames is the number of presented frames.
	Frames int

	// Skipped is the number of frames abandoned at acquire because the swapchain was out of date.
	Skipped int

	// Recreations is the number of swapchain rebuilds after the first.
	Recreations int
}

type slot struct {
	cmd            renderer.CommandBuffer
	imageAvailable renderer.Semaphore
	renderFinished renderer.Semaphore
	inFlight       renderer.Fence
	state          SlotState

	// pending is set while inFlight guards submitted work. A fence reset for a submission
	// that then failed is never signaled, so it must not be waited on.
	pending bool
}

func (sl *slot) wait() error {
	if !sl.pending {
		return nil
	}
	if err := sl.inFlight.Wait(); err != nil {
		return err
	}
	sl.pending = false
	return nil
}

// scheduler is the implementation of the Scheduler interface.
type scheduler struct {
	mu *sync.Mutex

	backend  renderer.RendererBackend
	surface  Surface
	recorder FrameRecorder

	framesInFlight int
	slots          []*slot
	current        int
	resized        bool

	stats        SchedulerStats
	releaseStack *common.ReleaseStack
}

// Scheduler drives acquire, record, submit and present over a ring of frame slots and rebuilds
// the swapchain whenever the presentation layer reports it stale or the surface was resized.
type Scheduler interface {
	// DrawFrame renders exactly one frame on the current slot and advances to the next slot.
	// When the acquired swapchain is out of date it rebuilds it instead and returns without
	// advancing.
	//
	// Returns:
	//   - bool: true if a frame was presented
	//   - error: a resource failure (acquire, submit, present or swapchain creation)
	DrawFrame() (bool, error)

	// RecreateSwapchain rebuilds the swapchain at the current surface size. While the surface
	// has zero area it blocks on Surface.WaitEvents.
	//
	// Returns:
	//   - error: an error if the swapchain or dependent state cannot be rebuilt
	RecreateSwapchain() error

	// MarkResized requests a swapchain rebuild after the next present.
	MarkResized()

	// WaitIdle blocks until every slot's submitted work has completed.
	//
	// Returns:
	//   - error: the first fence wait error
	WaitIdle() error

	// CurrentSlot returns the index of the slot the next DrawFrame uses.
	CurrentSlot() int

	// FramesInFlight returns the slot count.
	FramesInFlight() int

	// SlotState returns the state of slot i.
	SlotState(i int) SlotState

	// Stats returns a snapshot of the activity counters.
	Stats() SchedulerStats

	// Release waits for all slots and frees their resources and the swapchain.
	//
	// Returns:
	//   - error: joined release failures
	Release() error
}

var _ Scheduler = &scheduler{}

// NewScheduler creates the swapchain and the frame slots.
//
// Parameters:
//   - backend: the device
//   - surface: the presentation target that sizes the swapchain
//   - recorder: fills frames and reacts to swapchain rebuilds
//   - options: functional options; see WithFramesInFlight
//
// Returns:
//   - Scheduler: the scheduler
//   - error: an error if the swapchain or any slot resource cannot be created
func NewScheduler(backend renderer.RendererBackend, surface Surface, recorder FrameRecorder, options ...SchedulerBuilderOption) (Scheduler, error) {
	s := &scheduler{
		mu:             &sync.Mutex{},
		backend:        backend,
		surface:        surface,
		recorder:       recorder,
		framesInFlight: DefaultFramesInFlight,
		releaseStack:   &common.ReleaseStack{},
	}
	for _, opt := range options {
		opt(s)
	}

	width, height := s.waitForSurface()
	if err := backend.CreateSwapchain(width, height); err != nil {
		return nil, fmt.Errorf("create swapchain: %w", err)
	}
	s.releaseStack.PushFunc("swapchain", backend.DestroySwapchain)

	for i := range s.framesInFlight {
		sl, err := s.createSlot(i)
		if err != nil {
			if relErr := s.releaseStack.ReleaseAll(); relErr != nil {
				common.Logger().Warn("release after failed scheduler creation", "error", relErr)
			}
			return nil, err
		}
		s.slots = append(s.slots, sl)
	}
	return s, nil
}

func (s *scheduler) createSlot(i int) (*slot, error) {
	cmd, err := s.backend.CreateCommandBuffer()
	if err != nil {
		return nil, fmt.Errorf("slot %d command buffer: %w", i, err)
	}
	s.releaseStack.PushFunc(fmt.Sprintf("slot %d command buffer", i), cmd.Release)

	imageAvailable, err := s.backend.CreateSemaphore()
	if err != nil {
		return nil, fmt.Errorf("slot %d image semaphore: %w", i, err)
	}
	s.releaseStack.PushFunc(fmt.Sprintf("slot %d image semaphore", i), imageAvailable.Release)

	renderFinished, err := s.backend.CreateSemaphore()
	if err != nil {
		return nil, fmt.Errorf("slot %d render semaphore: %w", i, err)
	}
	s.releaseStack.PushFunc(fmt.Sprintf("slot %d render semaphore", i), renderFinished.Release)

	// Created signaled so the first wait on every slot returns immediately.
	fence, err := s.backend.CreateFence(true)
	if err != nil {
		return nil, fmt.Errorf("slot %d fence: %w", i, err)
	}
	s.releaseStack.PushFunc(fmt.Sprintf("slot %d fence", i), fence.Release)

	return &slot{
		cmd:            cmd,
		imageAvailable: imageAvailable,
		renderFinished: renderFinished,
		inFlight:       fence,
	}, nil
}

// waitForSurface blocks until the surface has a nonzero area and returns its size.
func (s *scheduler) waitForSurface() (int, int) {
	width, height := s.surface.FramebufferSize()
	for width <= 0 || height <= 0 {
		s.surface.WaitEvents()
		width, height = s.surface.FramebufferSize()
	}
	return width, height
}

func (s *scheduler) DrawFrame() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.slots[s.current]
	if err := sl.wait(); err != nil {
		return false, fmt.Errorf("wait for slot %d: %w", s.current, err)
	}

	sl.state = SlotAcquiring
	image, status, err := s.backend.AcquireNextImage(sl.imageAvailable)
	if err != nil {
		sl.state = SlotIdle
		return false, fmt.Errorf("acquire image: %w", err)
	}
	if status == renderer.SurfaceOutOfDate {
		sl.state = SlotIdle
		s.stats.Skipped++
		common.Logger().Debug("swapchain out of date at acquire", "slot", s.current)
		return false, s.recreateLocked()
	}

	sl.state = SlotRecording
	sl.cmd.Reset()
	if err := s.recorder.UpdateUniforms(s.current); err != nil {
		sl.state = SlotIdle
		return false, fmt.Errorf("update uniforms: %w", err)
	}
	if err := s.recorder.Record(s.current, sl.cmd); err != nil {
		sl.state = SlotIdle
		return false, fmt.Errorf("record frame: %w", err)
	}

	sl.inFlight.Reset()
	if err := s.backend.Submit(sl.cmd, sl.imageAvailable, sl.renderFinished, sl.inFlight); err != nil {
		sl.state = SlotIdle
		return false, fmt.Errorf("submit frame: %w", err)
	}
	sl.pending = true
	sl.state = SlotSubmitted

	sl.state = SlotPresenting
	presentStatus, err := s.backend.Present(image, sl.renderFinished)
	sl.state = SlotIdle
	if err != nil {
		return false, fmt.Errorf("present: %w", err)
	}
	s.stats.Frames++

	var recreateErr error
	if presentStatus != renderer.SurfaceOK || s.resized {
		common.Logger().Debug("recreating swapchain after present", "status", presentStatus, "resized", s.resized)
		s.resized = false
		recreateErr = s.recreateLocked()
	}
	s.current = (s.current + 1) % len(s.slots)
	return true, recreateErr
}

func (s *scheduler) RecreateSwapchain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recreateLocked()
}

func (s *scheduler) recreateLocked() error {
	width, height := s.waitForSurface()

	if err := s.backend.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle before swapchain rebuild: %w", err)
	}
	s.backend.DestroySwapchain()
	if err := s.backend.CreateSwapchain(width, height); err != nil {
		return fmt.Errorf("recreate swapchain: %w", err)
	}
	for _, sl := range s.slots {
		sl.state = SlotIdle
	}
	s.stats.Recreations++
	common.Logger().Info("swapchain recreated", "width", width, "height", height)

	if err := s.recorder.OnSwapchainRecreated(width, height); err != nil {
		return fmt.Errorf("rebuild after swapchain recreation: %w", err)
	}
	return nil
}

func (s *scheduler) MarkResized() {
	s.mu.Lock()
	s.resized = true
	s.mu.Unlock()
}

func (s *scheduler) WaitIdle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitIdleLocked()
}

func (s *scheduler) waitIdleLocked() error {
	for i, sl := range s.slots {
		if err := sl.wait(); err != nil {
			return fmt.Errorf("wait for slot %d: %w", i, err)
		}
	}
	return nil
}

func (s *scheduler) CurrentSlot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *scheduler) FramesInFlight() int {
	return s.framesInFlight
}

func (s *scheduler) SlotState(i int) SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[i].state
}

func (s *scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *scheduler) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.waitIdleLocked(); err != nil {
		common.Logger().Warn("frame slots did not drain before release", "error", err)
	}
	return s.releaseStack.ReleaseAll()
}
