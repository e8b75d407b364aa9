package frame

import (
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-link/engine/renderer"
)

type recorderCall struct {
	kind          string
	slot          int
	width, height int
}

type fakeRecorder struct {
	calls     []recorderCall
	recordErr error
}

func (r *fakeRecorder) UpdateUniforms(slot int) error {
	r.calls = append(r.calls, recorderCall{kind: "uniforms", slot: slot})
	return nil
}

func (r *fakeRecorder) Record(slot int, cmd renderer.CommandBuffer) error {
	r.calls = append(r.calls, recorderCall{kind: "record", slot: slot})
	return r.recordErr
}

func (r *fakeRecorder) OnSwapchainRecreated(width, height int) error {
	r.calls = append(r.calls, recorderCall{kind: "recreated", width: width, height: height})
	return nil
}

func (r *fakeRecorder) count(kind string) int {
	n := 0
	for _, c := range r.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func newTestScheduler(t *testing.T, options ...SchedulerBuilderOption) (Scheduler, renderer.SoftRendererBackend, *fakeRecorder) {
	t.Helper()
	backend := renderer.NewSoftRendererBackend(renderer.WithSoftSurfaceSize(320, 240))
	rec := &fakeRecorder{}
	s, err := NewScheduler(backend, backend, rec, options...)
	if err != nil {
		t.Fatalf("NewScheduler() = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Release(); err != nil {
			t.Errorf("Release() = %v", err)
		}
		backend.Release()
	})
	return s, backend, rec
}

func TestDrawFrameAdvancesRoundRobin(t *testing.T) {
	s, backend, rec := newTestScheduler(t)

	wantSlots := []int{0, 1, 0, 1, 0}
	for i, want := range wantSlots {
		if got := s.CurrentSlot(); got != want {
			t.Fatalf("frame %d: CurrentSlot() = %d, want %d", i, got, want)
		}
		presented, err := s.DrawFrame()
		if err != nil || !presented {
			t.Fatalf("frame %d: DrawFrame() = %v, %v", i, presented, err)
		}
	}
	if err := s.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() = %v", err)
	}

	stats := backend.Stats()
	if stats.Submits != 5 || stats.Presents != 5 {
		t.Errorf("submits/presents = %d/%d, want 5/5", stats.Submits, stats.Presents)
	}
	if got := s.Stats().Frames; got != 5 {
		t.Errorf("Frames = %d, want 5", got)
	}
	if rec.count("uniforms") != 5 || rec.count("record") != 5 {
		t.Errorf("recorder calls = %+v", rec.calls)
	}
	for i := range s.FramesInFlight() {
		if st := s.SlotState(i); st != SlotIdle {
			t.Errorf("slot %d state = %v, want idle", i, st)
		}
	}
}

func TestOutOfDateAtAcquireRecreatesWithoutAdvancing(t *testing.T) {
	s, backend, rec := newTestScheduler(t)

	backend.SetSurfaceSize(640, 480)
	presented, err := s.DrawFrame()
	if err != nil {
		t.Fatalf("DrawFrame() = %v", err)
	}
	if presented {
		t.Error("DrawFrame() presented with an out-of-date swapchain")
	}
	if s.CurrentSlot() != 0 {
		t.Errorf("CurrentSlot() = %d, want 0", s.CurrentSlot())
	}
	if w, h := backend.SwapchainExtent(); w != 640 || h != 480 {
		t.Errorf("SwapchainExtent() = %dx%d, want 640x480", w, h)
	}
	if rec.count("record") != 0 {
		t.Error("recorded a frame that was abandoned at acquire")
	}
	if rec.count("recreated") != 1 {
		t.Errorf("OnSwapchainRecreated calls = %d, want 1", rec.count("recreated"))
	}
	stats := s.Stats()
	if stats.Skipped != 1 || stats.Recreations != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if presented, err := s.DrawFrame(); err != nil || !presented {
		t.Errorf("DrawFrame() after recreation = %v, %v", presented, err)
	}
}

func TestSuboptimalPresentRecreatesAfterPresenting(t *testing.T) {
	s, backend, rec := newTestScheduler(t)

	backend.QueuePresentStatus(renderer.SurfaceSuboptimal)
	presented, err := s.DrawFrame()
	if err != nil || !presented {
		t.Fatalf("DrawFrame() = %v, %v", presented, err)
	}
	if s.CurrentSlot() != 1 {
		t.Errorf("CurrentSlot() = %d, want 1", s.CurrentSlot())
	}
	if rec.count("recreated") != 1 {
		t.Errorf("OnSwapchainRecreated calls = %d, want 1", rec.count("recreated"))
	}
	if backend.Stats().SwapchainCreates != 2 {
		t.Errorf("SwapchainCreates = %d, want 2", backend.Stats().SwapchainCreates)
	}
}

func TestMarkResized(t *testing.T) {
	s, _, rec := newTestScheduler(t)

	s.MarkResized()
	if _, err := s.DrawFrame(); err != nil {
		t.Fatalf("DrawFrame() = %v", err)
	}
	if _, err := s.DrawFrame(); err != nil {
		t.Fatalf("DrawFrame() = %v", err)
	}
	if rec.count("recreated") != 1 {
		t.Errorf("OnSwapchainRecreated calls = %d, want 1", rec.count("recreated"))
	}
}

func TestRecreateWaitsForNonZeroSurface(t *testing.T) {
	s, backend, rec := newTestScheduler(t)

	backend.SetSurfaceSize(0, 0)
	waits := 0
	backend.SetWaitEventsHook(func() {
		waits++
		if waits == 3 {
			backend.SetSurfaceSize(200, 100)
		}
	})

	if err := s.RecreateSwapchain(); err != nil {
		t.Fatalf("RecreateSwapchain() = %v", err)
	}
	if waits != 3 {
		t.Errorf("WaitEvents calls = %d, want 3", waits)
	}
	last := rec.calls[len(rec.calls)-1]
	if last.kind != "recreated" || last.width != 200 || last.height != 100 {
		t.Errorf("last recorder call = %+v, want recreated 200x100", last)
	}
}

func TestRecordErrorLeavesSlotUsable(t *testing.T) {
	s, _, rec := newTestScheduler(t, WithFramesInFlight(3))
	if s.FramesInFlight() != 3 {
		t.Fatalf("FramesInFlight() = %d, want 3", s.FramesInFlight())
	}

	boom := errors.New("boom")
	rec.recordErr = boom
	if _, err := s.DrawFrame(); !errors.Is(err, boom) {
		t.Fatalf("DrawFrame() = %v, want %v", err, boom)
	}
	rec.recordErr = nil
	if presented, err := s.DrawFrame(); err != nil || !presented {
		t.Fatalf("DrawFrame() after record error = %v, %v", presented, err)
	}
}

type failingSubmitBackend struct {
	renderer.SoftRendererBackend
	submitErr error
}

func (b *failingSubmitBackend) Submit(cmd renderer.CommandBuffer, wait, signal renderer.Semaphore, fence renderer.Fence) error {
	if b.submitErr != nil {
		return b.submitErr
	}
	return b.SoftRendererBackend.Submit(cmd, wait, signal, fence)
}

func TestSubmitErrorDoesNotWedgeSlot(t *testing.T) {
	soft := renderer.NewSoftRendererBackend(renderer.WithSoftSurfaceSize(320, 240))
	defer soft.Release()
	lost := errors.New("device lost")
	backend := &failingSubmitBackend{SoftRendererBackend: soft}
	s, err := NewScheduler(backend, soft, &fakeRecorder{})
	if err != nil {
		t.Fatalf("NewScheduler() = %v", err)
	}

	backend.submitErr = lost
	if _, err := s.DrawFrame(); !errors.Is(err, lost) {
		t.Fatalf("DrawFrame() = %v, want %v", err, lost)
	}
	if st := s.SlotState(0); st != SlotIdle {
		t.Errorf("SlotState(0) after failed submit = %v, want %v", st, SlotIdle)
	}

	done := make(chan error, 1)
	go func() { done <- s.WaitIdle() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitIdle() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitIdle() blocked on the fence of a failed submission")
	}

	backend.submitErr = nil
	if presented, err := s.DrawFrame(); err != nil || !presented {
		t.Fatalf("DrawFrame() after submit error = %v, %v", presented, err)
	}

	released := make(chan error, 1)
	go func() { released <- s.Release() }()
	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("Release() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Release() blocked")
	}
}
