package renderer

import "testing"

func TestWGPUFenceSignaledWithoutDevice(t *testing.T) {
	f := &wgpuFence{}
	if f.Signaled() {
		t.Fatal("Signaled() = true for a fresh fence")
	}
	f.signaled.Store(true)
	if !f.Signaled() {
		t.Fatal("Signaled() = false after the work-done callback")
	}
	if err := f.Wait(); err != nil {
		t.Fatalf("Wait() on a signaled fence = %v", err)
	}
	f.Reset()
	if f.Signaled() {
		t.Error("Signaled() = true after Reset")
	}
}
