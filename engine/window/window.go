package window

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window provides the platform window the viewer presents into, and samples its input.
type Window interface {
	// PollInput processes pending window events without blocking and derives the next input state.
	//
	// Parameters:
	//   - state: the state returned by the previous poll (zero value for the first)
	//
	// Returns:
	//   - InputState: the new state
	PollInput(state InputState) InputState

	// WaitEvents blocks until at least one window event arrives.
	WaitEvents()

	// FramebufferSize returns the drawable size in pixels. It is zero while the window is minimized.
	//
	// Returns:
	//   - int: width in pixels
	//   - int: height in pixels
	FramebufferSize() (int, int)

	// ToggleFullscreen switches between windowed mode and fullscreen on the primary monitor.
	ToggleFullscreen()

	// IsFullscreen reports whether the window is fullscreen.
	IsFullscreen() bool

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is platform-appropriate (Windows HWND, X11 Xlib, Wayland, macOS Metal, etc.)
	// and is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still active.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// Width returns the current framebuffer width in pixels.
	Width() int

	// Height returns the current framebuffer height in pixels.
	Height() int
}

// engineWindow is the implementation of the Window interface.
// Holds window configuration and GLFW state.
type engineWindow struct {
	// title is the window title displayed in the title bar.
	title string

	// maxWidth is the maximum allowed window width during resize.
	maxWidth int

	// maxHeight is the maximum allowed window height during resize.
	maxHeight int

	// minWidth is the minimum allowed window width during resize.
	minWidth int

	// minHeight is the minimum allowed window height during resize.
	minHeight int

	// width is the current framebuffer width in pixels.
	width int

	// height is the current framebuffer height in pixels.
	height int

	// fullscreen is the initial mode, then the current one.
	fullscreen bool

	// resized is set by the framebuffer callback and cleared by PollInput.
	resized bool

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any
}

var _ Window = &engineWindow{}

// NewWindow creates a new Window with the specified options.
// Applies default values first, then each option in order.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
func NewWindow(options ...WindowBuilderOption) Window {
	w := &engineWindow{
		title:     "oxy-link",
		maxWidth:  3840,
		maxHeight: 2160,
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		panic(fmt.Sprintf("failed to create platform window: %v", err))
	}
	return w
}

func (w *engineWindow) PollInput(state InputState) InputState {
	keys := platformPollKeys(w)
	keys.Resized = w.resized
	w.resized = false
	return state.Next(keys)
}

func (w *engineWindow) WaitEvents() {
	platformWaitEvents(w)
}

func (w *engineWindow) FramebufferSize() (int, int) {
	return platformFramebufferSize(w)
}

func (w *engineWindow) ToggleFullscreen() {
	platformSetFullscreen(w, !w.fullscreen)
}

func (w *engineWindow) IsFullscreen() bool {
	return w.fullscreen
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) Width() int {
	return w.width
}

func (w *engineWindow) Height() int {
	return w.height
}
