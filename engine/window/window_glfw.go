package window

import (
	"fmt"
	"runtime"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwWindow holds the GLFW-specific window state.
type glfwWindow struct {
	parent  *engineWindow
	window  *glfw.Window
	running bool

	// Windowed placement restored when leaving fullscreen.
	windowedX, windowedY          int
	windowedWidth, windowedHeight int
}

// newPlatformWindow creates the GLFW window and stores it as the internal window.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
// go-gl/glfw: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw
func newPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize GLFW: %v", err)
	}

	// WebGPU provides its own graphics API, so disable OpenGL context creation.
	// Reference: https://www.glfw.org/docs/latest/window_guide.html#window_hints_ctx
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("failed to create GLFW window: %v", err)
	}
	win.SetSizeLimits(w.minWidth, w.minHeight, w.maxWidth, w.maxHeight)

	gw := &glfwWindow{
		parent:  w,
		window:  win,
		running: true,
	}
	w.internalWindow = gw

	// Use framebuffer size callback for pixel-accurate resize events.
	// On high-DPI displays (e.g., macOS Retina), framebuffer size differs from window size.
	// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Window.SetFramebufferSizeCallback
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.width = width
		w.height = height
		w.resized = true
	})

	// Update stored dimensions to reflect actual framebuffer size (may differ from requested on high-DPI).
	fbWidth, fbHeight := win.GetFramebufferSize()
	w.width = fbWidth
	w.height = fbHeight

	if w.fullscreen {
		w.fullscreen = false
		platformSetFullscreen(w, true)
	}
	return nil
}

// platformPollKeys processes pending events and samples the keys the viewer reacts to.
//
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#PollEvents
func platformPollKeys(w *engineWindow) KeySnapshot {
	if w.internalWindow == nil {
		return KeySnapshot{CloseRequested: true}
	}
	gw := w.internalWindow.(*glfwWindow)
	glfw.PollEvents()
	return KeySnapshot{
		F11:            gw.window.GetKey(glfw.Key(common.KeyF11)) == glfw.Press,
		Escape:         gw.window.GetKey(glfw.Key(common.KeyEsc)) == glfw.Press,
		CloseRequested: gw.window.ShouldClose(),
	}
}

// platformWaitEvents blocks until GLFW has at least one event to process.
func platformWaitEvents(w *engineWindow) {
	if w.internalWindow == nil {
		return
	}
	glfw.WaitEvents()
}

func platformFramebufferSize(w *engineWindow) (int, int) {
	if w.internalWindow == nil {
		return 0, 0
	}
	return w.internalWindow.(*glfwWindow).window.GetFramebufferSize()
}

// platformSetFullscreen moves the window onto the primary monitor at its current video mode,
// or back to the windowed placement saved when fullscreen was entered.
//
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Window.SetMonitor
func platformSetFullscreen(w *engineWindow, fullscreen bool) {
	if w.internalWindow == nil || fullscreen == w.fullscreen {
		return
	}
	gw := w.internalWindow.(*glfwWindow)

	if fullscreen {
		monitor := glfw.GetPrimaryMonitor()
		if monitor == nil {
			common.Logger().Warn("no primary monitor, staying windowed")
			return
		}
		gw.windowedX, gw.windowedY = gw.window.GetPos()
		gw.windowedWidth, gw.windowedHeight = gw.window.GetSize()
		mode := monitor.GetVideoMode()
		gw.window.SetMonitor(monitor, 0, 0, mode.Width, mode.Height, mode.RefreshRate)
	} else {
		gw.window.SetMonitor(nil, gw.windowedX, gw.windowedY, gw.windowedWidth, gw.windowedHeight, 0)
	}
	w.fullscreen = fullscreen
	common.Logger().Info("display mode changed", "fullscreen", fullscreen)
}

// platformGetSurfaceDescriptor creates a platform-appropriate wgpu.SurfaceDescriptor from the GLFW window.
// Uses the wgpuglfw bridge package which has per-platform implementations (Windows, X11, Wayland, macOS).
//
// Reference: https://pkg.go.dev/github.com/cogentcore/webgpu/wgpuglfw#GetSurfaceDescriptor
func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	if w.internalWindow == nil {
		return nil
	}
	gw := w.internalWindow.(*glfwWindow)
	return wgpuglfw.GetSurfaceDescriptor(gw.window)
}

// platformIsRunningCheck returns whether the GLFW window is still active.
// Returns false if the internal window is nil, the running flag is cleared, or GLFW reports ShouldClose.
func platformIsRunningCheck(w *engineWindow) bool {
	if w.internalWindow == nil {
		return false
	}
	gw := w.internalWindow.(*glfwWindow)
	return gw.running && !gw.window.ShouldClose()
}

// platformCloseWindow destroys the GLFW window and terminates the GLFW library.
// Returns an error if the internal window has not been initialized.
func platformCloseWindow(w *engineWindow) error {
	if w.internalWindow == nil {
		return fmt.Errorf("window is not initialized")
	}
	gw := w.internalWindow.(*glfwWindow)
	gw.running = false
	gw.window.SetShouldClose(true)
	gw.window.Destroy()
	glfw.Terminate()
	w.internalWindow = nil
	return nil
}
