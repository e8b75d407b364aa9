package renderer

import (
	"time"

	"github.com/Carmen-Shannon/oxy-link/common"
)

// rendererConfig collects the options applied before a backend is constructed.
type rendererConfig struct {
	presentMode          PresentMode
	forceFallbackAdapter bool
	clearColor           [4]float64

	softWorkers         int
	softCopyLatency     time.Duration
	softSurface         common.Extent
	softSwapchainImages uint32
}

func newRendererConfig(options ...RendererBuilderOption) rendererConfig {
	cfg := rendererConfig{
		presentMode:         PresentModeVSync,
		clearColor:          [4]float64{0.1, 0.1, 0.1, 1.0},
		softWorkers:         2,
		softSurface:         common.Extent{Width: 800, Height: 600},
		softSwapchainImages: 3,
	}
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}

// RendererBuilderOption is a functional option applied to a backend during construction via
// NewRendererBackend or NewSoftRendererBackend.
type RendererBuilderOption func(*rendererConfig)

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(c *rendererConfig) {
		c.presentMode = mode
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(c *rendererConfig) {
		c.forceFallbackAdapter = force
	}
}

// WithClearColor sets the color the frame is cleared to before drawing.
//
// Parameters:
//   - r, g, b, a: color components in [0, 1]
//
// Returns:
//   - RendererBuilderOption: a function that applies the clear color option
func WithClearColor(r, g, b, a float64) RendererBuilderOption {
	return func(c *rendererConfig) {
		c.clearColor = [4]float64{r, g, b, a}
	}
}

// WithSoftWorkers sets how many workers the soft backend executes device work on.
//
// Parameters:
//   - n: worker count, values below 1 are raised to 1 (default 2)
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker count option
func WithSoftWorkers(n int) RendererBuilderOption {
	return func(c *rendererConfig) {
		c.softWorkers = max(n, 1)
	}
}

// WithSoftCopyLatency delays every soft backend copy, widening the window in which a caller
// could reuse memory the device is still reading.
//
// Parameters:
//   - d: the delay per copy (default 0)
//
// Returns:
//   - RendererBuilderOption: a function that applies the latency option
func WithSoftCopyLatency(d time.Duration) RendererBuilderOption {
	return func(c *rendererConfig) {
		c.softCopyLatency = d
	}
}

// WithSoftSurfaceSize sets the initial emulated surface size of the soft backend.
//
// Parameters:
//   - width, height: size in pixels (default 800x600)
//
// Returns:
//   - RendererBuilderOption: a function that applies the surface size option
func WithSoftSurfaceSize(width, height int) RendererBuilderOption {
	return func(c *rendererConfig) {
		c.softSurface = common.Extent{Width: width, Height: height}
	}
}

// WithSoftSwapchainImages sets how many images the soft swapchain rotates through.
//
// Parameters:
//   - n: image count, values below 1 are raised to 1 (default 3)
//
// Returns:
//   - RendererBuilderOption: a function that applies the image count option
func WithSoftSwapchainImages(n int) RendererBuilderOption {
	return func(c *rendererConfig) {
		c.softSwapchainImages = uint32(max(n, 1))
	}
}
