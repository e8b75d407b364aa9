package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-link/engine/frame"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/ipc"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-link/engine/staging"
	"github.com/Carmen-Shannon/oxy-link/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithWindow sets a custom configured window for the engine to use rather than allowing the engine
// to create and manage one internally. The engine takes ownership and closes it on Release.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithWindowOptions sets the options used when the engine creates its own window.
//
// Parameters:
//   - options: window builder options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindowOptions(options ...window.WindowBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.windowOptions = append(e.windowOptions, options...)
	}
}

// WithHeadless runs the engine without a window on the soft backend, presenting to an emulated
// surface of the given size. Input polling is skipped; stop the engine with Quit or by cancelling
// the Run context.
//
// Parameters:
//   - width: emulated surface width in pixels
//   - height: emulated surface height in pixels
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithHeadless(width, height int) EngineBuilderOption {
	return func(e *engine) {
		e.headless = true
		e.headlessWidth = width
		e.headlessHeight = height
	}
}

// WithBackend supplies an already created backend and the surface it presents to. The engine
// takes ownership of the backend. Overrides WithHeadless and window creation.
//
// Parameters:
//   - backend: the device
//   - surface: the presentation surface the frame scheduler sizes the swapchain from
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBackend(backend renderer.RendererBackend, surface frame.Surface) EngineBuilderOption {
	return func(e *engine) {
		e.backend = backend
		e.surface = surface
	}
}

// WithRendererOptions sets the options passed to the backend the engine creates.
//
// Parameters:
//   - options: renderer builder options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRendererOptions(options ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.rendererOptions = append(e.rendererOptions, options...)
	}
}

// WithChannelOptions sets the options used to create the geometry channel reader.
//
// Parameters:
//   - options: channel builder options (name, directory, retries, acknowledgment)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithChannelOptions(options ...ipc.ChannelBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.channelOptions = append(e.channelOptions, options...)
	}
}

// WithStagingOptions sets the options used to create the staging transfer engine.
//
// Parameters:
//   - options: transfer engine builder options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithStagingOptions(options ...staging.TransferEngineBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.stagingOptions = append(e.stagingOptions, options...)
	}
}

// WithPipelineOptions sets the fixed-function options every mesh pipeline is built with.
//
// Parameters:
//   - options: pipeline builder options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPipelineOptions(options ...pipeline.PipelineBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.pipelineOptions = append(e.pipelineOptions, options...)
	}
}

// WithFramesInFlight sets the number of frame slots. Values < 1 keep the default.
//
// Parameters:
//   - n: frames in flight (default frame.DefaultFramesInFlight)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFramesInFlight(n int) EngineBuilderOption {
	return func(e *engine) {
		if n >= 1 {
			e.framesInFlight = n
		}
	}
}

// WithInitialMesh installs a mesh before the first frame, so something is drawn before a producer
// connects.
//
// Parameters:
//   - g: the mesh; it is copied
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithInitialMesh(g geometry.GeometrySnapshot) EngineBuilderOption {
	return func(e *engine) {
		mesh := g.Clone()
		e.initialMesh = &mesh
	}
}

// WithReopenInterval sets how often the engine retries opening the geometry channel while no
// producer has created it.
//
// Parameters:
//   - d: retry interval (default 1s); values <= 0 retry every frame
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithReopenInterval(d time.Duration) EngineBuilderOption {
	return func(e *engine) {
		e.reopenInterval = max(d, 0)
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
