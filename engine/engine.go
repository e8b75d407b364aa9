package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/frame"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/ipc"
	"github.com/Carmen-Shannon/oxy-link/engine/profiler"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-link/engine/resource"
	"github.com/Carmen-Shannon/oxy-link/engine/staging"
	"github.com/Carmen-Shannon/oxy-link/engine/window"
)

const defaultReopenInterval = time.Second

// engine implements the Engine interface.
// Owns the window, the device and every per-device component, and drives them from one thread.
type engine struct {
	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window        window.Window
	windowOptions []window.WindowBuilderOption
	input         window.InputState

	headless       bool
	headlessWidth  int
	headlessHeight int

	backend         renderer.RendererBackend
	surface         frame.Surface
	rendererOptions []renderer.RendererBuilderOption

	transfer       staging.TransferEngine
	stagingOptions []staging.TransferEngineBuilderOption

	manager         resource.Manager
	pipelineOptions []pipeline.PipelineBuilderOption
	initialMesh     *geometry.GeometrySnapshot

	scheduler      frame.Scheduler
	framesInFlight int

	reader         ipc.Reader
	channelOptions []ipc.ChannelBuilderOption
	reopenInterval time.Duration
	lastOpen       time.Time

	rejected uint64

	profiler         *profiler.Profiler
	profilingEnabled bool

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	releases common.ReleaseStack
}

// Engine is the viewer: it polls input, consumes the newest producer update from the geometry
// channel, applies it to the resource manager and draws one frame, all on the calling thread.
type Engine interface {
	// Window returns the underlying window, or nil when running headless.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Backend returns the device the engine renders with.
	Backend() renderer.RendererBackend

	// Manager returns the resource manager holding the active mesh and transform.
	Manager() resource.Manager

	// Scheduler returns the frame scheduler.
	Scheduler() frame.Scheduler

	// Reader returns the geometry channel reader.
	Reader() ipc.Reader

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Step runs one loop iteration: poll input, consume at most one channel update, apply it and
	// draw a frame.
	//
	// Returns:
	//   - bool: true if a frame was presented
	//   - error: a device failure; rejected producer updates are logged, not returned
	Step() (bool, error)

	// Run steps the engine until the window closes, Quit is called or ctx is done, then waits for
	// the device to go idle.
	//
	// Parameters:
	//   - ctx: cancels the loop
	//
	// Returns:
	//   - error: the first device failure, or nil on a normal shutdown
	Run(ctx context.Context) error

	// Counters returns the cumulative activity counters fed to the profiler.
	Counters() profiler.Counters

	// Rejected returns the number of producer meshes that failed validation.
	Rejected() uint64

	// Quit signals Run to stop after the current iteration.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Release tears down every component in reverse creation order.
	//
	// Returns:
	//   - error: joined teardown failures
	Release() error
}

var _ Engine = &engine{}

// NewEngine creates the window (unless headless or supplied), the backend, the staging engine,
// the resource manager, the frame scheduler and the channel reader. The channel is opened if a
// producer already created it, otherwise opening is retried while running.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: a resource failure; everything created so far is released
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		quitChannel:    make(chan struct{}),
		profiler:       profiler.NewProfiler(),
		framesInFlight: frame.DefaultFramesInFlight,
		reopenInterval: defaultReopenInterval,
	}

	for _, opt := range options {
		opt(e)
	}

	if err := e.init(); err != nil {
		return nil, errors.Join(err, e.releases.ReleaseAll())
	}
	return e, nil
}

func (e *engine) init() error {
	switch {
	case e.backend != nil:
		if e.surface == nil {
			return errors.New("backend supplied without a surface")
		}
	case e.headless:
		opts := append([]renderer.RendererBuilderOption{renderer.WithSoftSurfaceSize(e.headlessWidth, e.headlessHeight)}, e.rendererOptions...)
		soft := renderer.NewSoftRendererBackend(opts...)
		e.backend = soft
		e.surface = soft
	default:
		if e.window == nil {
			e.window = window.NewWindow(e.windowOptions...)
		}
		b, err := renderer.NewRendererBackend(renderer.BackendTypeWGPU, e.window.SurfaceDescriptor(), e.rendererOptions...)
		if err != nil {
			return fmt.Errorf("create renderer: %w", err)
		}
		e.backend = b
		e.surface = e.window
	}
	if e.window != nil {
		e.releases.Push("window", e.window.Close)
	}
	e.releases.PushFunc("backend", e.backend.Release)

	transfer, err := staging.NewTransferEngine(e.backend, e.stagingOptions...)
	if err != nil {
		return fmt.Errorf("create staging engine: %w", err)
	}
	e.transfer = transfer
	e.releases.Push("staging", transfer.Close)

	manager, err := resource.NewManager(e.backend, transfer,
		resource.WithFramesInFlight(e.framesInFlight),
		resource.WithPipelineOptions(e.pipelineOptions...),
	)
	if err != nil {
		return fmt.Errorf("create resource manager: %w", err)
	}
	e.manager = manager
	e.releases.Push("resource manager", manager.Release)

	scheduler, err := frame.NewScheduler(e.backend, e.surface, manager, frame.WithFramesInFlight(e.framesInFlight))
	if err != nil {
		return fmt.Errorf("create frame scheduler: %w", err)
	}
	e.scheduler = scheduler
	e.releases.Push("frame scheduler", scheduler.Release)

	if e.initialMesh != nil {
		if err := manager.SetMesh(*e.initialMesh); err != nil {
			return fmt.Errorf("initial mesh: %w", err)
		}
	}

	e.reader = ipc.NewReader(e.channelOptions...)
	e.releases.Push("channel reader", e.reader.Close)
	e.tryOpen()
	return nil
}

// tryOpen opens the channel if the retry interval has elapsed since the last attempt, and
// reopens it when a restarted producer recreated the region under the same name.
func (e *engine) tryOpen() {
	now := time.Now()
	if !e.lastOpen.IsZero() && now.Sub(e.lastOpen) < e.reopenInterval {
		return
	}
	e.lastOpen = now

	if e.reader.IsOpen() {
		if !e.reader.Superseded() {
			return
		}
		common.Logger().Info("geometry channel was recreated, reopening")
		if err := e.reader.Close(); err != nil {
			common.Logger().Warn("closing superseded geometry channel failed", "error", err)
		}
	}

	err := e.reader.Open()
	switch {
	case err == nil:
	case errors.Is(err, ipc.ErrNotFound):
		common.Logger().Debug("geometry channel not created yet", "error", err)
	default:
		common.Logger().Warn("opening geometry channel failed", "error", err)
	}
}

// consume applies at most one channel update to the resource manager.
func (e *engine) consume() error {
	e.tryOpen()
	u, ok := e.reader.TryConsume()
	if !ok {
		return nil
	}

	if u.HasGeometry {
		if err := e.manager.SetMesh(u.Geometry); err != nil {
			if !resource.IsValidation(err) {
				return fmt.Errorf("apply mesh %d: %w", u.Sequence, err)
			}
			e.rejected++
			common.Logger().Warn("rejected producer mesh, keeping the active one", "sequence", u.Sequence, "error", err)
		}
	}

	if u.HasTransform {
		e.manager.SetTransform(u.Transform)
	} else {
		e.manager.ClearTransformOverride()
	}
	return nil
}

func (e *engine) Step() (bool, error) {
	if e.window != nil {
		e.input = e.window.PollInput(e.input)
		if e.input.Quit || !e.window.IsRunning() {
			e.signalQuit()
			return false, nil
		}
		if e.input.ToggleFullscreen {
			e.window.ToggleFullscreen()
		}
		if e.input.Resized {
			e.scheduler.MarkResized()
		}
	}

	if err := e.consume(); err != nil {
		return false, err
	}

	presented, err := e.scheduler.DrawFrame()
	if err != nil {
		return false, fmt.Errorf("draw frame: %w", err)
	}

	if presented && e.profilingEnabled && e.profiler != nil {
		e.profiler.Tick(e.Counters())
	}
	return presented, nil
}

func (e *engine) Run(ctx context.Context) (err error) {
	// Recover from panics inside the render loop so teardown still runs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render loop panic: %v", r)
			e.signalQuit()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return e.scheduler.WaitIdle()
		case <-e.quitChannel:
			return e.scheduler.WaitIdle()
		default:
		}

		frameStart := time.Now()
		if _, err := e.Step(); err != nil {
			return errors.Join(err, e.scheduler.WaitIdle())
		}

		// Frame rate limiting
		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(frameStart); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// Quit signals the run loop to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal the run loop to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) Release() error {
	return e.releases.ReleaseAll()
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Backend() renderer.RendererBackend {
	return e.backend
}

func (e *engine) Manager() resource.Manager {
	return e.manager
}

func (e *engine) Scheduler() frame.Scheduler {
	return e.scheduler
}

func (e *engine) Reader() ipc.Reader {
	return e.reader
}

func (e *engine) Counters() profiler.Counters {
	rs := e.reader.Stats()
	ms := e.manager.Stats()
	ss := e.scheduler.Stats()
	return profiler.Counters{
		Updates:          rs.Consumed,
		GeometrySwaps:    uint64(ms.MeshSwaps),
		PipelineRebuilds: uint64(ms.PipelineBuilds),
		Recreations:      uint64(ss.Recreations),
		Skipped:          uint64(ss.Skipped),
	}
}

func (e *engine) Rejected() uint64 {
	return e.rejected
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
