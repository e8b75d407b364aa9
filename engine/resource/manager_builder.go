package resource

import (
	"time"

	"github.com/Carmen-Shannon/oxy-link/engine/renderer/pipeline"
)

// ManagerBuilderOption is a functional option applied to a manager during construction via NewManager.
type ManagerBuilderOption func(*manager)

// WithFramesInFlight sets how many per-frame uniform buffers are kept. It must match the frame
// scheduler's slot count.
//
// Parameters:
//   - n: slot count, values below 1 are raised to 1 (default 2)
//
// Returns:
//   - ManagerBuilderOption: a function that applies the frames in flight option
func WithFramesInFlight(n int) ManagerBuilderOption {
	return func(m *manager) {
		m.framesInFlight = max(n, 1)
	}
}

// WithClock replaces the clock driving the default animation.
//
// Parameters:
//   - clock: returns the time elapsed since the animation started
//
// Returns:
//   - ManagerBuilderOption: a function that applies the clock option
func WithClock(clock func() time.Duration) ManagerBuilderOption {
	return func(m *manager) {
		m.clock = clock
	}
}

// WithPipelineOptions sets the options every pipeline built by the manager is created with.
//
// Parameters:
//   - options: pipeline options such as pipeline.WithCullMode
//
// Returns:
//   - ManagerBuilderOption: a function that applies the pipeline options
func WithPipelineOptions(options ...pipeline.PipelineBuilderOption) ManagerBuilderOption {
	return func(m *manager) {
		m.pipelineOptions = options
	}
}
