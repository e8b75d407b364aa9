package frame

// DefaultFramesInFlight is the number of frame slots used when WithFramesInFlight is not given.
const DefaultFramesInFlight = 2

// SchedulerBuilderOption is a functional option applied to a scheduler during construction via NewScheduler.
type SchedulerBuilderOption func(*scheduler)

// WithFramesInFlight sets how many frames may be recorded or executing at once.
//
// Parameters:
//   - n: slot count, values below 1 are raised to 1 (default 2)
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the frames in flight option
func WithFramesInFlight(n int) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.framesInFlight = max(n, 1)
	}
}
