package common

import (
	"errors"
	"fmt"
)

// ReleaseStack records teardown steps in creation order and runs them in reverse.
// It makes "destroy in reverse order of creation" an explicit list instead of a
// convention each Close method has to get right by hand.
type ReleaseStack struct {
	steps []releaseStep
}

type releaseStep struct {
	name string
	fn   func() error
}

// Push registers a teardown step. Steps run last-in, first-out.
//
// Parameters:
//   - name: label used when wrapping an error returned by fn
//   - fn: the teardown function
func (s *ReleaseStack) Push(name string, fn func() error) {
	s.steps = append(s.steps, releaseStep{name: name, fn: fn})
}

// PushFunc registers a teardown step that cannot fail.
//
// Parameters:
//   - name: label for the step
//   - fn: the teardown function
func (s *ReleaseStack) PushFunc(name string, fn func()) {
	s.Push(name, func() error {
		fn()
		return nil
	})
}

// Len returns the number of pending teardown steps.
func (s *ReleaseStack) Len() int {
	return len(s.steps)
}

// ReleaseAll runs every registered step in reverse order, even when earlier steps fail,
// and empties the stack.
//
// Returns:
//   - error: every step failure joined with errors.Join, or nil
func (s *ReleaseStack) ReleaseAll() error {
	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.fn(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", step.name, err))
		}
	}
	s.steps = nil
	return errors.Join(errs...)
}
