package window

// KeySnapshot is the raw state of the keys the viewer reacts to, sampled once per poll.
type KeySnapshot struct {
	F11    bool
	Escape bool

	// CloseRequested is set when the window system asked the window to close.
	CloseRequested bool

	// Resized is set when the framebuffer changed size since the previous poll.
	Resized bool
}

// InputState carries input across polls. It is owned by the caller and threaded through
// Window.PollInput, so key edges are detected without any package-level state.
type InputState struct {
	// f11Down is the F11 level observed by the previous poll.
	f11Down bool

	// ToggleFullscreen is true for exactly one poll after F11 goes down.
	ToggleFullscreen bool

	// Quit latches once Escape is pressed or the window is asked to close.
	Quit bool

	// Resized is true when the framebuffer changed size since the previous poll.
	Resized bool
}

// Next derives the state after a poll that sampled keys.
//
// Parameters:
//   - keys: the key levels and window events of this poll
//
// Returns:
//   - InputState: the new state; the receiver is not modified
func (s InputState) Next(keys KeySnapshot) InputState {
	return InputState{
		f11Down:          keys.F11,
		ToggleFullscreen: keys.F11 && !s.f11Down,
		Quit:             s.Quit || keys.Escape || keys.CloseRequested,
		Resized:          keys.Resized,
	}
}
