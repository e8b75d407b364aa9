package window

import "testing"

func TestInputStateFullscreenEdge(t *testing.T) {
	var s InputState
	levels := []bool{false, true, true, true, false, true}
	want := []bool{false, true, false, false, false, true}
	for i, down := range levels {
		s = s.Next(KeySnapshot{F11: down})
		if s.ToggleFullscreen != want[i] {
			t.Errorf("poll %d (F11 %v): ToggleFullscreen = %v, want %v", i, down, s.ToggleFullscreen, want[i])
		}
	}
}

func TestInputStateQuitLatches(t *testing.T) {
	var s InputState
	s = s.Next(KeySnapshot{})
	if s.Quit {
		t.Fatal("Quit set without input")
	}
	s = s.Next(KeySnapshot{Escape: true})
	s = s.Next(KeySnapshot{})
	if !s.Quit {
		t.Error("Quit did not latch after Escape")
	}

	var c InputState
	if c = c.Next(KeySnapshot{CloseRequested: true}); !c.Quit {
		t.Error("Quit not set by close request")
	}
}

func TestInputStateResizedPerPoll(t *testing.T) {
	var s InputState
	if s = s.Next(KeySnapshot{Resized: true}); !s.Resized {
		t.Error("Resized not reported")
	}
	if s = s.Next(KeySnapshot{}); s.Resized {
		t.Error("Resized carried into the next poll")
	}
}
