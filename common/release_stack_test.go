package common

import (
	"errors"
	"testing"
)

func TestReleaseStackReverseOrder(t *testing.T) {
	var s ReleaseStack
	var order []string
	s.PushFunc("device", func() { order = append(order, "device") })
	s.PushFunc("buffer", func() { order = append(order, "buffer") })
	s.PushFunc("pipeline", func() { order = append(order, "pipeline") })

	if err := s.ReleaseAll(); err != nil {
		t.Fatalf("ReleaseAll() = %v, want nil", err)
	}
	want := []string{"pipeline", "buffer", "device"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("release order = %v, want %v", order, want)
		}
	}
	if s.Len() != 0 {
		t.Errorf("Len() after ReleaseAll = %d, want 0", s.Len())
	}
}

func TestReleaseStackContinuesAfterFailure(t *testing.T) {
	var s ReleaseStack
	boom := errors.New("boom")
	ran := false
	s.PushFunc("first", func() { ran = true })
	s.Push("second", func() error { return boom })

	err := s.ReleaseAll()
	if !errors.Is(err, boom) {
		t.Errorf("ReleaseAll() = %v, want wrapped %v", err, boom)
	}
	if !ran {
		t.Error("ReleaseAll() stopped after a failing step")
	}
}
