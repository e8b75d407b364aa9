//go:build windows

package ipc

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestOpenRegionDoesNotCreateMapping(t *testing.T) {
	name := fmt.Sprintf(`Local\OxyLinkOpenOnly%d`, time.Now().UnixNano())

	for i := range 2 {
		if _, err := OpenRegion(name, ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("OpenRegion() attempt %d = %v, want %v", i, err, ErrNotFound)
		}
	}

	w, err := CreateRegion(name, "")
	if err != nil {
		t.Fatalf("CreateRegion() = %v", err)
	}
	defer w.Close()
	w.VertexRegion()[0] = 0xAB

	r, err := OpenRegion(name, "")
	if err != nil {
		t.Fatalf("OpenRegion() after create = %v", err)
	}
	defer r.Close()
	if got := r.VertexRegion()[0]; got != 0xAB {
		t.Errorf("VertexRegion()[0] = %#x, want 0xab", got)
	}
	if r.Superseded() {
		t.Error("Superseded() = true for a named mapping")
	}
}
