// package common contains small shared types and helpers used throughout the engine. They are not interface-wrapped structs,
// just plain values that express commonly used data.
package common

// Extent is a presentation surface size in pixels.
type Extent struct {
	// Width is the surface width in pixels.
	Width int
	// Height is the surface height in pixels.
	Height int
}

// Empty reports whether either dimension is zero, as happens while a window is minimized.
func (e Extent) Empty() bool {
	return e.Width <= 0 || e.Height <= 0
}

// Aspect returns width divided by height, or 1 for an empty extent.
func (e Extent) Aspect() float32 {
	if e.Empty() {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}
