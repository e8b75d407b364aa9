package geometry

import "errors"

var (
	// ErrBadMagic is returned when the header does not start with Magic.
	ErrBadMagic = errors.New("geometry: bad magic")
	// ErrVersionMismatch is returned when the header version differs from Version.
	ErrVersionMismatch = errors.New("geometry: version mismatch")
	// ErrAttributeCount is returned when the attribute count is zero or above MaxAttributes.
	ErrAttributeCount = errors.New("geometry: attribute count out of range")
	// ErrVertexBytes is returned when vertexCount*stride is zero or above MaxVertexBytes.
	ErrVertexBytes = errors.New("geometry: vertex byte size out of range")
	// ErrIndexBytes is returned when indexCount*indexWidth is above MaxIndexBytes.
	ErrIndexBytes = errors.New("geometry: index byte size out of range")
	// ErrStrideMismatch is returned when the header stride disagrees with the binding stride.
	ErrStrideMismatch = errors.New("geometry: vertex stride does not match binding stride")
	// ErrEmptyUpdate is returned when a header carries neither geometry nor a transform.
	ErrEmptyUpdate = errors.New("geometry: update carries no geometry and no transform")
	// ErrPayloadTooSmall is returned when the payload regions handed to Decode are shorter than
	// the sizes the header declares.
	ErrPayloadTooSmall = errors.New("geometry: payload region smaller than declared size")
)

// IsValidation reports whether err is one of the decode validation failures. Callers treat such
// updates as absent rather than fatal.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrBadMagic, ErrVersionMismatch, ErrAttributeCount, ErrVertexBytes,
		ErrIndexBytes, ErrStrideMismatch, ErrEmptyUpdate, ErrPayloadTooSmall,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
