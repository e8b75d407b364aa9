package resource

import "errors"

// Validation errors reject a mesh before anything is replaced; the previously active mesh stays in use.
var (
	ErrZeroStride       = errors.New("resource: vertex stride is zero")
	ErrEmptyVertexData  = errors.New("resource: vertex data is empty")
	ErrVertexMisaligned = errors.New("resource: vertex data is not a multiple of the stride")
	ErrIndexMisaligned  = errors.New("resource: index data is not a multiple of the index width")
)

// IsValidation reports whether err rejects a mesh for malformed content rather than a device failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrZeroStride) ||
		errors.Is(err, ErrEmptyVertexData) ||
		errors.Is(err, ErrVertexMisaligned) ||
		errors.Is(err, ErrIndexMisaligned)
}
