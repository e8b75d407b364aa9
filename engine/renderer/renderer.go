package renderer

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// NewRendererBackend creates the backend of the requested type.
//
// The wgpu backend needs a surface descriptor from the window; the soft backend ignores it and
// emulates its own surface. A wgpu backend that cannot obtain an adapter or device panics, as
// there is nothing to render with.
//
// Parameters:
//   - backendType: which backend to build
//   - surfaceDescriptor: the window surface, required for BackendTypeWGPU
//   - options: functional options applied to the backend
//
// Returns:
//   - RendererBackend: the backend
//   - error: an error for an unknown type or a missing surface descriptor
func NewRendererBackend(backendType RendererBackendType, surfaceDescriptor *wgpu.SurfaceDescriptor, options ...RendererBuilderOption) (RendererBackend, error) {
	cfg := newRendererConfig(options...)
	switch backendType {
	case BackendTypeWGPU:
		if surfaceDescriptor == nil {
			return nil, fmt.Errorf("renderer: wgpu backend requires a surface descriptor")
		}
		return newWGPURendererBackend(surfaceDescriptor, cfg), nil
	case BackendTypeSoft:
		return newSoftRendererBackend(cfg), nil
	default:
		return nil, fmt.Errorf("renderer: unknown backend type %d", backendType)
	}
}
