package renderer

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer/pipeline"
)

// RendererBackendType identifies the GPU backend implementation behind a RendererBackend.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeSoft selects the in-process emulated device. It draws nothing but executes
	// copies and submissions asynchronously, so it honors the same fence and buffer lifetime
	// rules as a real GPU.
	BackendTypeSoft
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// BufferUsage is a bit set describing how a buffer may be used.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageCopySrc
	BufferUsageCopyDst

	// BufferUsageStaging marks a host-writable buffer whose contents are copied to device-local buffers.
	BufferUsageStaging
)

// SurfaceStatus reports the health of the swapchain after acquire or present.
type SurfaceStatus int

const (
	SurfaceOK SurfaceStatus = iota

	// SurfaceSuboptimal means the image was usable but the swapchain should be rebuilt.
	SurfaceSuboptimal

	// SurfaceOutOfDate means the swapchain no longer matches the surface and must be rebuilt
	// before the next acquire.
	SurfaceOutOfDate
)

func (s SurfaceStatus) String() string {
	switch s {
	case SurfaceOK:
		return "ok"
	case SurfaceSuboptimal:
		return "suboptimal"
	case SurfaceOutOfDate:
		return "out-of-date"
	default:
		return "unknown"
	}
}

var (
	ErrNoSwapchain         = errors.New("renderer: swapchain not created")
	ErrBufferRange         = errors.New("renderer: buffer range out of bounds")
	ErrBufferReleased      = errors.New("renderer: buffer already released")
	ErrUnsupportedTopology = errors.New("renderer: topology not supported by backend")
	ErrUnsupportedFormat   = errors.New("renderer: vertex format not supported by backend")
	ErrPipelineNotCreated  = errors.New("renderer: pipeline has no backend handle")
)

// Buffer is a device buffer together with its backing memory. Release frees both.
type Buffer interface {
	// Label returns the debug label given at creation.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the usage flags given at creation.
	Usage() BufferUsage

	// Release frees the buffer. It is safe to call more than once.
	Release()
}

// Fence is signaled by the device when submitted work completes.
type Fence interface {
	// Signaled reports whether the work guarded by the fence has completed, without blocking.
	Signaled() bool

	// Wait blocks until the fence is signaled.
	//
	// Returns:
	//   - error: an error if the device was lost while waiting
	Wait() error

	// Reset returns the fence to the unsignaled state.
	Reset()

	// Release frees the fence.
	Release()
}

// Semaphore orders device work against other device work (acquire before render, render
// before present). The host never waits on a semaphore.
type Semaphore interface {
	Release()
}

// CommandBuffer records draw work for one frame. Commands execute when the buffer is passed to
// RendererBackend.Submit; recording is host-only and never touches the device.
type CommandBuffer interface {
	// Reset discards all recorded commands.
	Reset()

	BindPipeline(p pipeline.Pipeline)
	BindUniforms(buf Buffer)
	SetVertexBuffer(buf Buffer)
	SetIndexBuffer(buf Buffer, indexType geometry.IndexType)

	// Draw records a non-indexed draw of vertexCount vertices.
	Draw(vertexCount uint32)

	// DrawIndexed records an indexed draw of indexCount indices.
	DrawIndexed(indexCount uint32)

	// Release frees the command buffer.
	Release()
}

// RendererBackend is the device capability set the engine renders through: buffers, fences,
// semaphores, command buffers, a swapchain and pipelines.
//
// All methods are called from the render thread. Fences may be waited on from any goroutine.
type RendererBackend interface {
	// CreateBuffer allocates a buffer.
	//
	// Parameters:
	//   - label: debug label
	//   - size: size in bytes, must be greater than zero
	//   - usage: usage flags
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: an error if allocation fails
	CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error)

	// WriteBuffer copies data from host memory into buf at offset. For staging buffers the write
	// is visible immediately; for device-local buffers it is ordered before the next submission.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: byte offset in buf
	//   - data: bytes to write
	//
	// Returns:
	//   - error: ErrBufferRange or ErrBufferReleased
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// CopyBuffer submits an asynchronous device copy from src to dst. The returned fence is
	// signaled once the copy has completed and src may be overwritten.
	//
	// Parameters:
	//   - src: the source buffer
	//   - srcOffset: byte offset in src
	//   - dst: the destination buffer
	//   - dstOffset: byte offset in dst
	//   - size: number of bytes to copy
	//
	// Returns:
	//   - Fence: signaled on completion; the caller releases it
	//   - error: ErrBufferRange or ErrBufferReleased
	CopyBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) (Fence, error)

	// CreateFence creates a fence.
	//
	// Parameters:
	//   - signaled: the initial state
	//
	// Returns:
	//   - Fence: the new fence
	//   - error: an error if creation fails
	CreateFence(signaled bool) (Fence, error)

	// CreateSemaphore creates a semaphore.
	CreateSemaphore() (Semaphore, error)

	// CreateCommandBuffer creates an empty command buffer.
	CreateCommandBuffer() (CommandBuffer, error)

	// CreateSwapchain builds the swapchain and its depth attachment for the given extent.
	//
	// Parameters:
	//   - width: framebuffer width in pixels
	//   - height: framebuffer height in pixels
	//
	// Returns:
	//   - error: an error if the surface cannot be configured
	CreateSwapchain(width, height int) error

	// DestroySwapchain releases the swapchain. The device must be idle.
	DestroySwapchain()

	// SwapchainExtent returns the current swapchain size.
	//
	// Returns:
	//   - int: width in pixels
	//   - int: height in pixels
	SwapchainExtent() (int, int)

	// AcquireNextImage acquires a presentable image; signal is signaled when it is ready.
	//
	// Parameters:
	//   - signal: semaphore to signal once the image can be rendered to
	//
	// Returns:
	//   - uint32: the image index
	//   - SurfaceStatus: SurfaceOutOfDate means no image was acquired
	//   - error: a non-recoverable failure
	AcquireNextImage(signal Semaphore) (uint32, SurfaceStatus, error)

	// Submit executes cmd after wait is signaled, then signals signal and fence.
	//
	// Parameters:
	//   - cmd: the recorded commands
	//   - wait: semaphore to wait on before executing, may be nil
	//   - signal: semaphore to signal on completion, may be nil
	//   - fence: fence to signal on completion, may be nil
	//
	// Returns:
	//   - error: an error if submission fails
	Submit(cmd CommandBuffer, wait, signal Semaphore, fence Fence) error

	// Present queues image for display after wait is signaled.
	//
	// Parameters:
	//   - image: the image index from AcquireNextImage
	//   - wait: semaphore to wait on before presenting, may be nil
	//
	// Returns:
	//   - SurfaceStatus: the swapchain health after presenting
	//   - error: a non-recoverable failure
	Present(image uint32, wait Semaphore) (SurfaceStatus, error)

	// CreatePipeline builds the backend object for p and stores it with p.SetHandle.
	//
	// Parameters:
	//   - p: the pipeline description
	//
	// Returns:
	//   - error: ErrUnsupportedTopology, ErrUnsupportedFormat or a backend failure
	CreatePipeline(p pipeline.Pipeline) error

	// DestroyPipeline releases the backend object of p and clears its handle.
	DestroyPipeline(p pipeline.Pipeline)

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// ClipSpaceYDown reports whether clip-space Y points down (Vulkan convention), in which case
	// projection matrices built for a Y-up clip space need their Y axis flipped.
	ClipSpaceYDown() bool

	// Release waits for the device to go idle and frees every backend object.
	Release()
}
