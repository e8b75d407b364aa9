package renderer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer/pipeline"
)

// SoftStats counts the work executed by a soft backend.
type SoftStats struct {
	Copies           int
	Submits          int
	Draws            int
	IndexedDraws     int
	Acquires         int
	Presents         int
	SwapchainCreates int
	PipelinesCreated int
	PipelinesAlive   int
	LiveBuffers      int

	// LastDraw is the most recent draw executed by a submission.
	LastDraw SoftDraw

	// Violations lists misuse detected while executing device work: buffers used after
	// release, draws without a pipeline, draws reading past a buffer.
	Violations []string
}

// SoftDraw describes one executed draw.
type SoftDraw struct {
	PipelineKey string
	Indexed     bool
	Count       uint32
	IndexType   geometry.IndexType
}

// softRendererBackendImpl emulates a device in process. Copies and submissions run on a worker
// pool and signal their fences from there, so callers observe the same asynchrony a GPU queue gives.
type softRendererBackendImpl struct {
	mu   *sync.Mutex
	pool worker.DynamicWorkerPool

	taskID  atomic.Int64
	pending *sync.WaitGroup

	copyLatency time.Duration

	surface         common.Extent
	waitEventsHook  func()
	swapchain       common.Extent
	swapchainAlive  bool
	swapchainImages uint32
	nextImage       uint32

	acquireStatuses []SurfaceStatus
	presentStatuses []SurfaceStatus

	stats    SoftStats
	released bool
}

// SoftRendererBackend is a RendererBackend with hooks for driving and inspecting the emulated
// device. It also acts as the headless presentation surface.
type SoftRendererBackend interface {
	RendererBackend

	// ReadBuffer returns a copy of the buffer contents.
	//
	// Parameters:
	//   - buf: a buffer created by this backend
	//
	// Returns:
	//   - []byte: the contents
	//   - error: ErrBufferReleased if the buffer was released
	ReadBuffer(buf Buffer) ([]byte, error)

	// Stats returns a snapshot of the work executed so far. Pending work is not included;
	// call WaitIdle first for a settled view.
	Stats() SoftStats

	// SetSurfaceSize changes the emulated surface size. Acquiring against a swapchain of a
	// different size reports SurfaceOutOfDate, as a resized window does.
	SetSurfaceSize(width, height int)

	// FramebufferSize returns the emulated surface size.
	FramebufferSize() (int, int)

	// WaitEvents runs the hook installed with SetWaitEventsHook, standing in for a blocking
	// window event wait.
	WaitEvents()

	// SetWaitEventsHook installs the function WaitEvents runs.
	SetWaitEventsHook(hook func())

	// QueueAcquireStatus makes the next AcquireNextImage calls report the given statuses in order.
	QueueAcquireStatus(statuses ...SurfaceStatus)

	// QueuePresentStatus makes the next Present calls report the given statuses in order.
	QueuePresentStatus(statuses ...SurfaceStatus)
}

var _ SoftRendererBackend = &softRendererBackendImpl{}

// NewSoftRendererBackend creates an emulated device.
//
// Parameters:
//   - options: functional options; see WithSoftWorkers, WithSoftCopyLatency, WithSoftSurfaceSize
//
// Returns:
//   - SoftRendererBackend: the backend
func NewSoftRendererBackend(options ...RendererBuilderOption) SoftRendererBackend {
	cfg := newRendererConfig(options...)
	return newSoftRendererBackend(cfg)
}

func newSoftRendererBackend(cfg rendererConfig) *softRendererBackendImpl {
	return &softRendererBackendImpl{
		mu:              &sync.Mutex{},
		pool:            worker.NewDynamicWorkerPool(cfg.softWorkers, 256, 1*time.Second),
		pending:         &sync.WaitGroup{},
		copyLatency:     cfg.softCopyLatency,
		surface:         cfg.softSurface,
		swapchainImages: cfg.softSwapchainImages,
	}
}

type softBuffer struct {
	mu       *sync.Mutex
	backend  *softRendererBackendImpl
	label    string
	size     uint64
	usage    BufferUsage
	data     []byte
	released bool
}

func (b *softBuffer) Label() string      { return b.label }
func (b *softBuffer) Size() uint64       { return b.size }
func (b *softBuffer) Usage() BufferUsage { return b.usage }

func (b *softBuffer) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	b.data = nil
	b.mu.Unlock()

	b.backend.mu.Lock()
	b.backend.stats.LiveBuffers--
	b.backend.mu.Unlock()
}

func (b *softBuffer) read(offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, fmt.Errorf("%w: %s", ErrBufferReleased, b.label)
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

func (b *softBuffer) write(offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return fmt.Errorf("%w: %s", ErrBufferReleased, b.label)
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *softBuffer) isReleased() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

type softFence struct {
	mu       *sync.Mutex
	cond     *sync.Cond
	signaled bool
}

func newSoftFence(signaled bool) *softFence {
	mu := &sync.Mutex{}
	return &softFence{mu: mu, cond: sync.NewCond(mu), signaled: signaled}
}

func (f *softFence) Signaled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled
}

func (f *softFence) Wait() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.signaled {
		f.cond.Wait()
	}
	return nil
}

func (f *softFence) Reset() {
	f.mu.Lock()
	f.signaled = false
	f.mu.Unlock()
}

func (f *softFence) Release() {}

func (f *softFence) signal() {
	f.mu.Lock()
	f.signaled = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

// softSemaphore is a binary semaphore: signal sets it, wait blocks until set and clears it.
type softSemaphore struct {
	fence *softFence
}

func (s *softSemaphore) Release() {}

func (s *softSemaphore) signal() {
	s.fence.signal()
}

func (s *softSemaphore) wait() {
	_ = s.fence.Wait()
	s.fence.Reset()
}

type softPipeline struct {
	key string
}

func checkRange(buf *softBuffer, offset, size uint64) error {
	if offset > buf.size || size > buf.size-offset {
		return fmt.Errorf("%w: %s [%d, +%d) of %d", ErrBufferRange, buf.label, offset, size, buf.size)
	}
	return nil
}

// submit runs fn on the worker pool and tracks it for WaitIdle.
func (b *softRendererBackendImpl) submit(fn func()) {
	b.pending.Add(1)
	id := int(b.taskID.Add(1))
	b.pool.SubmitTask(worker.Task{
		ID: id,
		Do: func() (any, error) {
			defer b.pending.Done()
			fn()
			return nil, nil
		},
	})
}

func (b *softRendererBackendImpl) violation(format string, args ...any) {
	b.mu.Lock()
	b.stats.Violations = append(b.stats.Violations, fmt.Sprintf(format, args...))
	b.mu.Unlock()
}

func (b *softRendererBackendImpl) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: %s has zero size", ErrBufferRange, label)
	}
	b.mu.Lock()
	b.stats.LiveBuffers++
	b.mu.Unlock()
	return &softBuffer{
		mu:      &sync.Mutex{},
		backend: b,
		label:   label,
		size:    size,
		usage:   usage,
		data:    make([]byte, size),
	}, nil
}

func (b *softRendererBackendImpl) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	sb := buf.(*softBuffer)
	if err := checkRange(sb, offset, uint64(len(data))); err != nil {
		return err
	}
	return sb.write(offset, data)
}

func (b *softRendererBackendImpl) CopyBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) (Fence, error) {
	s, d := src.(*softBuffer), dst.(*softBuffer)
	if err := checkRange(s, srcOffset, size); err != nil {
		return nil, err
	}
	if err := checkRange(d, dstOffset, size); err != nil {
		return nil, err
	}
	if s.isReleased() || d.isReleased() {
		return nil, ErrBufferReleased
	}

	fence := newSoftFence(false)
	b.submit(func() {
		if b.copyLatency > 0 {
			time.Sleep(b.copyLatency)
		}
		data, err := s.read(srcOffset, size)
		if err == nil {
			err = d.write(dstOffset, data)
		}
		if err != nil {
			b.violation("copy %s -> %s: %v", s.label, d.label, err)
		}
		b.mu.Lock()
		b.stats.Copies++
		b.mu.Unlock()
		fence.signal()
	})
	return fence, nil
}

func (b *softRendererBackendImpl) CreateFence(signaled bool) (Fence, error) {
	return newSoftFence(signaled), nil
}

func (b *softRendererBackendImpl) CreateSemaphore() (Semaphore, error) {
	return &softSemaphore{fence: newSoftFence(false)}, nil
}

func (b *softRendererBackendImpl) CreateCommandBuffer() (CommandBuffer, error) {
	return newCommandList(), nil
}

func (b *softRendererBackendImpl) CreateSwapchain(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("renderer: invalid swapchain extent %dx%d", width, height)
	}
	b.swapchain = common.Extent{Width: width, Height: height}
	b.swapchainAlive = true
	b.nextImage = 0
	b.stats.SwapchainCreates++
	return nil
}

func (b *softRendererBackendImpl) DestroySwapchain() {
	b.mu.Lock()
	b.swapchainAlive = false
	b.mu.Unlock()
}

func (b *softRendererBackendImpl) SwapchainExtent() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.swapchain.Width, b.swapchain.Height
}

func (b *softRendererBackendImpl) AcquireNextImage(signal Semaphore) (uint32, SurfaceStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.swapchainAlive {
		return 0, SurfaceOutOfDate, ErrNoSwapchain
	}
	status := SurfaceOK
	if len(b.acquireStatuses) > 0 {
		status = b.acquireStatuses[0]
		b.acquireStatuses = b.acquireStatuses[1:]
	} else if b.surface != b.swapchain {
		status = SurfaceOutOfDate
	}
	if status == SurfaceOutOfDate {
		return 0, status, nil
	}

	b.stats.Acquires++
	image := b.nextImage
	b.nextImage = (b.nextImage + 1) % b.swapchainImages
	if signal != nil {
		signal.(*softSemaphore).signal()
	}
	return image, status, nil
}

func (b *softRendererBackendImpl) Submit(cmd CommandBuffer, wait, signal Semaphore, fence Fence) error {
	commands := cmd.(*commandList).snapshot()
	b.submit(func() {
		if wait != nil {
			wait.(*softSemaphore).wait()
		}
		b.execute(commands)
		b.mu.Lock()
		b.stats.Submits++
		b.mu.Unlock()
		if signal != nil {
			signal.(*softSemaphore).signal()
		}
		if fence != nil {
			fence.(*softFence).signal()
		}
	})
	return nil
}

// execute replays recorded commands, checking the bound state each draw relies on.
func (b *softRendererBackendImpl) execute(commands []command) {
	var (
		bound     pipeline.Pipeline
		vertex    *softBuffer
		index     *softBuffer
		indexType geometry.IndexType
	)
	for _, c := range commands {
		switch c.kind {
		case commandBindPipeline:
			bound = c.pipeline
		case commandBindUniforms:
			if u := c.buffer.(*softBuffer); u.isReleased() {
				b.violation("uniform buffer %s used after release", u.label)
			}
		case commandSetVertexBuffer:
			vertex = c.buffer.(*softBuffer)
		case commandSetIndexBuffer:
			index = c.buffer.(*softBuffer)
			indexType = c.indexType
		case commandDraw, commandDrawIndexed:
			indexed := c.kind == commandDrawIndexed
			b.checkDraw(bound, vertex, index, indexType, c.count, indexed)
		}
	}
}

func (b *softRendererBackendImpl) checkDraw(p pipeline.Pipeline, vertex, index *softBuffer, indexType geometry.IndexType, count uint32, indexed bool) {
	if p == nil || p.Handle() == nil {
		b.violation("draw without a created pipeline")
		return
	}
	if vertex == nil || vertex.isReleased() {
		b.violation("draw with missing or released vertex buffer")
		return
	}
	layout := p.Layout()
	if indexed {
		if index == nil || index.isReleased() {
			b.violation("indexed draw with missing or released index buffer")
			return
		}
		if uint64(count)*uint64(indexType.Width()) > index.size {
			b.violation("indexed draw reads past index buffer %s", index.label)
		}
	} else if uint64(count)*uint64(layout.Binding.Stride) > vertex.size {
		b.violation("draw reads past vertex buffer %s", vertex.label)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if indexed {
		b.stats.IndexedDraws++
	} else {
		b.stats.Draws++
	}
	b.stats.LastDraw = SoftDraw{
		PipelineKey: p.PipelineKey(),
		Indexed:     indexed,
		Count:       count,
		IndexType:   indexType,
	}
}

func (b *softRendererBackendImpl) Present(image uint32, wait Semaphore) (SurfaceStatus, error) {
	if wait != nil {
		wait.(*softSemaphore).wait()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.swapchainAlive {
		return SurfaceOutOfDate, ErrNoSwapchain
	}
	b.stats.Presents++
	if len(b.presentStatuses) > 0 {
		status := b.presentStatuses[0]
		b.presentStatuses = b.presentStatuses[1:]
		return status, nil
	}
	return SurfaceOK, nil
}

func (b *softRendererBackendImpl) CreatePipeline(p pipeline.Pipeline) error {
	layout := p.Layout()
	if layout.Topology > geometry.TopologyTriangleFan {
		return fmt.Errorf("%w: %d", ErrUnsupportedTopology, layout.Topology)
	}
	for _, a := range layout.Attributes {
		if a.Format.Size() == 0 {
			return fmt.Errorf("%w: %d", ErrUnsupportedFormat, a.Format)
		}
	}
	p.SetHandle(&softPipeline{key: p.PipelineKey()})

	b.mu.Lock()
	b.stats.PipelinesCreated++
	b.stats.PipelinesAlive++
	b.mu.Unlock()
	return nil
}

func (b *softRendererBackendImpl) DestroyPipeline(p pipeline.Pipeline) {
	if p == nil || p.Handle() == nil {
		return
	}
	p.SetHandle(nil)
	b.mu.Lock()
	b.stats.PipelinesAlive--
	b.mu.Unlock()
}

func (b *softRendererBackendImpl) WaitIdle() error {
	b.pending.Wait()
	return nil
}

func (b *softRendererBackendImpl) ClipSpaceYDown() bool {
	return true
}

func (b *softRendererBackendImpl) Release() {
	b.pending.Wait()
	b.mu.Lock()
	b.released = true
	b.swapchainAlive = false
	b.mu.Unlock()
}

func (b *softRendererBackendImpl) ReadBuffer(buf Buffer) ([]byte, error) {
	sb := buf.(*softBuffer)
	return sb.read(0, sb.size)
}

func (b *softRendererBackendImpl) Stats() SoftStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Violations = append([]string(nil), b.stats.Violations...)
	return s
}

func (b *softRendererBackendImpl) SetSurfaceSize(width, height int) {
	b.mu.Lock()
	b.surface = common.Extent{Width: width, Height: height}
	b.mu.Unlock()
}

func (b *softRendererBackendImpl) FramebufferSize() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface.Width, b.surface.Height
}

func (b *softRendererBackendImpl) WaitEvents() {
	b.mu.Lock()
	hook := b.waitEventsHook
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (b *softRendererBackendImpl) SetWaitEventsHook(hook func()) {
	b.mu.Lock()
	b.waitEventsHook = hook
	b.mu.Unlock()
}

func (b *softRendererBackendImpl) QueueAcquireStatus(statuses ...SurfaceStatus) {
	b.mu.Lock()
	b.acquireStatuses = append(b.acquireStatuses, statuses...)
	b.mu.Unlock()
}

func (b *softRendererBackendImpl) QueuePresentStatus(statuses ...SurfaceStatus) {
	b.mu.Lock()
	b.presentStatuses = append(b.presentStatuses, statuses...)
	b.mu.Unlock()
}
