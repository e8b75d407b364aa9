package renderer

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat    *wgpu.TextureFormat
	depthTexture     *wgpu.Texture
	depthTextureView *wgpu.TextureView
	extent           common.Extent
	configured       bool

	presentMode wgpu.PresentMode
	clearColor  wgpu.Color

	// uniformLayout is the single bind group layout every pipeline uses: one uniform block at binding 0.
	uniformLayout *wgpu.BindGroupLayout

	// Surface texture held between AcquireNextImage and Present.
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	releaseStack *common.ReleaseStack
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, cfg rendererConfig) *wgpuRendererBackendImpl {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:           &sync.Mutex{},
		instance:     wgpu.CreateInstance(nil),
		presentMode:  wgpu.PresentModeFifo,
		releaseStack: &common.ReleaseStack{},
		clearColor: wgpu.Color{
			R: cfg.clearColor[0], G: cfg.clearColor[1], B: cfg.clearColor[2], A: cfg.clearColor[3],
		},
	}
	if cfg.presentMode == PresentModeUncapped {
		w.presentMode = wgpu.PresentModeImmediate
	}
	w.releaseStack.PushFunc("instance", w.instance.Release)

	w.surface = w.instance.CreateSurface(surfaceDescriptor)
	w.releaseStack.PushFunc("surface", w.surface.Release)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		panic(err)
	}
	w.adapter = a
	w.releaseStack.PushFunc("adapter", a.Release)

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
	})
	if err != nil {
		panic(err)
	}
	w.device = d
	w.queue = d.GetQueue()
	w.releaseStack.PushFunc("device", d.Release)

	capabilities := w.surface.GetCapabilities(w.adapter)
	w.surfaceFormat = &capabilities.Formats[0]

	w.uniformLayout, err = d.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Uniform Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex,
				Buffer: wgpu.BufferBindingLayout{
					Type:           wgpu.BufferBindingTypeUniform,
					MinBindingSize: shader.UniformSize,
				},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	w.releaseStack.PushFunc("uniform layout", w.uniformLayout.Release)

	return w
}

type wgpuBuffer struct {
	label     string
	size      uint64
	usage     BufferUsage
	buffer    *wgpu.Buffer
	bindGroup *wgpu.BindGroup
	released  atomic.Bool
}

func (b *wgpuBuffer) Label() string      { return b.label }
func (b *wgpuBuffer) Size() uint64       { return b.size }
func (b *wgpuBuffer) Usage() BufferUsage { return b.usage }

func (b *wgpuBuffer) Release() {
	if b.released.Swap(true) {
		return
	}
	if b.bindGroup != nil {
		b.bindGroup.Release()
	}
	b.buffer.Release()
}

// wgpuFence is signaled from the queue's work-done callback. WebGPU has no host-waitable fence
// object, so Wait polls the device until the callback has run.
type wgpuFence struct {
	device   *wgpu.Device
	signaled atomic.Bool
}

// Signaled polls the device without blocking so a pending work-done callback can run first.
func (f *wgpuFence) Signaled() bool {
	if !f.signaled.Load() && f.device != nil {
		f.device.Poll(false, nil)
	}
	return f.signaled.Load()
}

func (f *wgpuFence) Wait() error {
	for !f.signaled.Load() {
		f.device.Poll(true, nil)
	}
	return nil
}

func (f *wgpuFence) Reset() {
	f.signaled.Store(false)
}

func (f *wgpuFence) Release() {}

// wgpuSemaphore is a no-op: a single WebGPU queue already orders acquire, render and present.
type wgpuSemaphore struct{}

func (wgpuSemaphore) Release() {}

type wgpuPipelineHandle struct {
	module   *wgpu.ShaderModule
	layout   *wgpu.PipelineLayout
	pipeline *wgpu.RenderPipeline
}

func toWGPUUsage(usage BufferUsage) wgpu.BufferUsage {
	var u wgpu.BufferUsage
	if usage&BufferUsageVertex != 0 {
		u |= wgpu.BufferUsageVertex
	}
	if usage&BufferUsageIndex != 0 {
		u |= wgpu.BufferUsageIndex
	}
	if usage&BufferUsageUniform != 0 {
		u |= wgpu.BufferUsageUniform
	}
	if usage&BufferUsageCopySrc != 0 {
		u |= wgpu.BufferUsageCopySrc
	}
	if usage&BufferUsageCopyDst != 0 {
		u |= wgpu.BufferUsageCopyDst
	}
	if usage&BufferUsageStaging != 0 {
		u |= wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	}
	return u
}

func toWGPUTopology(t geometry.Topology) (wgpu.PrimitiveTopology, error) {
	switch t {
	case geometry.TopologyPointList:
		return wgpu.PrimitiveTopologyPointList, nil
	case geometry.TopologyLineList:
		return wgpu.PrimitiveTopologyLineList, nil
	case geometry.TopologyLineStrip:
		return wgpu.PrimitiveTopologyLineStrip, nil
	case geometry.TopologyTriangleList:
		return wgpu.PrimitiveTopologyTriangleList, nil
	case geometry.TopologyTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedTopology, t)
	}
}

func toWGPUVertexFormat(f geometry.Format) (wgpu.VertexFormat, error) {
	switch f {
	case geometry.FormatR8G8B8A8Unorm:
		return wgpu.VertexFormatUnorm8x4, nil
	case geometry.FormatR32Uint:
		return wgpu.VertexFormatUint32, nil
	case geometry.FormatR32Sfloat:
		return wgpu.VertexFormatFloat32, nil
	case geometry.FormatR32G32Sfloat:
		return wgpu.VertexFormatFloat32x2, nil
	case geometry.FormatR32G32B32Sfloat:
		return wgpu.VertexFormatFloat32x3, nil
	case geometry.FormatR32G32B32A32Sfloat:
		return wgpu.VertexFormatFloat32x4, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedFormat, f)
	}
}

func toWGPUIndexFormat(t geometry.IndexType) wgpu.IndexFormat {
	if t == geometry.IndexTypeUint32 {
		return wgpu.IndexFormatUint32
	}
	return wgpu.IndexFormatUint16
}

// WebGPU requires buffer sizes, write sizes and copy sizes to be multiples of 4. Buffers are
// allocated rounded up, so a padded write or copy at an aligned offset always fits.
const copyAlignment = 4

func alignCopySize(size uint64) uint64 {
	return (size + copyAlignment - 1) &^ (copyAlignment - 1)
}

func padToCopyAlignment(data []byte) []byte {
	if len(data)%copyAlignment == 0 {
		return data
	}
	padded := make([]byte, alignCopySize(uint64(len(data))))
	copy(padded, data)
	return padded
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: %s has zero size", ErrBufferRange, label)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  alignCopySize(size),
		Usage: toWGPUUsage(usage),
	})
	if err != nil {
		return nil, err
	}
	out := &wgpuBuffer{label: label, size: size, usage: usage, buffer: buf}

	if usage&BufferUsageUniform != 0 {
		out.bindGroup, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  label + " Bind Group",
			Layout: b.uniformLayout,
			Entries: []wgpu.BindGroupEntry{
				{
					Binding: 0,
					Buffer:  buf,
					Offset:  0,
					Size:    wgpu.WholeSize,
				},
			},
		})
		if err != nil {
			buf.Release()
			return nil, err
		}
	}
	return out, nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	wb := buf.(*wgpuBuffer)
	if wb.released.Load() {
		return fmt.Errorf("%w: %s", ErrBufferReleased, wb.label)
	}
	if offset > wb.size || uint64(len(data)) > wb.size-offset {
		return fmt.Errorf("%w: %s [%d, +%d) of %d", ErrBufferRange, wb.label, offset, len(data), wb.size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.WriteBuffer(wb.buffer, offset, padToCopyAlignment(data))
	return nil
}

// signalOnCompletion arms fence to be signaled once all work submitted so far has completed.
func (b *wgpuRendererBackendImpl) signalOnCompletion(fence *wgpuFence) {
	b.queue.OnSubmittedWorkDone(func(wgpu.QueueWorkDoneStatus) {
		fence.signaled.Store(true)
	})
}

func (b *wgpuRendererBackendImpl) CopyBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) (Fence, error) {
	s, d := src.(*wgpuBuffer), dst.(*wgpuBuffer)
	if s.released.Load() || d.released.Load() {
		return nil, ErrBufferReleased
	}
	if srcOffset > s.size || size > s.size-srcOffset || dstOffset > d.size || size > d.size-dstOffset {
		return nil, fmt.Errorf("%w: copy %s -> %s of %d bytes", ErrBufferRange, s.label, d.label, size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	encoder.CopyBufferToBuffer(s.buffer, srcOffset, d.buffer, dstOffset, alignCopySize(size))
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return nil, err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	fence := &wgpuFence{device: b.device}
	b.signalOnCompletion(fence)
	return fence, nil
}

func (b *wgpuRendererBackendImpl) CreateFence(signaled bool) (Fence, error) {
	f := &wgpuFence{device: b.device}
	f.signaled.Store(signaled)
	return f, nil
}

func (b *wgpuRendererBackendImpl) CreateSemaphore() (Semaphore, error) {
	return wgpuSemaphore{}, nil
}

func (b *wgpuRendererBackendImpl) CreateCommandBuffer() (CommandBuffer, error) {
	return newCommandList(), nil
}

func (b *wgpuRendererBackendImpl) CreateSwapchain(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if width <= 0 || height <= 0 {
		return fmt.Errorf("renderer: invalid swapchain extent %dx%d", width, height)
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	depthTexture, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Depth Texture",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return err
	}
	depthView, err := depthTexture.CreateView(nil)
	if err != nil {
		depthTexture.Release()
		return err
	}

	b.depthTexture = depthTexture
	b.depthTextureView = depthView
	b.extent = common.Extent{Width: width, Height: height}
	b.configured = true
	return nil
}

func (b *wgpuRendererBackendImpl) DestroySwapchain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseFrameLocked()
	if b.depthTextureView != nil {
		b.depthTextureView.Release()
		b.depthTextureView = nil
	}
	if b.depthTexture != nil {
		b.depthTexture.Release()
		b.depthTexture = nil
	}
	b.configured = false
}

func (b *wgpuRendererBackendImpl) SwapchainExtent() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.extent.Width, b.extent.Height
}

func (b *wgpuRendererBackendImpl) releaseFrameLocked() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuRendererBackendImpl) AcquireNextImage(signal Semaphore) (uint32, SurfaceStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.configured {
		return 0, SurfaceOutOfDate, ErrNoSwapchain
	}
	// A surface texture still held from an unpresented frame must go first, or wgpu-native
	// rejects the acquire with "Surface image is already acquired".
	b.releaseFrameLocked()

	// GetCurrentTexture fails when the surface is outdated or lost; both are handled by
	// rebuilding the swapchain.
	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		common.Logger().Debug("surface texture unavailable", "error", err)
		return 0, SurfaceOutOfDate, nil
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return 0, SurfaceOutOfDate, err
	}
	b.frameSurface = surfaceTexture
	b.frameView = view
	return 0, SurfaceOK, nil
}

func (b *wgpuRendererBackendImpl) Submit(cmd CommandBuffer, wait, signal Semaphore, fence Fence) error {
	commands := cmd.(*commandList).snapshot()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameView == nil {
		return fmt.Errorf("renderer: submit without an acquired image")
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       b.frameView,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: b.clearColor,
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            b.depthTextureView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})

	replayErr := replay(pass, commands)
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	if fence != nil {
		b.signalOnCompletion(fence.(*wgpuFence))
	}
	return replayErr
}

// replay encodes recorded commands into a render pass. Commands after a failure are skipped so
// the pass still ends cleanly.
func replay(pass *wgpu.RenderPassEncoder, commands []command) error {
	for _, c := range commands {
		switch c.kind {
		case commandBindPipeline:
			h, ok := c.pipeline.Handle().(*wgpuPipelineHandle)
			if !ok || h == nil {
				return fmt.Errorf("%w: %s", ErrPipelineNotCreated, c.pipeline.PipelineKey())
			}
			pass.SetPipeline(h.pipeline)
		case commandBindUniforms:
			pass.SetBindGroup(0, c.buffer.(*wgpuBuffer).bindGroup, nil)
		case commandSetVertexBuffer:
			pass.SetVertexBuffer(0, c.buffer.(*wgpuBuffer).buffer, 0, wgpu.WholeSize)
		case commandSetIndexBuffer:
			pass.SetIndexBuffer(c.buffer.(*wgpuBuffer).buffer, toWGPUIndexFormat(c.indexType), 0, wgpu.WholeSize)
		case commandDraw:
			pass.Draw(c.count, 1, 0, 0)
		case commandDrawIndexed:
			pass.DrawIndexed(c.count, 1, 0, 0, 0)
		}
	}
	return nil
}

func (b *wgpuRendererBackendImpl) Present(image uint32, wait Semaphore) (SurfaceStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameSurface == nil {
		return SurfaceOutOfDate, nil
	}
	b.surface.Present()
	b.releaseFrameLocked()
	return SurfaceOK, nil
}

func (b *wgpuRendererBackendImpl) CreatePipeline(p pipeline.Pipeline) error {
	layout := p.Layout()
	topology, err := toWGPUTopology(layout.Topology)
	if err != nil {
		return err
	}

	attributes := make([]wgpu.VertexAttribute, 0, len(layout.Attributes))
	for _, a := range layout.Attributes {
		format, err := toWGPUVertexFormat(a.Format)
		if err != nil {
			return err
		}
		attributes = append(attributes, wgpu.VertexAttribute{
			Format:         format,
			Offset:         uint64(a.Offset),
			ShaderLocation: a.Location,
		})
	}
	stepMode := wgpu.VertexStepModeVertex
	if layout.Binding.InputRate == geometry.InputRateInstance {
		stepMode = wgpu.VertexStepModeInstance
	}

	primitive := wgpu.PrimitiveState{
		Topology:  topology,
		FrontFace: wgpu.FrontFaceCCW,
		CullMode:  wgpu.CullModeNone,
	}
	if layout.Topology == geometry.TopologyLineStrip || layout.Topology == geometry.TopologyTriangleStrip {
		primitive.StripIndexFormat = toWGPUIndexFormat(layout.IndexType)
	}
	if p.FrontFace() == pipeline.FrontFaceCW {
		primitive.FrontFace = wgpu.FrontFaceCW
	}
	switch p.CullMode() {
	case pipeline.CullModeFront:
		primitive.CullMode = wgpu.CullModeFront
	case pipeline.CullModeBack:
		primitive.CullMode = wgpu.CullModeBack
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s := p.Shader()
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: s.Key(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.Source(),
		},
	})
	if err != nil {
		return err
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.uniformLayout},
	})
	if err != nil {
		module.Release()
		return err
	}

	depthCompare := wgpu.CompareFunctionLess
	if !p.DepthTestEnabled() {
		depthCompare = wgpu.CompareFunctionAlways
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: s.VertexEntryPoint(),
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: uint64(layout.Binding.Stride),
					StepMode:    stepMode,
					Attributes:  attributes,
				},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: s.FragmentEntryPoint(),
			Targets: []wgpu.ColorTargetState{
				{
					Format:    *b.surfaceFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: primitive,
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: p.DepthTestEnabled(),
			DepthCompare:      depthCompare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		pipelineLayout.Release()
		module.Release()
		return err
	}

	p.SetHandle(&wgpuPipelineHandle{module: module, layout: pipelineLayout, pipeline: created})
	return nil
}

func (b *wgpuRendererBackendImpl) DestroyPipeline(p pipeline.Pipeline) {
	if p == nil {
		return
	}
	h, ok := p.Handle().(*wgpuPipelineHandle)
	if !ok || h == nil {
		return
	}
	h.pipeline.Release()
	h.layout.Release()
	h.module.Release()
	p.SetHandle(nil)
}

func (b *wgpuRendererBackendImpl) WaitIdle() error {
	fence := &wgpuFence{device: b.device}
	b.mu.Lock()
	b.signalOnCompletion(fence)
	b.mu.Unlock()
	return fence.Wait()
}

func (b *wgpuRendererBackendImpl) ClipSpaceYDown() bool {
	return false
}

func (b *wgpuRendererBackendImpl) Release() {
	if err := b.WaitIdle(); err != nil {
		common.Logger().Warn("device did not go idle before release", "error", err)
	}
	b.DestroySwapchain()
	if err := b.releaseStack.ReleaseAll(); err != nil {
		common.Logger().Warn("release failed", "error", err)
	}
}
