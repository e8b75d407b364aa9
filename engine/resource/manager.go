// Package resource owns the mesh being drawn and its device buffers. It decides whether an
// incoming mesh needs a new pipeline or only new buffers, and assembles per-frame uniforms.
package resource

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/camera"
	"github.com/Carmen-Shannon/oxy-link/engine/frame"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-link/engine/staging"
)

// Default animation: a quarter turn per second about +Z.
var (
	spinDegPerS  = float32(90)
	spinAxis     = [3]float32{0, 0, 1}
	uniformBytes = uint64(shader.UniformSize)
)

// ManagerStats counts resource manager activity.
type ManagerStats struct {
	MeshSwaps          int
	PipelineBuilds     int
	ViewProjRecomputes int
	UniformWrites      int
}

// manager is the implementation of the Manager interface.
type manager struct {
	mu *sync.Mutex

	backend  renderer.RendererBackend
	transfer staging.TransferEngine

	framesInFlight  int
	clock           func() time.Duration
	pipelineOptions []pipeline.PipelineBuilderOption

	active       geometry.GeometrySnapshot
	hasMesh      bool
	vertexBuffer renderer.Buffer
	indexBuffer  renderer.Buffer
	pipeline     pipeline.Pipeline

	uniforms []renderer.Buffer

	override    geometry.TransformSnapshot
	hasOverride bool

	camera         camera.Camera
	viewProjExtent common.Extent
	view           [16]float32
	proj           [16]float32

	stats ManagerStats
}

// Manager owns the active mesh, its buffers and pipeline, and the transform state. It is the
// frame scheduler's FrameRecorder.
//
// All methods are called from the render thread.
type Manager interface {
	frame.FrameRecorder

	// SetMesh validates g and makes it the active mesh. The pipeline is rebuilt only if the vertex
	// layout or topology differs from the previous mesh, or no pipeline exists. Before the old
	// buffers are released the device is drained and every outstanding upload completes.
	//
	// Parameters:
	//   - g: the mesh; it is copied
	//
	// Returns:
	//   - error: a validation error (IsValidation) leaves the previous mesh untouched; any other
	//     error is a device failure
	SetMesh(g geometry.GeometrySnapshot) error

	// SetTransform installs a model/view/projection override used by every following frame.
	SetTransform(t geometry.TransformSnapshot)

	// ClearTransformOverride returns to the default spinning animation.
	ClearTransformOverride()

	// HasTransformOverride reports whether a transform override is installed.
	HasTransformOverride() bool

	// ActiveMesh returns a copy of the active mesh.
	//
	// Returns:
	//   - geometry.GeometrySnapshot: the mesh
	//   - bool: false if no mesh was ever accepted
	ActiveMesh() (geometry.GeometrySnapshot, bool)

	// Pipeline returns the current pipeline, or nil before the first mesh.
	Pipeline() pipeline.Pipeline

	// Stats returns a snapshot of the activity counters.
	Stats() ManagerStats

	// Release drains the device and frees buffers and the pipeline.
	//
	// Returns:
	//   - error: joined release failures
	Release() error
}

var _ Manager = &manager{}

// NewManager creates a Manager and its per-frame uniform buffers.
//
// Parameters:
//   - backend: the device
//   - transfer: the staging engine uploads go through
//   - options: functional options; see WithFramesInFlight and WithClock
//
// Returns:
//   - Manager: the manager
//   - error: an error if a uniform buffer cannot be created
func NewManager(backend renderer.RendererBackend, transfer staging.TransferEngine, options ...ManagerBuilderOption) (Manager, error) {
	start := time.Now()
	m := &manager{
		mu:             &sync.Mutex{},
		backend:        backend,
		transfer:       transfer,
		framesInFlight: frame.DefaultFramesInFlight,
		clock:          func() time.Duration { return time.Since(start) },
		camera:         camera.NewCamera(camera.WithFlipY(backend.ClipSpaceYDown())),
	}
	for _, opt := range options {
		opt(m)
	}

	for i := range m.framesInFlight {
		buf, err := backend.CreateBuffer(fmt.Sprintf("Uniforms %d", i), uniformBytes, renderer.BufferUsageUniform|renderer.BufferUsageCopyDst)
		if err != nil {
			for _, b := range m.uniforms {
				b.Release()
			}
			return nil, fmt.Errorf("create uniform buffer %d: %w", i, err)
		}
		m.uniforms = append(m.uniforms, buf)
	}
	return m, nil
}

func validate(g *geometry.GeometrySnapshot) error {
	stride := g.Layout.Binding.Stride
	if stride == 0 {
		return ErrZeroStride
	}
	if len(g.VertexData) == 0 {
		return ErrEmptyVertexData
	}
	if uint32(len(g.VertexData))%stride != 0 {
		return fmt.Errorf("%w: %d bytes, stride %d", ErrVertexMisaligned, len(g.VertexData), stride)
	}
	if width := g.Layout.IndexType.Width(); uint32(len(g.IndexData))%width != 0 {
		return fmt.Errorf("%w: %d bytes, width %d", ErrIndexMisaligned, len(g.IndexData), width)
	}
	return nil
}

func (m *manager) SetMesh(g geometry.GeometrySnapshot) error {
	if err := validate(&g); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := g.Clone()
	next.VertexCount = uint32(len(next.VertexData)) / next.Layout.Binding.Stride
	next.IndexCount = uint32(len(next.IndexData)) / next.Layout.IndexType.Width()
	layoutChanged := !m.hasMesh || !m.active.Layout.PipelineEqual(next.Layout)

	// No frame may still read the buffers about to be released, and no copy may still write them.
	if err := m.backend.WaitIdle(); err != nil {
		return fmt.Errorf("drain device: %w", err)
	}
	if err := m.transfer.WaitAll(); err != nil {
		return fmt.Errorf("drain uploads: %w", err)
	}
	m.releaseBuffersLocked()

	m.active = next
	m.hasMesh = true
	m.stats.MeshSwaps++

	if layoutChanged || m.pipeline == nil {
		if err := m.rebuildPipelineLocked(); err != nil {
			return err
		}
	}

	vertex, err := m.backend.CreateBuffer("Vertex Buffer", uint64(len(next.VertexData)), renderer.BufferUsageVertex|renderer.BufferUsageCopyDst)
	if err != nil {
		return fmt.Errorf("create vertex buffer: %w", err)
	}
	m.vertexBuffer = vertex
	if err := m.transfer.UploadToDevice(vertex, 0, next.VertexData); err != nil {
		return fmt.Errorf("upload vertices: %w", err)
	}

	if len(next.IndexData) > 0 {
		index, err := m.backend.CreateBuffer("Index Buffer", uint64(len(next.IndexData)), renderer.BufferUsageIndex|renderer.BufferUsageCopyDst)
		if err != nil {
			return fmt.Errorf("create index buffer: %w", err)
		}
		m.indexBuffer = index
		if err := m.transfer.UploadToDevice(index, 0, next.IndexData); err != nil {
			return fmt.Errorf("upload indices: %w", err)
		}
	}

	common.Logger().Debug("mesh replaced",
		"vertices", next.VertexCount,
		"indices", next.IndexCount,
		"layoutChanged", layoutChanged,
	)
	return nil
}

func (m *manager) releaseBuffersLocked() {
	if m.vertexBuffer != nil {
		m.vertexBuffer.Release()
		m.vertexBuffer = nil
	}
	if m.indexBuffer != nil {
		m.indexBuffer.Release()
		m.indexBuffer = nil
	}
}

// rebuildPipelineLocked destroys the current pipeline and builds one for the active layout.
// The device must be idle.
func (m *manager) rebuildPipelineLocked() error {
	if m.pipeline != nil {
		m.backend.DestroyPipeline(m.pipeline)
		m.pipeline = nil
	}
	p := pipeline.NewPipeline("Mesh", m.active.Layout, m.pipelineOptions...)
	if err := m.backend.CreatePipeline(p); err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	m.pipeline = p
	m.stats.PipelineBuilds++
	return nil
}

func (m *manager) SetTransform(t geometry.TransformSnapshot) {
	m.mu.Lock()
	m.override = t
	m.hasOverride = true
	m.mu.Unlock()
}

func (m *manager) ClearTransformOverride() {
	m.mu.Lock()
	m.hasOverride = false
	m.mu.Unlock()
}

func (m *manager) HasTransformOverride() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasOverride
}

// refreshViewProjLocked recomputes the default camera only when the swapchain size changed.
func (m *manager) refreshViewProjLocked() {
	width, height := m.backend.SwapchainExtent()
	extent := common.Extent{Width: width, Height: height}
	if extent == m.viewProjExtent {
		return
	}
	m.camera.SetAspect(extent.Aspect())
	m.view = m.camera.ViewMatrix()
	m.proj = m.camera.ProjectionMatrix()
	m.viewProjExtent = extent
	m.stats.ViewProjRecomputes++
}

func (m *manager) UpdateUniforms(slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var t geometry.TransformSnapshot
	if m.hasOverride {
		t = m.override
	} else {
		m.refreshViewProjLocked()
		angle := float32(m.clock().Seconds()) * common.Radians(spinDegPerS)
		common.Rotate(t.Model[:], angle, spinAxis[0], spinAxis[1], spinAxis[2])
		t.View = m.view
		t.Proj = m.proj
	}

	data := make([]byte, 0, uniformBytes)
	data = append(data, common.SliceToBytes(t.Model[:])...)
	data = append(data, common.SliceToBytes(t.View[:])...)
	data = append(data, common.SliceToBytes(t.Proj[:])...)
	if err := m.backend.WriteBuffer(m.uniforms[slot%len(m.uniforms)], 0, data); err != nil {
		return fmt.Errorf("write uniforms: %w", err)
	}
	m.stats.UniformWrites++
	return nil
}

func (m *manager) Record(slot int, cmd renderer.CommandBuffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Without a mesh the frame is only cleared.
	if m.pipeline == nil || m.vertexBuffer == nil {
		return nil
	}
	cmd.BindPipeline(m.pipeline)
	cmd.BindUniforms(m.uniforms[slot%len(m.uniforms)])
	cmd.SetVertexBuffer(m.vertexBuffer)
	if m.indexBuffer != nil {
		cmd.SetIndexBuffer(m.indexBuffer, m.active.Layout.IndexType)
		cmd.DrawIndexed(m.active.IndexCount)
	} else {
		cmd.Draw(m.active.VertexCount)
	}
	return nil
}

func (m *manager) OnSwapchainRecreated(width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The pipeline targets the surface format, so it follows the swapchain. Before the first
	// mesh there is nothing to rebuild.
	if m.pipeline == nil {
		return nil
	}
	return m.rebuildPipelineLocked()
}

func (m *manager) ActiveMesh() (geometry.GeometrySnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasMesh {
		return geometry.GeometrySnapshot{}, false
	}
	return m.active.Clone(), true
}

func (m *manager) Pipeline() pipeline.Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pipeline
}

func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stack common.ReleaseStack
	for i, u := range m.uniforms {
		stack.PushFunc(fmt.Sprintf("uniform buffer %d", i), u.Release)
	}
	if p := m.pipeline; p != nil {
		stack.PushFunc("pipeline", func() { m.backend.DestroyPipeline(p) })
	}
	stack.PushFunc("mesh buffers", m.releaseBuffersLocked)
	stack.Push("pending uploads", m.transfer.WaitAll)
	stack.Push("device", m.backend.WaitIdle)

	err := stack.ReleaseAll()
	m.uniforms = nil
	m.pipeline = nil
	return err
}
