package resource

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer"
	"github.com/Carmen-Shannon/oxy-link/engine/staging"
)

type testRig struct {
	backend  renderer.SoftRendererBackend
	transfer staging.TransferEngine
	manager  Manager
}

func newTestRig(t *testing.T, options ...ManagerBuilderOption) *testRig {
	t.Helper()
	backend := renderer.NewSoftRendererBackend(renderer.WithSoftCopyLatency(time.Millisecond))
	if err := backend.CreateSwapchain(800, 600); err != nil {
		t.Fatalf("CreateSwapchain() = %v", err)
	}
	transfer, err := staging.NewTransferEngine(backend, staging.WithCapacity(1<<12))
	if err != nil {
		t.Fatalf("NewTransferEngine() = %v", err)
	}
	m, err := NewManager(backend, transfer, options...)
	if err != nil {
		t.Fatalf("NewManager() = %v", err)
	}
	t.Cleanup(func() {
		if err := m.Release(); err != nil {
			t.Errorf("Release() = %v", err)
		}
		if err := transfer.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
		backend.Release()
	})
	return &testRig{backend: backend, transfer: transfer, manager: m}
}

// draw records and executes one frame on slot 0 and waits for it.
func (r *testRig) draw(t *testing.T) renderer.SoftStats {
	t.Helper()
	if err := r.manager.UpdateUniforms(0); err != nil {
		t.Fatalf("UpdateUniforms() = %v", err)
	}
	cmd, _ := r.backend.CreateCommandBuffer()
	if err := r.manager.Record(0, cmd); err != nil {
		t.Fatalf("Record() = %v", err)
	}
	if err := r.backend.Submit(cmd, nil, nil, nil); err != nil {
		t.Fatalf("Submit() = %v", err)
	}
	if err := r.backend.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() = %v", err)
	}
	return r.backend.Stats()
}

func (r *testRig) uniforms(t *testing.T, slot int) [48]float32 {
	t.Helper()
	raw, err := r.backend.ReadBuffer(r.manager.(*manager).uniforms[slot])
	if err != nil {
		t.Fatalf("ReadBuffer() = %v", err)
	}
	var out [48]float32
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

func TestSetMeshUploadsAndDraws(t *testing.T) {
	r := newTestRig(t)
	cube := geometry.Cube()

	if err := r.manager.SetMesh(cube); err != nil {
		t.Fatalf("SetMesh() = %v", err)
	}
	active, ok := r.manager.ActiveMesh()
	if !ok || active.VertexCount != 8 || active.IndexCount != 36 {
		t.Fatalf("ActiveMesh() = %d vertices, %d indices, %v", active.VertexCount, active.IndexCount, ok)
	}

	stats := r.draw(t)
	if stats.IndexedDraws != 1 || stats.LastDraw.Count != 36 {
		t.Errorf("draw stats = %+v", stats)
	}
	if len(stats.Violations) != 0 {
		t.Errorf("Violations = %v", stats.Violations)
	}

	vertex, err := r.backend.ReadBuffer(r.manager.(*manager).vertexBuffer)
	if err != nil {
		t.Fatalf("ReadBuffer() = %v", err)
	}
	if string(vertex) != string(cube.VertexData) {
		t.Error("vertex buffer contents differ from the mesh")
	}
}

func TestDrawWithoutMeshRecordsNothing(t *testing.T) {
	r := newTestRig(t)
	stats := r.draw(t)
	if stats.Draws+stats.IndexedDraws != 0 {
		t.Errorf("draws without a mesh = %d", stats.Draws+stats.IndexedDraws)
	}
	if r.manager.Pipeline() != nil {
		t.Error("Pipeline() != nil before the first mesh")
	}
}

func TestSetMeshUnindexed(t *testing.T) {
	r := newTestRig(t)
	cube := geometry.Cube()
	cube.IndexData = nil

	if err := r.manager.SetMesh(cube); err != nil {
		t.Fatalf("SetMesh() = %v", err)
	}
	stats := r.draw(t)
	if stats.Draws != 1 || stats.LastDraw.Indexed || stats.LastDraw.Count != 8 {
		t.Errorf("draw stats = %+v", stats)
	}
}

func TestPipelineRebuildOnlyOnLayoutChange(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(g *geometry.GeometrySnapshot)
		rebuild bool
	}{
		{
			name: "vertex content only",
			mutate: func(g *geometry.GeometrySnapshot) {
				for i := range g.VertexData {
					g.VertexData[i] ^= 0x5a
				}
			},
			rebuild: false,
		},
		{
			name:    "index type only",
			mutate:  func(g *geometry.GeometrySnapshot) { g.Layout.IndexType = geometry.IndexTypeUint32 },
			rebuild: false,
		},
		{
			name:    "attribute format",
			mutate:  func(g *geometry.GeometrySnapshot) { g.Layout.Attributes[1].Format = geometry.FormatR32G32Sfloat },
			rebuild: true,
		},
		{
			name:    "attribute offset",
			mutate:  func(g *geometry.GeometrySnapshot) { g.Layout.Attributes[1].Offset = 8 },
			rebuild: true,
		},
		{
			name:    "attribute count",
			mutate:  func(g *geometry.GeometrySnapshot) { g.Layout.Attributes = g.Layout.Attributes[:1] },
			rebuild: true,
		},
		{
			name:    "topology",
			mutate:  func(g *geometry.GeometrySnapshot) { g.Layout.Topology = geometry.TopologyLineList },
			rebuild: true,
		},
		{
			name:    "input rate",
			mutate:  func(g *geometry.GeometrySnapshot) { g.Layout.Binding.InputRate = geometry.InputRateInstance },
			rebuild: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRig(t)
			if err := r.manager.SetMesh(geometry.Cube()); err != nil {
				t.Fatalf("SetMesh() = %v", err)
			}
			first := r.manager.Pipeline()

			next := geometry.Cube()
			tt.mutate(&next)
			if err := r.manager.SetMesh(next); err != nil {
				t.Fatalf("SetMesh(mutated) = %v", err)
			}

			builds := r.manager.Stats().PipelineBuilds
			rebuilt := builds == 2
			if rebuilt != tt.rebuild || (!tt.rebuild && builds != 1) {
				t.Errorf("PipelineBuilds = %d, want rebuild %v", builds, tt.rebuild)
			}
			if !tt.rebuild && r.manager.Pipeline() != first {
				t.Error("pipeline replaced for an identical layout")
			}
			if tt.rebuild && first.Handle() != nil {
				t.Error("old pipeline not destroyed")
			}
			if alive := r.backend.Stats().PipelinesAlive; alive != 1 {
				t.Errorf("PipelinesAlive = %d, want 1", alive)
			}
		})
	}
}

func TestSetMeshValidationKeepsPreviousMesh(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *geometry.GeometrySnapshot)
	}{
		{name: "zero stride", mutate: func(g *geometry.GeometrySnapshot) { g.Layout.Binding.Stride = 0 }},
		{name: "empty vertices", mutate: func(g *geometry.GeometrySnapshot) { g.VertexData = nil }},
		{name: "vertex misaligned", mutate: func(g *geometry.GeometrySnapshot) { g.VertexData = g.VertexData[:len(g.VertexData)-1] }},
		{name: "index misaligned", mutate: func(g *geometry.GeometrySnapshot) { g.IndexData = g.IndexData[:len(g.IndexData)-1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRig(t)
			if err := r.manager.SetMesh(geometry.Cube()); err != nil {
				t.Fatalf("SetMesh() = %v", err)
			}
			live := r.backend.Stats().LiveBuffers

			bad := geometry.Cube()
			tt.mutate(&bad)
			err := r.manager.SetMesh(bad)
			if !IsValidation(err) {
				t.Fatalf("SetMesh(bad) = %v, want a validation error", err)
			}

			active, _ := r.manager.ActiveMesh()
			if active.VertexCount != 8 || active.IndexCount != 36 {
				t.Errorf("active mesh changed to %d/%d", active.VertexCount, active.IndexCount)
			}
			if got := r.backend.Stats().LiveBuffers; got != live {
				t.Errorf("LiveBuffers = %d, want %d", got, live)
			}
			if stats := r.manager.Stats(); stats.MeshSwaps != 1 {
				t.Errorf("MeshSwaps = %d, want 1", stats.MeshSwaps)
			}
		})
	}
}

func TestTransformOnlyUpdatesKeepMesh(t *testing.T) {
	r := newTestRig(t)
	if err := r.manager.SetMesh(geometry.Cube()); err != nil {
		t.Fatalf("SetMesh() = %v", err)
	}

	for i := range 5 {
		var tr geometry.TransformSnapshot
		for j := range 16 {
			tr.Model[j] = float32(i*100 + j)
			tr.View[j] = float32(i*100 + 16 + j)
			tr.Proj[j] = float32(i*100 + 32 + j)
		}
		r.manager.SetTransform(tr)
		r.draw(t)

		got := r.uniforms(t, 0)
		for j := range 48 {
			if got[j] != float32(i*100+j) {
				t.Fatalf("update %d: uniform[%d] = %v, want %v", i, j, got[j], float32(i*100+j))
			}
		}
	}

	active, _ := r.manager.ActiveMesh()
	if active.VertexCount != 8 || active.IndexCount != 36 {
		t.Errorf("active mesh = %d/%d, want 8/36", active.VertexCount, active.IndexCount)
	}
	if stats := r.manager.Stats(); stats.MeshSwaps != 1 || stats.PipelineBuilds != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDefaultAnimationAndViewProjCache(t *testing.T) {
	elapsed := time.Second
	r := newTestRig(t, WithClock(func() time.Duration { return elapsed }))

	if err := r.manager.UpdateUniforms(1); err != nil {
		t.Fatalf("UpdateUniforms() = %v", err)
	}
	got := r.uniforms(t, 1)
	// One second at 90 degrees per second about Z maps X onto Y.
	if math.Abs(float64(got[0])) > 1e-5 || math.Abs(float64(got[1]-1)) > 1e-5 {
		t.Errorf("model column 0 = (%v, %v), want (0, 1)", got[0], got[1])
	}
	// The soft backend has a Y-down clip space, so the projection is flipped.
	if proj5 := got[32+5]; proj5 >= 0 {
		t.Errorf("proj[5] = %v, want negative", proj5)
	}

	elapsed = 2 * time.Second
	if err := r.manager.UpdateUniforms(0); err != nil {
		t.Fatalf("UpdateUniforms() = %v", err)
	}
	if n := r.manager.Stats().ViewProjRecomputes; n != 1 {
		t.Errorf("ViewProjRecomputes = %d, want 1", n)
	}

	r.backend.DestroySwapchain()
	if err := r.backend.CreateSwapchain(1024, 768); err != nil {
		t.Fatalf("CreateSwapchain() = %v", err)
	}
	if err := r.manager.UpdateUniforms(0); err != nil {
		t.Fatalf("UpdateUniforms() = %v", err)
	}
	if n := r.manager.Stats().ViewProjRecomputes; n != 2 {
		t.Errorf("ViewProjRecomputes after resize = %d, want 2", n)
	}

	r.manager.SetTransform(geometry.TransformSnapshot{})
	if !r.manager.HasTransformOverride() {
		t.Error("HasTransformOverride() = false after SetTransform")
	}
	r.manager.ClearTransformOverride()
	if r.manager.HasTransformOverride() {
		t.Error("HasTransformOverride() = true after ClearTransformOverride")
	}
}

func TestSwapchainRecreationRebuildsExistingPipelineOnly(t *testing.T) {
	r := newTestRig(t)

	if err := r.manager.OnSwapchainRecreated(640, 480); err != nil {
		t.Fatalf("OnSwapchainRecreated() = %v", err)
	}
	if r.manager.Pipeline() != nil {
		t.Fatal("pipeline built by swapchain recreation before any mesh")
	}

	if err := r.manager.SetMesh(geometry.Cube()); err != nil {
		t.Fatalf("SetMesh() = %v", err)
	}
	if err := r.manager.OnSwapchainRecreated(640, 480); err != nil {
		t.Fatalf("OnSwapchainRecreated() = %v", err)
	}
	if builds := r.manager.Stats().PipelineBuilds; builds != 2 {
		t.Errorf("PipelineBuilds = %d, want 2", builds)
	}
}
