package geometry

import (
	"bytes"
	"errors"
	"testing"
)

// regionFor lays a frame out the way the shared region does: full-capacity payload areas.
func regionFor(f Frame) (Header, []byte, []byte) {
	vertex := make([]byte, MaxVertexBytes)
	index := make([]byte, MaxIndexBytes)
	copy(vertex, f.Vertex)
	copy(index, f.Index)
	return f.Header, vertex, index
}

func TestHeaderSize(t *testing.T) {
	// 11 scalars + binding(3) + 8 attributes(4) + 3 matrices(16) + consumer sequence.
	want := 4 * (11 + 3 + MaxAttributes*4 + 3*16 + 1)
	if HeaderSize != want {
		t.Errorf("HeaderSize = %d, want %d", HeaderSize, want)
	}
	if RegionSize != HeaderSize+MaxVertexBytes+MaxIndexBytes {
		t.Errorf("RegionSize = %d, want header + payload capacities", RegionSize)
	}
}

func TestCubeRoundTrip(t *testing.T) {
	cube := Cube()
	xf := TransformSnapshot{}
	xf.Model[0], xf.View[5], xf.Proj[10] = 1, 2, 3

	h, vertex, index := regionFor(Encode(&cube, &xf))
	h.Sequence = 2

	u, err := Decode(&h, vertex, index)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !u.HasGeometry || !u.HasTransform {
		t.Fatalf("Decode() HasGeometry=%v HasTransform=%v, want both", u.HasGeometry, u.HasTransform)
	}
	if u.Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", u.Sequence)
	}
	g := u.Geometry
	if g.VertexCount != 8 || g.IndexCount != 36 {
		t.Errorf("counts = (%d, %d), want (8, 36)", g.VertexCount, g.IndexCount)
	}
	if g.Stride() != 24 {
		t.Errorf("Stride() = %d, want 24", g.Stride())
	}
	if !bytes.Equal(g.VertexData, cube.VertexData) {
		t.Error("vertex bytes differ after round trip")
	}
	if !bytes.Equal(g.IndexData, cube.IndexData) {
		t.Error("index bytes differ after round trip")
	}
	if !g.Layout.PipelineEqual(cube.Layout) || g.Layout.IndexType != IndexTypeUint16 {
		t.Errorf("layout = %+v, want %+v", g.Layout, cube.Layout)
	}
	if u.Transform != xf {
		t.Errorf("transform = %+v, want %+v", u.Transform, xf)
	}
}

func TestRoundTripUint32Unindexed(t *testing.T) {
	vertices := make([]byte, 16*5)
	for i := range vertices {
		vertices[i] = byte(i * 7)
	}
	g := GeometrySnapshot{
		Layout: Layout{
			Binding:    Binding{Stride: 16},
			Attributes: []Attribute{{Format: FormatR32G32B32A32Sfloat}},
			Topology:   TopologyTriangleStrip,
			IndexType:  IndexTypeUint32,
		},
		VertexData: vertices,
	}
	h, vertex, index := regionFor(Encode(&g, nil))

	u, err := Decode(&h, vertex, index)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if u.HasTransform {
		t.Error("HasTransform = true, want false")
	}
	if u.Geometry.IndexCount != 0 || u.Geometry.IndexData != nil {
		t.Errorf("un-indexed mesh decoded with %d indices", u.Geometry.IndexCount)
	}
	if !bytes.Equal(u.Geometry.VertexData, vertices) {
		t.Error("vertex bytes differ after round trip")
	}
}

func TestDecodeTransformOnly(t *testing.T) {
	xf := TransformSnapshot{}
	xf.Model[12] = 4
	h, vertex, index := regionFor(Encode(nil, &xf))

	u, err := Decode(&h, vertex, index)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if u.HasGeometry {
		t.Error("HasGeometry = true, want false")
	}
	if !u.HasTransform || u.Transform.Model[12] != 4 {
		t.Errorf("transform = %+v, want model[12] = 4", u.Transform)
	}
}

func TestDecodeValidation(t *testing.T) {
	cube := Cube()
	base := Encode(&cube, nil).Header

	tests := []struct {
		name   string
		mutate func(h *Header)
		want   error
	}{
		{"bad magic", func(h *Header) { h.Magic = 0xDEADBEEF }, ErrBadMagic},
		{"version", func(h *Header) { h.Version = 2 }, ErrVersionMismatch},
		{"empty", func(h *Header) { h.HasGeometry = 0 }, ErrEmptyUpdate},
		{"zero attributes", func(h *Header) { h.AttributeCount = 0 }, ErrAttributeCount},
		{"too many attributes", func(h *Header) { h.AttributeCount = MaxAttributes + 1 }, ErrAttributeCount},
		{"zero vertices", func(h *Header) { h.VertexCount = 0 }, ErrVertexBytes},
		{"vertex overflow", func(h *Header) { h.VertexCount = MaxVertexBytes/24 + 1 }, ErrVertexBytes},
		{"index overflow", func(h *Header) { h.IndexCount = MaxIndexBytes/2 + 1 }, ErrIndexBytes},
		{"stride mismatch", func(h *Header) { h.Binding.Stride = 12 }, ErrStrideMismatch},
		// Magic is checked before anything else.
		{"ordering", func(h *Header) { h.Magic = 0; h.AttributeCount = 0 }, ErrBadMagic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := base
			tt.mutate(&h)
			_, err := Decode(&h, make([]byte, MaxVertexBytes), make([]byte, MaxIndexBytes))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
			if !IsValidation(err) {
				t.Errorf("IsValidation(%v) = false, want true", err)
			}
		})
	}
}

func TestIndexBytesAtCapacity(t *testing.T) {
	cube := Cube()
	h := Encode(&cube, nil).Header
	h.IndexType = uint32(IndexTypeUint32)
	h.IndexCount = MaxIndexBytes / 4

	_, ib, err := ValidateHeader(&h)
	if err != nil {
		t.Fatalf("ValidateHeader() error = %v", err)
	}
	if ib != MaxIndexBytes {
		t.Errorf("index bytes = %d, want %d", ib, MaxIndexBytes)
	}
}

func TestCopyContentFromKeepsProtocolFields(t *testing.T) {
	dst := Header{Sequence: 7, ConsumerSequence: 4}
	src := Header{Magic: Magic, Sequence: 100, ConsumerSequence: 100, VertexCount: 3}

	dst.CopyContentFrom(&src)
	if dst.Sequence != 7 || dst.ConsumerSequence != 4 {
		t.Errorf("protocol fields = (%d, %d), want (7, 4)", dst.Sequence, dst.ConsumerSequence)
	}
	if dst.Magic != Magic || dst.VertexCount != 3 {
		t.Error("content fields were not copied")
	}
}

func TestPipelineEqual(t *testing.T) {
	base := ColorVertexLayout(IndexTypeUint16)

	tests := []struct {
		name   string
		mutate func(l *Layout)
		equal  bool
	}{
		{"identical", func(l *Layout) {}, true},
		{"index type only", func(l *Layout) { l.IndexType = IndexTypeUint32 }, true},
		{"attribute count", func(l *Layout) { l.Attributes = l.Attributes[:1] }, false},
		{"attribute format", func(l *Layout) { l.Attributes[1].Format = FormatR32G32B32A32Sfloat }, false},
		{"attribute offset", func(l *Layout) { l.Attributes[1].Offset = 16 }, false},
		{"attribute location", func(l *Layout) { l.Attributes[0].Location = 2 }, false},
		{"binding stride", func(l *Layout) { l.Binding.Stride = 32 }, false},
		{"input rate", func(l *Layout) { l.Binding.InputRate = InputRateInstance }, false},
		{"topology", func(l *Layout) { l.Topology = TopologyLineList }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base.Clone()
			tt.mutate(&other)
			if got := base.PipelineEqual(other); got != tt.equal {
				t.Errorf("PipelineEqual() = %v, want %v", got, tt.equal)
			}
		})
	}
}
