// Package geometry defines the geometry and transform snapshots exchanged between a producer
// process and the renderer, and the fixed wire layout used to carry them through shared memory.
//
// Enumerations use the numeric values of the matching Vulkan enums so that a region written by
// any producer following the same layout decodes without translation.
package geometry

import "slices"

// IndexType identifies the width of one index in the index payload.
type IndexType uint32

const (
	// IndexTypeUint16 selects 16-bit indices (VK_INDEX_TYPE_UINT16).
	IndexTypeUint16 IndexType = 0
	// IndexTypeUint32 selects 32-bit indices (VK_INDEX_TYPE_UINT32).
	IndexTypeUint32 IndexType = 1
)

// Width returns the size of one index in bytes. Any value other than IndexTypeUint32 is 2 bytes wide.
func (t IndexType) Width() uint32 {
	if t == IndexTypeUint32 {
		return 4
	}
	return 2
}

// Topology identifies how vertices are assembled into primitives.
type Topology uint32

const (
	TopologyPointList     Topology = 0
	TopologyLineList      Topology = 1
	TopologyLineStrip     Topology = 2
	TopologyTriangleList  Topology = 3
	TopologyTriangleStrip Topology = 4
	TopologyTriangleFan   Topology = 5
)

// InputRate selects whether a binding advances per vertex or per instance.
type InputRate uint32

const (
	InputRateVertex   InputRate = 0
	InputRateInstance InputRate = 1
)

// Format identifies the data format of a single vertex attribute.
type Format uint32

const (
	FormatR8G8B8A8Unorm      Format = 37
	FormatR32Uint            Format = 98
	FormatR32Sfloat          Format = 100
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
)

// Size returns the byte size of one attribute of this format, or 0 for an unknown format.
func (f Format) Size() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR32Uint, FormatR32Sfloat:
		return 4
	case FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	default:
		return 0
	}
}

// Binding describes the single vertex buffer binding of a mesh.
type Binding struct {
	Binding   uint32
	Stride    uint32
	InputRate InputRate
}

// Attribute describes one vertex attribute inside the binding.
type Attribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

// Layout is the part of a mesh that the fixed-function pipeline state depends on.
type Layout struct {
	Binding    Binding
	Attributes []Attribute
	Topology   Topology
	IndexType  IndexType
}

// PipelineEqual reports whether two layouts can share one pipeline: the binding, every attribute
// (count, binding, location, format and offset) and the topology all match. The index type is not
// part of the comparison; it is bound per draw.
//
// Parameters:
//   - other: the layout to compare against
//
// Returns:
//   - bool: true if no pipeline rebuild is needed to draw other with a pipeline built for l
func (l Layout) PipelineEqual(other Layout) bool {
	return l.Binding == other.Binding &&
		l.Topology == other.Topology &&
		slices.Equal(l.Attributes, other.Attributes)
}

// Clone returns a deep copy of the layout.
func (l Layout) Clone() Layout {
	l.Attributes = slices.Clone(l.Attributes)
	return l
}

// GeometrySnapshot is an owned copy of a mesh: raw vertex and index bytes plus the layout
// needed to interpret them. A snapshot is replaced wholesale, never mutated after creation.
type GeometrySnapshot struct {
	Layout      Layout
	VertexData  []byte
	IndexData   []byte
	VertexCount uint32
	IndexCount  uint32
}

// Stride returns the vertex stride declared by the binding.
func (g *GeometrySnapshot) Stride() uint32 {
	return g.Layout.Binding.Stride
}

// Clone returns a deep copy of the snapshot.
func (g *GeometrySnapshot) Clone() GeometrySnapshot {
	return GeometrySnapshot{
		Layout:      g.Layout.Clone(),
		VertexData:  slices.Clone(g.VertexData),
		IndexData:   slices.Clone(g.IndexData),
		VertexCount: g.VertexCount,
		IndexCount:  g.IndexCount,
	}
}

// TransformSnapshot holds column-major model, view and projection matrices.
type TransformSnapshot struct {
	Model [16]float32
	View  [16]float32
	Proj  [16]float32
}

// Update is one decoded channel snapshot. Geometry and transform are independent: a producer
// may keep sending transforms while withholding geometry the consumer already has.
type Update struct {
	// Sequence is the even channel sequence the update was read at.
	Sequence uint32

	HasGeometry bool
	Geometry    GeometrySnapshot

	HasTransform bool
	Transform    TransformSnapshot
}
