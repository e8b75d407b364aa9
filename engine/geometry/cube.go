package geometry

import (
	"slices"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-link/common"
)

// ColorVertex is a position + color vertex, 24 bytes with color at offset 12.
type ColorVertex struct {
	Pos   [3]float32
	Color [3]float32
}

// ColorVertexLayout is the layout for tightly packed ColorVertex data with the given index type,
// drawn as a triangle list.
//
// Parameters:
//   - indexType: the index width used by the mesh
//
// Returns:
//   - Layout: binding 0 at the ColorVertex stride with position at location 0 and color at location 1
func ColorVertexLayout(indexType IndexType) Layout {
	stride := uint32(unsafe.Sizeof(ColorVertex{}))
	return Layout{
		Binding: Binding{Binding: 0, Stride: stride, InputRate: InputRateVertex},
		Attributes: []Attribute{
			{Location: 0, Binding: 0, Format: FormatR32G32B32Sfloat, Offset: uint32(unsafe.Offsetof(ColorVertex{}.Pos))},
			{Location: 1, Binding: 0, Format: FormatR32G32B32Sfloat, Offset: uint32(unsafe.Offsetof(ColorVertex{}.Color))},
		},
		Topology:  TopologyTriangleList,
		IndexType: indexType,
	}
}

var cubeVertices = []ColorVertex{
	{Pos: [3]float32{-0.5, -0.5, -0.5}, Color: [3]float32{1, 0, 0}},
	{Pos: [3]float32{0.5, -0.5, -0.5}, Color: [3]float32{0, 1, 0}},
	{Pos: [3]float32{0.5, 0.5, -0.5}, Color: [3]float32{0, 0, 1}},
	{Pos: [3]float32{-0.5, 0.5, -0.5}, Color: [3]float32{1, 1, 0}},
	{Pos: [3]float32{-0.5, -0.5, 0.5}, Color: [3]float32{1, 0, 1}},
	{Pos: [3]float32{0.5, -0.5, 0.5}, Color: [3]float32{0, 1, 1}},
	{Pos: [3]float32{0.5, 0.5, 0.5}, Color: [3]float32{1, 1, 1}},
	{Pos: [3]float32{-0.5, 0.5, 0.5}, Color: [3]float32{0.2, 0.2, 0.2}},
}

var cubeIndices = []uint16{
	0, 1, 2, 2, 3, 0, // back
	4, 5, 6, 6, 7, 4, // front
	0, 4, 7, 7, 3, 0, // left
	1, 5, 6, 6, 2, 1, // right
	3, 2, 6, 6, 7, 3, // top
	0, 1, 5, 5, 4, 0, // bottom
}

// Cube returns a unit cube centered on the origin with a distinct color per corner:
// 8 ColorVertex vertices and 36 16-bit indices.
func Cube() GeometrySnapshot {
	return GeometrySnapshot{
		Layout:      ColorVertexLayout(IndexTypeUint16),
		VertexData:  slices.Clone(common.SliceToBytes(cubeVertices)),
		IndexData:   slices.Clone(common.SliceToBytes(cubeIndices)),
		VertexCount: uint32(len(cubeVertices)),
		IndexCount:  uint32(len(cubeIndices)),
	}
}
