package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
)

var errNoTriangles = errors.New("document contains no triangle primitives")

// maxNodeDepth bounds the node walk so a cyclic hierarchy cannot recurse forever.
const maxNodeDepth = 64

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser       gltfParser
	defaultColor [3]float32

	vertices []geometry.ColorVertex
	indices  []uint32
	skipped  int
}

// gltfMeshExtractor flattens the triangle primitives of a parsed document into one mesh.
type gltfMeshExtractor interface {
	// ExtractScene walks the default scene, bakes every node transform into the vertex
	// positions and appends all triangle primitives into a single vertex and index list.
	//
	// Returns:
	//   - []geometry.ColorVertex: the merged vertices
	//   - []uint32: the merged indices
	//   - error: errNoTriangles if nothing drawable was found, or an accessor error
	ExtractScene() ([]geometry.ColorVertex, []uint32, error)

	// Skipped returns how many primitives were ignored because they were not triangle lists.
	Skipped() int
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

// newGLTFMeshExtractor creates a new mesh extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//   - defaultColor: the color for primitives without COLOR_0
//
// Returns:
//   - gltfMeshExtractor: the mesh extractor
func newGLTFMeshExtractor(parser gltfParser, defaultColor [3]float32) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{parser: parser, defaultColor: defaultColor}
}

func (e *gltfMeshExtractorImpl) Skipped() int {
	return e.skipped
}

func (e *gltfMeshExtractorImpl) ExtractScene() ([]geometry.ColorVertex, []uint32, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, nil, errNoDocument
	}

	var identity [16]float32
	common.Identity(identity[:])

	if len(doc.Nodes) == 0 {
		// Node-less documents still carry meshes; draw them untransformed.
		for i := range doc.Meshes {
			if err := e.extractMesh(i, &identity); err != nil {
				return nil, nil, err
			}
		}
	} else {
		for _, root := range e.rootNodes(doc) {
			if err := e.walk(doc, root, &identity, 0); err != nil {
				return nil, nil, err
			}
		}
	}

	if len(e.indices) == 0 {
		return nil, nil, errNoTriangles
	}
	return e.vertices, e.indices, nil
}

// rootNodes returns the roots of the default scene, or every parentless node when the
// document names no scene.
func (e *gltfMeshExtractorImpl) rootNodes(doc *gltfDocument) []int {
	if len(doc.Scenes) > 0 {
		scene := 0
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
			scene = *doc.Scene
		}
		return doc.Scenes[scene].Nodes
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i, child := range isChild {
		if !child {
			roots = append(roots, i)
		}
	}
	return roots
}

func (e *gltfMeshExtractorImpl) walk(doc *gltfDocument, nodeIndex int, parent *[16]float32, depth int) error {
	if nodeIndex < 0 || nodeIndex >= len(doc.Nodes) {
		return fmt.Errorf("node index %d out of range", nodeIndex)
	}
	if depth > maxNodeDepth {
		return fmt.Errorf("node hierarchy deeper than %d", maxNodeDepth)
	}

	node := &doc.Nodes[nodeIndex]
	local := nodeMatrix(node)
	var world [16]float32
	common.Mul4(world[:], parent[:], local[:])

	if node.Mesh != nil {
		if err := e.extractMesh(*node.Mesh, &world); err != nil {
			return fmt.Errorf("node %d: %w", nodeIndex, err)
		}
	}
	for _, child := range node.Children {
		if err := e.walk(doc, child, &world, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (e *gltfMeshExtractorImpl) extractMesh(meshIndex int, world *[16]float32) error {
	doc := e.parser.Document()
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return fmt.Errorf("mesh index %d out of range", meshIndex)
	}

	mesh := &doc.Meshes[meshIndex]
	for primIdx := range mesh.Primitives {
		if err := e.extractPrimitive(&mesh.Primitives[primIdx], world); err != nil {
			return fmt.Errorf("mesh %d primitive %d: %w", meshIndex, primIdx, err)
		}
	}
	return nil
}

// extractPrimitive appends one primitive, transformed by world, to the merged lists.
func (e *gltfMeshExtractorImpl) extractPrimitive(prim *gltfPrimitive, world *[16]float32) error {
	if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
		e.skipped++
		common.Logger().Debug("skipping non-triangle primitive", "mode", *prim.Mode)
		return nil
	}

	posAccessor, ok := prim.Attributes["POSITION"]
	if !ok {
		return fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := e.parser.ReadVec3Accessor(posAccessor)
	if err != nil {
		return fmt.Errorf("failed to read positions: %w", err)
	}

	var colors [][3]float32
	if colorAccessor, ok := prim.Attributes["COLOR_0"]; ok {
		colors, err = e.readColorAccessor(colorAccessor)
		if err != nil {
			return fmt.Errorf("failed to read colors: %w", err)
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = e.parser.ReadIndicesAccessor(*prim.Indices)
		if err != nil {
			return fmt.Errorf("failed to read indices: %w", err)
		}
		for _, idx := range indices {
			if int(idx) >= len(positions) {
				return fmt.Errorf("index %d out of range for %d vertices", idx, len(positions))
			}
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	indices = indices[:len(indices)-len(indices)%3]

	base := uint32(len(e.vertices))
	for i, pos := range positions {
		v := geometry.ColorVertex{Pos: transformPoint(world, pos), Color: e.defaultColor}
		if i < len(colors) {
			v.Color = colors[i]
		}
		e.vertices = append(e.vertices, v)
	}
	for _, idx := range indices {
		e.indices = append(e.indices, base+idx)
	}
	return nil
}

// readColorAccessor reads COLOR_0 as RGB. glTF colors can be VEC3 or VEC4, float or normalized
// unsigned byte/short; alpha is dropped.
func (e *gltfMeshExtractorImpl) readColorAccessor(accessorIndex int) ([][3]float32, error) {
	doc := e.parser.Document()
	if accessorIndex < 0 || accessorIndex >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", accessorIndex)
	}
	acc := &doc.Accessors[accessorIndex]

	components := gltfAccessorTypeComponentCount(acc.Type)
	if acc.Type != gltfAccessorTypeVec3 && acc.Type != gltfAccessorTypeVec4 {
		return nil, fmt.Errorf("unsupported color type: %s", acc.Type)
	}

	var component func(data []byte, i int) float32
	switch acc.ComponentType {
	case gltfComponentTypeFloat:
		component = func(data []byte, i int) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
	case gltfComponentTypeUnsignedByte:
		component = func(data []byte, i int) float32 { return float32(data[i]) / 255.0 }
	case gltfComponentTypeUnsignedShort:
		component = func(data []byte, i int) float32 {
			return float32(binary.LittleEndian.Uint16(data[i*2:])) / 65535.0
		}
	default:
		return nil, fmt.Errorf("unsupported color format: type=%s, componentType=%d", acc.Type, acc.ComponentType)
	}

	data, err := e.parser.ReadAccessorData(accessorIndex)
	if err != nil {
		return nil, err
	}

	result := make([][3]float32, acc.Count)
	for i := range result {
		first := i * components
		result[i] = [3]float32{component(data, first), component(data, first+1), component(data, first+2)}
	}
	return result, nil
}

// nodeMatrix returns the local transform of a node: its matrix if given, otherwise T * R * S.
func nodeMatrix(n *gltfNode) [16]float32 {
	if n.Matrix != nil {
		return *n.Matrix
	}

	t := [3]float32{}
	if n.Translation != nil {
		t = *n.Translation
	}
	q := [4]float32{0, 0, 0, 1}
	if n.Rotation != nil {
		q = *n.Rotation
	}
	s := [3]float32{1, 1, 1}
	if n.Scale != nil {
		s = *n.Scale
	}

	x, y, z, w := q[0], q[1], q[2], q[3]
	return [16]float32{
		(1 - 2*(y*y+z*z)) * s[0], 2 * (x*y + z*w) * s[0], 2 * (x*z - y*w) * s[0], 0,
		2 * (x*y - z*w) * s[1], (1 - 2*(x*x+z*z)) * s[1], 2 * (y*z + x*w) * s[1], 0,
		2 * (x*z + y*w) * s[2], 2 * (y*z - x*w) * s[2], (1 - 2*(x*x+y*y)) * s[2], 0,
		t[0], t[1], t[2], 1,
	}
}

// transformPoint applies a column-major affine matrix to a point.
func transformPoint(m *[16]float32, p [3]float32) [3]float32 {
	return [3]float32{
		m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12],
		m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13],
		m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14],
	}
}

// gltfCalculateBoundingBox computes the axis-aligned bounding box for vertex positions.
func gltfCalculateBoundingBox(vertices []geometry.ColorVertex) ([3]float32, [3]float32) {
	if len(vertices) == 0 {
		return [3]float32{}, [3]float32{}
	}

	bmin := vertices[0].Pos
	bmax := vertices[0].Pos
	for _, v := range vertices[1:] {
		for j := 0; j < 3; j++ {
			bmin[j] = min(bmin[j], v.Pos[j])
			bmax[j] = max(bmax[j], v.Pos[j])
		}
	}

	return bmin, bmax
}
