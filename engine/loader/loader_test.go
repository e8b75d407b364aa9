package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
)

// triangleBuffer packs three positions followed by three uint16 indices (padded to 4 bytes).
func triangleBuffer(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	positions := [3][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	indices := [4]uint16{0, 1, 2, 0}
	if err := binary.Write(&buf, binary.LittleEndian, positions); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, indices); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// triangleDocument returns a document drawing the triangle through a translated, scaled node.
// An empty uri leaves the buffer to the GLB binary chunk.
func triangleDocument(uri string, indexCount int) map[string]any {
	buffer := map[string]any{"byteLength": 44}
	if uri != "" {
		buffer["uri"] = uri
	}
	return map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"nodes": []int{0}}},
		"nodes": []any{map[string]any{
			"mesh":        0,
			"translation": []float32{1, 0, 0},
			"scale":       []float32{2, 2, 2},
		}},
		"meshes": []any{map[string]any{"primitives": []any{map[string]any{
			"attributes": map[string]int{"POSITION": 0},
			"indices":    1,
		}}}},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": gltfComponentTypeFloat, "count": 3, "type": "VEC3"},
			map[string]any{"bufferView": 1, "componentType": gltfComponentTypeUnsignedShort, "count": indexCount, "type": "SCALAR"},
		},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": 36},
			map[string]any{"buffer": 0, "byteOffset": 36, "byteLength": 8},
		},
		"buffers": []any{buffer},
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// glb wraps a JSON document and a binary chunk into a GLB container.
func glb(t *testing.T, doc, bin []byte) []byte {
	t.Helper()
	for len(doc)%4 != 0 {
		doc = append(doc, ' ')
	}
	var out bytes.Buffer
	total := 12 + 8 + len(doc) + 8 + len(bin)
	binary.Write(&out, binary.LittleEndian, gltfGLBHeader{Magic: gltfGLBMagic, Version: gltfGLBVersion, Length: uint32(total)})
	binary.Write(&out, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(doc)), ChunkType: gltfGLBChunkJSON})
	out.Write(doc)
	binary.Write(&out, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(bin)), ChunkType: gltfGLBChunkBIN})
	out.Write(bin)
	return out.Bytes()
}

func vertices(t *testing.T, g geometry.GeometrySnapshot) []geometry.ColorVertex {
	t.Helper()
	out := make([]geometry.ColorVertex, g.VertexCount)
	if err := binary.Read(bytes.NewReader(g.VertexData), binary.LittleEndian, out); err != nil {
		t.Fatalf("decode vertices: %v", err)
	}
	return out
}

func TestLoadReaderBakesNodeTransform(t *testing.T) {
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(triangleBuffer(t))
	doc := mustJSON(t, triangleDocument(uri, 3))

	l := NewLoader(BackendTypeGLTF, WithDefaultColor([3]float32{1, 0, 0}))
	g, err := l.LoadReader("triangle", bytes.NewReader(doc), false)
	if err != nil {
		t.Fatalf("LoadReader() = %v", err)
	}

	if g.VertexCount != 3 || g.IndexCount != 3 || g.Layout.IndexType != geometry.IndexTypeUint16 {
		t.Fatalf("LoadReader() = %d vertices, %d indices, index type %d", g.VertexCount, g.IndexCount, g.Layout.IndexType)
	}
	if !g.Layout.PipelineEqual(geometry.ColorVertexLayout(geometry.IndexTypeUint16)) {
		t.Errorf("Layout = %+v, want the ColorVertex layout", g.Layout)
	}

	want := [][3]float32{{1, 0, 0}, {3, 0, 0}, {1, 2, 0}}
	for i, v := range vertices(t, g) {
		if v.Pos != want[i] {
			t.Errorf("vertex %d at %v, want %v", i, v.Pos, want[i])
		}
		if v.Color != [3]float32{1, 0, 0} {
			t.Errorf("vertex %d color %v, want the default color", i, v.Color)
		}
	}

	if _, ok := l.Get("triangle"); !ok {
		t.Error("Get() missed the cached mesh")
	}
}

func TestLoadGLBFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triangle.glb")
	data := glb(t, mustJSON(t, triangleDocument("", 3)), triangleBuffer(t))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(BackendTypeGLTF, WithFitToUnit(true))
	g, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	// The fitted triangle spans [1,3]x[0,2] before fitting: centered on (2,1,0) and scaled by 1/2.
	want := [][3]float32{{-0.5, -0.5, 0}, {0.5, -0.5, 0}, {-0.5, 0.5, 0}}
	for i, v := range vertices(t, g) {
		if v.Pos != want[i] {
			t.Errorf("fitted vertex %d at %v, want %v", i, v.Pos, want[i])
		}
	}

	// A second Load is served from the cache even once the file is gone.
	os.Remove(path)
	if _, err := l.Load(path); err != nil {
		t.Errorf("cached Load() = %v", err)
	}
}

func TestLoadRejects(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)

	t.Run("unsupported extension", func(t *testing.T) {
		if _, err := l.Load("model.obj"); err == nil || !strings.Contains(err.Error(), "unsupported model format") {
			t.Errorf("Load(.obj) = %v", err)
		}
	})

	t.Run("accessor past buffer end", func(t *testing.T) {
		doc := mustJSON(t, triangleDocument("", 8))
		_, err := l.LoadReader("overrun", bytes.NewReader(glb(t, doc, triangleBuffer(t))), true)
		if !errors.Is(err, errAccessorBounds) {
			t.Errorf("LoadReader(overrun) = %v, want errAccessorBounds", err)
		}
	})

	t.Run("no triangles", func(t *testing.T) {
		d := triangleDocument("", 3)
		prim := d["meshes"].([]any)[0].(map[string]any)["primitives"].([]any)[0].(map[string]any)
		prim["mode"] = 1
		_, err := l.LoadReader("lines", bytes.NewReader(glb(t, mustJSON(t, d), triangleBuffer(t))), true)
		if !errors.Is(err, errNoTriangles) {
			t.Errorf("LoadReader(lines) = %v, want errNoTriangles", err)
		}
	})

	t.Run("bad version", func(t *testing.T) {
		d := triangleDocument("", 3)
		d["asset"] = map[string]any{"version": "1.0"}
		_, err := l.LoadReader("v1", bytes.NewReader(mustJSON(t, d)), false)
		if !errors.Is(err, errInvalidGLTFVersion) {
			t.Errorf("LoadReader(v1) = %v, want errInvalidGLTFVersion", err)
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		data := glb(t, mustJSON(t, triangleDocument("", 3)), triangleBuffer(t))
		data[0] = 'x'
		if _, err := l.LoadReader("magic", bytes.NewReader(data), true); !errors.Is(err, errInvalidGLBMagic) {
			t.Errorf("LoadReader(bad magic) = %v, want errInvalidGLBMagic", err)
		}
	})
}

func TestWideMeshUsesUint32Indices(t *testing.T) {
	imported := &importedMesh{
		vertices: make([]geometry.ColorVertex, 70000),
		indices:  []uint32{0, 1, 69999},
	}
	g, err := toSnapshot(imported)
	if err != nil {
		t.Fatalf("toSnapshot() = %v", err)
	}
	if g.Layout.IndexType != geometry.IndexTypeUint32 || len(g.IndexData) != 12 {
		t.Errorf("index type %d with %d bytes, want uint32 with 12", g.Layout.IndexType, len(g.IndexData))
	}
}

func TestNodeMatrixRotation(t *testing.T) {
	// A quarter turn about +Z maps +X onto +Y.
	s := float32(0.70710677)
	m := nodeMatrix(&gltfNode{Rotation: &[4]float32{0, 0, s, s}})
	p := transformPoint(&m, [3]float32{1, 0, 0})
	if abs(p[0]) > 1e-6 || abs(p[1]-1) > 1e-6 || abs(p[2]) > 1e-6 {
		t.Errorf("rotated point = %v, want (0,1,0)", p)
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
