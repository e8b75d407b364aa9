// Package loader reads model files into a single geometry.GeometrySnapshot a producer can publish.
// Every triangle primitive of the default scene is flattened, with node transforms baked in, into
// ColorVertex data.
package loader

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// DefaultColor is the vertex color for primitives without a COLOR_0 attribute.
var DefaultColor = [3]float32{0.8, 0.8, 0.8}

// importedMesh is the CPU-side result of a backend import.
type importedMesh struct {
	vertices []geometry.ColorVertex
	indices  []uint32
}

// loaderBackend imports one file format.
type loaderBackend interface {
	// Load imports the file at path.
	Load(path string, defaultColor [3]float32) (*importedMesh, error)

	// LoadReader imports from a stream.
	LoadReader(r io.Reader, isGLB bool, defaultColor [3]float32) (*importedMesh, error)
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	meshCache map[string]geometry.GeometrySnapshot

	backend      loaderBackend
	defaultColor [3]float32
	fitToUnit    bool
}

// Loader loads and caches meshes from model files.
type Loader interface {
	// Load imports a model file and caches the result by path. The backend is selected from the
	// file extension (.gltf/.glb).
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - geometry.GeometrySnapshot: the flattened mesh; callers own the returned copy
	//   - error: error if the format is unsupported, parsing fails or the mesh exceeds the channel limits
	Load(path string) (geometry.GeometrySnapshot, error)

	// LoadReader imports a model from a reader stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key for the loaded mesh
	//   - r: the reader providing model data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - geometry.GeometrySnapshot: the flattened mesh
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, isGLB bool) (geometry.GeometrySnapshot, error)

	// Get retrieves a cached mesh by name.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - geometry.GeometrySnapshot: a copy of the cached mesh
	//   - bool: false if nothing is cached under name
	Get(name string) (geometry.GeometrySnapshot, bool)
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		meshCache:    make(map[string]geometry.GeometrySnapshot),
		defaultColor: DefaultColor,
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend()
	}

	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(path string) (geometry.GeometrySnapshot, error) {
	if cached, ok := l.Get(path); ok {
		return cached, nil
	}

	backend, err := l.resolveBackend(path)
	if err != nil {
		return geometry.GeometrySnapshot{}, err
	}

	imported, err := backend.Load(path, l.defaultColor)
	if err != nil {
		return geometry.GeometrySnapshot{}, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return l.store(path, imported)
}

func (l *loader) LoadReader(name string, r io.Reader, isGLB bool) (geometry.GeometrySnapshot, error) {
	if cached, ok := l.Get(name); ok {
		return cached, nil
	}
	if l.backend == nil {
		return geometry.GeometrySnapshot{}, fmt.Errorf("loader has no backend")
	}

	imported, err := l.backend.LoadReader(r, isGLB, l.defaultColor)
	if err != nil {
		return geometry.GeometrySnapshot{}, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	return l.store(name, imported)
}

func (l *loader) Get(name string) (geometry.GeometrySnapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.meshCache[name]
	if !ok {
		return geometry.GeometrySnapshot{}, false
	}
	return g.Clone(), true
}

// store converts and caches an import.
func (l *loader) store(key string, imported *importedMesh) (geometry.GeometrySnapshot, error) {
	if l.fitToUnit {
		fitToUnit(imported.vertices)
	}

	g, err := toSnapshot(imported)
	if err != nil {
		return geometry.GeometrySnapshot{}, fmt.Errorf("%s: %w", key, err)
	}
	common.Logger().Info("loaded mesh", "source", key, "vertices", g.VertexCount, "indices", g.IndexCount, "indexType", g.Layout.IndexType)

	l.mu.Lock()
	l.meshCache[key] = g
	l.mu.Unlock()
	return g.Clone(), nil
}

// resolveBackend selects an appropriate loader backend based on the file extension.
// Currently only glTF/GLB is supported.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf", ".glb":
		if l.backend != nil {
			return l.backend, nil
		}
	}
	return nil, fmt.Errorf("unsupported model format: %s", ext)
}

// toSnapshot packs an import into channel layout: 16-bit indices when every index fits,
// 32-bit otherwise.
func toSnapshot(imported *importedMesh) (geometry.GeometrySnapshot, error) {
	vertexData := slices.Clone(common.SliceToBytes(imported.vertices))
	if len(vertexData) > geometry.MaxVertexBytes {
		return geometry.GeometrySnapshot{}, fmt.Errorf("%w: %d bytes", geometry.ErrVertexBytes, len(vertexData))
	}

	indexType := geometry.IndexTypeUint16
	var indexData []byte
	if len(imported.vertices) <= math.MaxUint16+1 {
		narrow := make([]uint16, len(imported.indices))
		for i, idx := range imported.indices {
			narrow[i] = uint16(idx)
		}
		indexData = slices.Clone(common.SliceToBytes(narrow))
	} else {
		indexType = geometry.IndexTypeUint32
		indexData = slices.Clone(common.SliceToBytes(imported.indices))
	}
	if len(indexData) > geometry.MaxIndexBytes {
		return geometry.GeometrySnapshot{}, fmt.Errorf("%w: %d bytes", geometry.ErrIndexBytes, len(indexData))
	}

	return geometry.GeometrySnapshot{
		Layout:      geometry.ColorVertexLayout(indexType),
		VertexData:  vertexData,
		IndexData:   indexData,
		VertexCount: uint32(len(imported.vertices)),
		IndexCount:  uint32(len(imported.indices)),
	}, nil
}

// fitToUnit recenters vertices on the origin and scales the largest extent to 1.
func fitToUnit(vertices []geometry.ColorVertex) {
	bmin, bmax := gltfCalculateBoundingBox(vertices)
	extent := max(bmax[0]-bmin[0], bmax[1]-bmin[1], bmax[2]-bmin[2])
	if extent <= 0 {
		return
	}

	scale := 1 / extent
	for i := range vertices {
		for j := 0; j < 3; j++ {
			center := (bmin[j] + bmax[j]) / 2
			vertices[i].Pos[j] = (vertices[i].Pos[j] - center) * scale
		}
	}
}
