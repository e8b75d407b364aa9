package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-link/common"
)

// gltfLoaderBackendImpl is the loaderBackend for glTF/GLB files.
type gltfLoaderBackendImpl struct{}

var _ loaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
func newGLTFLoaderBackend() loaderBackend {
	return &gltfLoaderBackendImpl{}
}

func (b *gltfLoaderBackendImpl) Load(path string, defaultColor [3]float32) (*importedMesh, error) {
	parser := newGLTFParser()
	if err := parser.Parse(path); err != nil {
		return nil, err
	}
	return b.extract(parser, defaultColor)
}

func (b *gltfLoaderBackendImpl) LoadReader(r io.Reader, isGLB bool, defaultColor [3]float32) (*importedMesh, error) {
	parser := newGLTFParser()
	if err := parser.ParseReader(r, isGLB); err != nil {
		return nil, err
	}
	return b.extract(parser, defaultColor)
}

func (b *gltfLoaderBackendImpl) extract(parser gltfParser, defaultColor [3]float32) (*importedMesh, error) {
	extractor := newGLTFMeshExtractor(parser, defaultColor)
	vertices, indices, err := extractor.ExtractScene()
	if err != nil {
		return nil, err
	}
	if n := extractor.Skipped(); n > 0 {
		common.Logger().Warn("ignored non-triangle primitives", "count", n)
	}
	return &importedMesh{vertices: vertices, indices: indices}, nil
}
