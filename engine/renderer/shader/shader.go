package shader

import (
	_ "embed"
)

// UniformSize is the byte size of the uniform block every shader in this package expects at
// group 0, binding 0: model, view and projection matrices, column-major.
const UniformSize = 3 * 16 * 4

//go:embed color.wgsl
var colorSource string

// shader is the implementation of the Shader interface.
type shader struct {
	key                string
	source             string
	vertexEntryPoint   string
	fragmentEntryPoint string
}

// Shader is a WGSL program with a vertex and a fragment entry point. Compilation happens in the
// renderer backend; this type only carries the source.
type Shader interface {
	// Key returns the unique identifier used to label backend objects.
	//
	// Returns:
	//   - string: the shader key
	Key() string

	// Source returns the WGSL source code.
	//
	// Returns:
	//   - string: the WGSL source
	Source() string

	// VertexEntryPoint returns the name of the vertex stage function.
	VertexEntryPoint() string

	// FragmentEntryPoint returns the name of the fragment stage function.
	FragmentEntryPoint() string
}

var _ Shader = &shader{}

// NewShader creates a Shader from WGSL source.
//
// Parameters:
//   - key: unique identifier for the shader
//   - source: the WGSL source code
//   - vertexEntryPoint: name of the @vertex function
//   - fragmentEntryPoint: name of the @fragment function
//
// Returns:
//   - Shader: the shader
func NewShader(key, source, vertexEntryPoint, fragmentEntryPoint string) Shader {
	return &shader{
		key:                key,
		source:             source,
		vertexEntryPoint:   vertexEntryPoint,
		fragmentEntryPoint: fragmentEntryPoint,
	}
}

// Default returns the built-in shader: position at location 0 and color at location 1, both
// vec3<f32>, transformed by the model/view/projection uniform block.
func Default() Shader {
	return NewShader("color", colorSource, "vs_main", "fs_main")
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) VertexEntryPoint() string {
	return s.vertexEntryPoint
}

func (s *shader) FragmentEntryPoint() string {
	return s.fragmentEntryPoint
}
