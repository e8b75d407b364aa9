package pipeline

import "github.com/Carmen-Shannon/oxy-link/engine/renderer/shader"

// PipelineBuilderOption is a functional option applied to a pipeline during construction via NewPipeline.
type PipelineBuilderOption func(*pipeline)

// WithShader sets the program the pipeline runs.
//
// Parameters:
//   - s: the shader (must expose vertex and fragment entry points)
//
// Returns:
//   - PipelineBuilderOption: a function that applies the shader option to a pipeline
func WithShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.shader = s
	}
}

// WithCullMode sets which faces are culled.
//
// Parameters:
//   - mode: the cull mode (default CullModeNone)
//
// Returns:
//   - PipelineBuilderOption: a function that applies the cull mode option to a pipeline
func WithCullMode(mode CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullMode = mode
	}
}

// WithFrontFace sets the front-face winding.
//
// Parameters:
//   - face: the winding (default FrontFaceCCW)
//
// Returns:
//   - PipelineBuilderOption: a function that applies the front face option to a pipeline
func WithFrontFace(face FrontFace) PipelineBuilderOption {
	return func(p *pipeline) {
		p.frontFace = face
	}
}

// WithDepthTest enables or disables depth testing.
//
// Parameters:
//   - enabled: true to depth test fragments (default true)
//
// Returns:
//   - PipelineBuilderOption: a function that applies the depth test option to a pipeline
func WithDepthTest(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthTestEnabled = enabled
	}
}
