package pipeline

import (
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer/shader"
)

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

// FrontFace selects the winding order of front-facing triangles.
type FrontFace int

const (
	FrontFaceCCW FrontFace = iota
	FrontFaceCW
)

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	// pipelineKey is the label used for backend objects created for this pipeline.
	pipelineKey string

	// layout is the vertex layout and topology the pipeline is built for.
	layout geometry.Layout

	// shader is the program the pipeline runs.
	shader shader.Shader

	cullMode         CullMode
	frontFace        FrontFace
	depthTestEnabled bool

	// handle is the backend object, set by RendererBackend.CreatePipeline.
	handle any
}

// Pipeline describes the fixed-function state for drawing one vertex layout: the binding and
// attribute descriptions, the primitive topology, culling and depth testing. A pipeline is
// immutable once created; a layout change means building a new one.
type Pipeline interface {
	// PipelineKey returns the label used for backend objects.
	//
	// Returns:
	//   - string: the pipeline key
	PipelineKey() string

	// Layout returns the vertex layout the pipeline accepts.
	//
	// Returns:
	//   - geometry.Layout: a copy of the layout
	Layout() geometry.Layout

	// Shader returns the program bound by the pipeline.
	//
	// Returns:
	//   - shader.Shader: the shader
	Shader() shader.Shader

	// CullMode returns the face culling mode.
	CullMode() CullMode

	// FrontFace returns the front-face winding.
	FrontFace() FrontFace

	// DepthTestEnabled reports whether fragments are depth tested.
	DepthTestEnabled() bool

	// Handle returns the backend pipeline object, or nil before creation / after destruction.
	// The caller is responsible for type asserting it to the backend's type.
	//
	// Returns:
	//   - any: the backend object
	Handle() any

	// SetHandle stores the backend pipeline object.
	//
	// Parameters:
	//   - handle: the backend object, or nil to mark the pipeline destroyed
	SetHandle(handle any)
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a Pipeline description for a vertex layout. Defaults: no culling,
// counter-clockwise front faces, depth testing on, the built-in color shader.
//
// Parameters:
//   - key: label for backend objects
//   - layout: the vertex layout and topology to build for (copied)
//   - options: functional options overriding the defaults
//
// Returns:
//   - Pipeline: the description; pass it to RendererBackend.CreatePipeline
func NewPipeline(key string, layout geometry.Layout, options ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:      key,
		layout:           layout.Clone(),
		shader:           shader.Default(),
		cullMode:         CullModeNone,
		frontFace:        FrontFaceCCW,
		depthTestEnabled: true,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Layout() geometry.Layout {
	return p.layout.Clone()
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) CullMode() CullMode {
	return p.cullMode
}

func (p *pipeline) FrontFace() FrontFace {
	return p.frontFace
}

func (p *pipeline) DepthTestEnabled() bool {
	return p.depthTestEnabled
}

func (p *pipeline) Handle() any {
	return p.handle
}

func (p *pipeline) SetHandle(handle any) {
	p.handle = handle
}
