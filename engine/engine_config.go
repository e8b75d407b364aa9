package engine

import (
	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/config"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer"
	"github.com/Carmen-Shannon/oxy-link/engine/staging"
	"github.com/Carmen-Shannon/oxy-link/engine/window"
)

// OptionsFromConfig converts the viewer and channel sections of a config into engine builder
// options. The config package itself stays free of the window and GPU packages so headless
// tools can load it.
//
// Parameters:
//   - c: the loaded configuration
//
// Returns:
//   - []EngineBuilderOption: options for NewEngine
func OptionsFromConfig(c config.Config) []EngineBuilderOption {
	d := config.Default().Viewer
	v := c.Viewer
	width := common.Coalesce(v.Width, d.Width)
	height := common.Coalesce(v.Height, d.Height)

	var rendererOpts []renderer.RendererBuilderOption
	if v.VSync != nil && !*v.VSync {
		rendererOpts = append(rendererOpts, renderer.WithPresentMode(renderer.PresentModeUncapped))
	}
	if v.SoftwareGPU {
		rendererOpts = append(rendererOpts, renderer.WithForceSoftwareRenderer(true))
	}

	opts := []EngineBuilderOption{
		WithChannelOptions(c.ChannelOptions()...),
		WithRendererOptions(rendererOpts...),
		WithFramesInFlight(common.Coalesce(v.FramesInFlight, d.FramesInFlight)),
		WithStagingOptions(staging.WithCapacity(common.Coalesce(v.StagingBytes, staging.DefaultCapacity))),
		WithRenderFrameLimit(v.FrameLimit),
		WithReopenInterval(common.Coalesce(v.ReopenInterval, d.ReopenInterval)),
		WithProfiling(v.Profile),
	}
	if v.Headless {
		opts = append(opts, WithHeadless(width, height))
	} else {
		opts = append(opts, WithWindowOptions(
			window.WithTitle(common.Coalesce(v.Title, d.Title)),
			window.WithWidth(width),
			window.WithHeight(height),
			window.WithFullscreen(v.Fullscreen),
		))
	}
	if v.InitialCube {
		opts = append(opts, WithInitialMesh(geometry.Cube()))
	}
	return opts
}
