package loader

import "github.com/Carmen-Shannon/oxy-link/engine/geometry"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithDefaultColor sets the vertex color used for primitives that carry no COLOR_0 attribute.
//
// Parameters:
//   - rgb: the color in linear 0..1 components
//
// Returns:
//   - LoaderBuilderOption: a function that applies the color option to a loader
func WithDefaultColor(rgb [3]float32) LoaderBuilderOption {
	return func(l *loader) {
		l.defaultColor = rgb
	}
}

// WithFitToUnit recenters loaded meshes on the origin and scales them so their largest extent is 1,
// matching the size of geometry.Cube.
//
// Parameters:
//   - fit: whether to normalize loaded meshes
//
// Returns:
//   - LoaderBuilderOption: a function that applies the fit option to a loader
func WithFitToUnit(fit bool) LoaderBuilderOption {
	return func(l *loader) {
		l.fitToUnit = fit
	}
}

// WithMesh pre-populates the mesh cache.
//
// Parameters:
//   - key: the cache key for the mesh
//   - mesh: the mesh to cache; it is copied
//
// Returns:
//   - LoaderBuilderOption: a function that applies the mesh option to a loader
func WithMesh(key string, mesh geometry.GeometrySnapshot) LoaderBuilderOption {
	return func(l *loader) {
		l.meshCache[key] = mesh.Clone()
	}
}
