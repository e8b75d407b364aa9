package ipc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
)

// MappingName is the well-known name of the geometry channel. On Windows it names a session-local
// file mapping; elsewhere the part after the last separator names a file in the shm directory.
const MappingName = `Local\VulkanSharedGeometry`

// DefaultDirectory is where non-Windows platforms keep the backing file of a region.
const DefaultDirectory = "/dev/shm"

// SharedRegion is a scoped handle to a mapped geometry region. The constructor performs the
// mapping; Close unmaps it and releases the OS handle on every path and is safe to call twice.
type SharedRegion struct {
	mu      *sync.Mutex
	name    string
	data    []byte
	header  *geometry.Header
	release func() error

	// superseded reports whether the name now refers to a different region; nil where a name
	// cannot be rebound while mapped.
	superseded func() bool
}

// newSharedRegion wraps a mapping produced by a platform constructor.
func newSharedRegion(name string, data []byte, release func() error) (*SharedRegion, error) {
	if len(data) < geometry.RegionSize {
		if err := release(); err != nil {
			return nil, fmt.Errorf("%w (release: %v)", ErrRegionTooSmall, err)
		}
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrRegionTooSmall, len(data), geometry.RegionSize)
	}
	return &SharedRegion{
		mu:      &sync.Mutex{},
		name:    name,
		data:    data,
		header:  (*geometry.Header)(unsafe.Pointer(&data[0])),
		release: release,
	}, nil
}

// CreateRegion creates (or re-opens) the named region with its full size and zeroes it. When the
// region already exists its sequence word survives, rounded up to even, so a reader still
// holding the mapping sees the new writer's first publish as newer than anything it consumed.
//
// Parameters:
//   - name: the channel name
//   - dir: the directory backing regions on non-Windows platforms
//
// Returns:
//   - *SharedRegion: the mapped region
//   - error: an error if the region could not be created or mapped
func CreateRegion(name, dir string) (*SharedRegion, error) {
	r, err := platformCreateRegion(name, dir, geometry.RegionSize)
	if err != nil {
		return nil, fmt.Errorf("create region %q: %w", name, err)
	}
	seq := atomic.LoadUint32(&r.header.Sequence)
	clear(r.data)
	atomic.StoreUint32(&r.header.Sequence, (seq+1)&^1)
	return r, nil
}

// OpenRegion maps an existing region. It never creates one.
//
// Parameters:
//   - name: the channel name
//   - dir: the directory backing regions on non-Windows platforms
//
// Returns:
//   - *SharedRegion: the mapped region
//   - error: ErrNotFound if nothing exists under name, or a mapping error
func OpenRegion(name, dir string) (*SharedRegion, error) {
	r, err := platformOpenRegion(name, dir, geometry.RegionSize)
	if err != nil {
		return nil, fmt.Errorf("open region %q: %w", name, err)
	}
	return r, nil
}

// Name returns the channel name the region was mapped under.
func (r *SharedRegion) Name() string {
	return r.name
}

// Header returns the header at the start of the mapping. Sequence and ConsumerSequence must be
// accessed with sync/atomic.
func (r *SharedRegion) Header() *geometry.Header {
	return r.header
}

// VertexRegion returns the full-capacity vertex payload area.
func (r *SharedRegion) VertexRegion() []byte {
	return r.data[geometry.VertexDataOffset:geometry.IndexDataOffset]
}

// IndexRegion returns the full-capacity index payload area.
func (r *SharedRegion) IndexRegion() []byte {
	return r.data[geometry.IndexDataOffset:geometry.RegionSize]
}

// Superseded reports whether the region's name has been bound to a new region since this one was
// mapped, which happens when a writer removes the backing file and another creates it again.
func (r *SharedRegion) Superseded() bool {
	r.mu.Lock()
	check := r.superseded
	released := r.release == nil
	r.mu.Unlock()
	return !released && check != nil && check()
}

// Close unmaps the region and closes the underlying handle. Further calls are no-ops.
//
// Returns:
//   - error: an error if unmapping or closing failed
func (r *SharedRegion) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.release == nil {
		return nil
	}
	release := r.release
	r.release = nil
	r.header = nil
	r.data = nil
	return release()
}
