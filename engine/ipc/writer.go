package ipc

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
)

// Writer is the producer end of the geometry channel. Exactly one writer may publish into a
// region at a time.
type Writer interface {
	// Create creates and zeroes the region. Calling Create on an open writer is a no-op.
	//
	// Returns:
	//   - error: an error if the region could not be created or mapped
	Create() error

	// Close unmaps the region and, if configured, removes its backing file.
	//
	// Returns:
	//   - error: an error if unmapping or removal failed
	Close() error

	// IsOpen reports whether the region is mapped.
	IsOpen() bool

	// Publish writes a frame under the seqlock protocol: the sequence goes odd, the header
	// content and payload are written, and the sequence goes even again.
	//
	// Parameters:
	//   - f: the encoded frame
	//
	// Returns:
	//   - uint32: the new (even) sequence
	//   - error: ErrClosed, or ErrCapacityExceeded without touching the region
	Publish(f geometry.Frame) (uint32, error)

	// Sequence returns the current sequence word.
	Sequence() uint32

	// ConsumerSequence returns the last geometry sequence the reader acknowledged, 0 if none.
	ConsumerSequence() uint32
}

// writer is the implementation of the Writer interface.
type writer struct {
	cfg    channelConfig
	region *SharedRegion
}

var _ Writer = &writer{}

// NewWriter creates a Writer. Call Create before publishing.
//
// Parameters:
//   - options: functional options configuring the channel name and directory
//
// Returns:
//   - Writer: the writer
func NewWriter(options ...ChannelBuilderOption) Writer {
	w := &writer{cfg: defaultChannelConfig()}
	for _, opt := range options {
		opt(&w.cfg)
	}
	return w
}

func (w *writer) Create() error {
	if w.region != nil {
		return nil
	}
	region, err := CreateRegion(w.cfg.name, w.cfg.dir)
	if err != nil {
		return err
	}
	w.region = region
	common.Logger().Info("geometry channel created", "name", w.cfg.name, "bytes", geometry.RegionSize)
	return nil
}

func (w *writer) Close() error {
	if w.region == nil {
		return nil
	}
	err := w.region.Close()
	w.region = nil
	if w.cfg.removeOnClose {
		err = errors.Join(err, removeRegion(w.cfg.name, w.cfg.dir))
	}
	return err
}

func (w *writer) IsOpen() bool {
	return w.region != nil
}

func (w *writer) Sequence() uint32 {
	if w.region == nil {
		return 0
	}
	return atomic.LoadUint32(&w.region.Header().Sequence)
}

func (w *writer) ConsumerSequence() uint32 {
	if w.region == nil {
		return 0
	}
	return atomic.LoadUint32(&w.region.Header().ConsumerSequence)
}

func (w *writer) Publish(f geometry.Frame) (uint32, error) {
	if w.region == nil {
		return 0, ErrClosed
	}
	if len(f.Vertex) > geometry.MaxVertexBytes ||
		len(f.Index) > geometry.MaxIndexBytes ||
		f.Header.AttributeCount > geometry.MaxAttributes {
		return 0, fmt.Errorf("%w: %d vertex bytes, %d index bytes, %d attributes",
			ErrCapacityExceeded, len(f.Vertex), len(f.Index), f.Header.AttributeCount)
	}

	hdr := w.region.Header()
	seq := atomic.LoadUint32(&hdr.Sequence)
	if seq&1 != 0 {
		// Left odd by a writer that died mid-publish.
		seq++
	}
	atomic.StoreUint32(&hdr.Sequence, seq+1)

	hdr.CopyContentFrom(&f.Header)
	copy(w.region.VertexRegion(), f.Vertex)
	copy(w.region.IndexRegion(), f.Index)

	atomic.StoreUint32(&hdr.Sequence, seq+2)
	return seq + 2, nil
}
