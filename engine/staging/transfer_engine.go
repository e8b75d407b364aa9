// Package staging moves host bytes into device-local buffers through a fixed-size circular
// staging buffer. Each upload is an asynchronous device copy guarded by a fence; a staged byte
// range is not written again until the copy reading it has completed.
package staging

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/renderer"
)

var (
	ErrWriteTooLarge = errors.New("staging: write larger than ring capacity")
	ErrEmptyWrite    = errors.New("staging: empty write")
	ErrClosed        = errors.New("staging: transfer engine closed")
)

// region is a staged byte range still being read by an outstanding device copy.
type region struct {
	fence  renderer.Fence
	offset uint64
	size   uint64
}

func (r region) overlaps(offset, size uint64) bool {
	return offset < r.offset+r.size && r.offset < offset+size
}

// TransferStats counts transfer engine activity.
type TransferStats struct {
	Uploads       int
	BytesUploaded uint64

	// Stalls counts regions Write had to wait on because the ring caught up with them.
	Stalls int

	// Wraps counts writes placed at offset 0 because they did not fit before the end.
	Wraps int
}

// transferEngine is the implementation of the TransferEngine interface.
type transferEngine struct {
	mu *sync.Mutex

	backend renderer.RendererBackend
	staging renderer.Buffer

	capacity  uint64
	alignment uint64
	cursor    uint64

	// outstanding is ordered by submission.
	outstanding []region

	stats  TransferStats
	closed bool
}

// TransferEngine stages bytes in a circular host-visible buffer and copies them to device buffers.
//
// Write blocks only when the range it needs is still being read by an earlier copy. All other
// operations either never block (ReclaimCompleted) or block on purpose (WaitAll, Close).
type TransferEngine interface {
	// Write stages data in the ring and returns its offset. If data does not fit between the
	// cursor and the end of the ring it is placed at offset 0. Outstanding regions overlapping
	// the destination range are waited on and reclaimed first.
	//
	// Parameters:
	//   - data: bytes to stage
	//
	// Returns:
	//   - uint64: offset of the staged bytes within the ring
	//   - error: ErrWriteTooLarge (nothing is written), ErrEmptyWrite, ErrClosed, or a device error
	Write(data []byte) (uint64, error)

	// UploadToDevice stages data and submits an asynchronous copy of it into dst at dstOffset.
	// The staged range stays reserved until the copy's fence signals.
	//
	// Parameters:
	//   - dst: the device-local destination buffer
	//   - dstOffset: byte offset in dst
	//   - data: bytes to upload
	//
	// Returns:
	//   - error: any error from Write or from submitting the copy
	UploadToDevice(dst renderer.Buffer, dstOffset uint64, data []byte) error

	// ReclaimCompleted drops every outstanding region whose copy has completed. It never blocks.
	//
	// Returns:
	//   - int: the number of regions reclaimed
	ReclaimCompleted() int

	// WaitAll blocks until every outstanding copy has completed and reclaims them.
	//
	// Returns:
	//   - error: the first fence wait error
	WaitAll() error

	// Outstanding returns the number of copies not yet reclaimed.
	Outstanding() int

	// Capacity returns the ring size in bytes.
	Capacity() uint64

	// Stats returns a snapshot of the activity counters.
	Stats() TransferStats

	// Close waits for outstanding copies and releases the staging buffer.
	//
	// Returns:
	//   - error: the first fence wait error
	Close() error
}

var _ TransferEngine = &transferEngine{}

// NewTransferEngine creates a TransferEngine with its staging buffer.
//
// Parameters:
//   - backend: the device to stage and copy on
//   - options: functional options; see WithCapacity and WithAlignment
//
// Returns:
//   - TransferEngine: the engine
//   - error: an error if the staging buffer cannot be created
func NewTransferEngine(backend renderer.RendererBackend, options ...TransferEngineBuilderOption) (TransferEngine, error) {
	e := &transferEngine{
		mu:        &sync.Mutex{},
		backend:   backend,
		capacity:  DefaultCapacity,
		alignment: DefaultAlignment,
	}
	for _, opt := range options {
		opt(e)
	}
	e.capacity = e.alignUp(e.capacity)

	staging, err := backend.CreateBuffer("Staging Ring", e.capacity, renderer.BufferUsageStaging)
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	e.staging = staging
	return e, nil
}

func (e *transferEngine) alignUp(n uint64) uint64 {
	return (n + e.alignment - 1) &^ (e.alignment - 1)
}

func (e *transferEngine) Write(data []byte) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writeLocked(data)
}

func (e *transferEngine) writeLocked(data []byte) (uint64, error) {
	if e.closed {
		return 0, ErrClosed
	}
	if len(data) == 0 {
		return 0, ErrEmptyWrite
	}
	size := e.alignUp(uint64(len(data)))
	if size > e.capacity {
		return 0, fmt.Errorf("%w: %d bytes, capacity %d", ErrWriteTooLarge, len(data), e.capacity)
	}

	e.reclaimLocked()

	offset := e.cursor
	if offset+size > e.capacity {
		offset = 0
		e.stats.Wraps++
	}

	kept := e.outstanding[:0]
	var waitErr error
	for _, r := range e.outstanding {
		if !r.overlaps(offset, size) {
			kept = append(kept, r)
			continue
		}
		e.stats.Stalls++
		if err := r.fence.Wait(); err != nil && waitErr == nil {
			waitErr = err
		}
		r.fence.Release()
	}
	e.outstanding = kept
	if waitErr != nil {
		return 0, fmt.Errorf("wait for staged region: %w", waitErr)
	}

	if err := e.backend.WriteBuffer(e.staging, offset, data); err != nil {
		return 0, err
	}
	e.cursor = offset + size
	if e.cursor >= e.capacity {
		e.cursor = 0
	}
	return offset, nil
}

func (e *transferEngine) UploadToDevice(dst renderer.Buffer, dstOffset uint64, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	offset, err := e.writeLocked(data)
	if err != nil {
		return err
	}
	fence, err := e.backend.CopyBuffer(e.staging, offset, dst, dstOffset, uint64(len(data)))
	if err != nil {
		return fmt.Errorf("copy to %s: %w", dst.Label(), err)
	}
	e.outstanding = append(e.outstanding, region{fence: fence, offset: offset, size: e.alignUp(uint64(len(data)))})
	e.stats.Uploads++
	e.stats.BytesUploaded += uint64(len(data))
	return nil
}

func (e *transferEngine) ReclaimCompleted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reclaimLocked()
}

func (e *transferEngine) reclaimLocked() int {
	kept := e.outstanding[:0]
	reclaimed := 0
	for _, r := range e.outstanding {
		if r.fence.Signaled() {
			r.fence.Release()
			reclaimed++
			continue
		}
		kept = append(kept, r)
	}
	clear(e.outstanding[len(kept):])
	e.outstanding = kept
	return reclaimed
}

func (e *transferEngine) WaitAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waitAllLocked()
}

func (e *transferEngine) waitAllLocked() error {
	var errs []error
	for _, r := range e.outstanding {
		if err := r.fence.Wait(); err != nil {
			errs = append(errs, err)
		}
		r.fence.Release()
	}
	clear(e.outstanding)
	e.outstanding = e.outstanding[:0]
	return errors.Join(errs...)
}

func (e *transferEngine) Outstanding() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.outstanding)
}

func (e *transferEngine) Capacity() uint64 {
	return e.capacity
}

func (e *transferEngine) Stats() TransferStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *transferEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	err := e.waitAllLocked()
	e.staging.Release()
	e.closed = true
	if err != nil {
		common.Logger().Warn("staging copies failed during close", "error", err)
	}
	return err
}
