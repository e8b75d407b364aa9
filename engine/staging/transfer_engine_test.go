package staging

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-link/engine/renderer"
)

// copyRange is a staged range an issued copy reads from.
type copyRange struct {
	offset, size uint64
	fence        renderer.Fence
}

// auditingBackend wraps the soft backend and records every staging write that lands on a range
// an unfinished copy is still reading.
type auditingBackend struct {
	renderer.SoftRendererBackend

	mu         sync.Mutex
	copies     []copyRange
	writes     int
	violations []string
}

func newAuditingBackend(options ...renderer.RendererBuilderOption) *auditingBackend {
	return &auditingBackend{SoftRendererBackend: renderer.NewSoftRendererBackend(options...)}
}

func (a *auditingBackend) WriteBuffer(buf renderer.Buffer, offset uint64, data []byte) error {
	if buf.Usage()&renderer.BufferUsageStaging != 0 {
		a.mu.Lock()
		a.writes++
		end := offset + uint64(len(data))
		for _, c := range a.copies {
			if offset < c.offset+c.size && c.offset < end && !c.fence.Signaled() {
				a.violations = append(a.violations, fmt.Sprintf("write [%d,%d) over in-flight copy [%d,%d)", offset, end, c.offset, c.offset+c.size))
			}
		}
		a.mu.Unlock()
	}
	return a.SoftRendererBackend.WriteBuffer(buf, offset, data)
}

func (a *auditingBackend) CopyBuffer(src renderer.Buffer, srcOffset uint64, dst renderer.Buffer, dstOffset uint64, size uint64) (renderer.Fence, error) {
	fence, err := a.SoftRendererBackend.CopyBuffer(src, srcOffset, dst, dstOffset, size)
	if err == nil {
		a.mu.Lock()
		a.copies = append(a.copies, copyRange{offset: srcOffset, size: size, fence: fence})
		a.mu.Unlock()
	}
	return fence, err
}

func pattern(seed, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(seed*31 + i)
	}
	return out
}

func TestRingNeverOverwritesInFlightCopy(t *testing.T) {
	backend := newAuditingBackend(renderer.WithSoftCopyLatency(2*time.Millisecond), renderer.WithSoftWorkers(4))
	defer backend.Release()

	engine, err := NewTransferEngine(backend, WithCapacity(64))
	if err != nil {
		t.Fatalf("NewTransferEngine() = %v", err)
	}
	defer engine.Close()

	sizes := []int{24, 20, 17, 30, 8, 64, 3, 40, 24, 24, 24, 12}
	dsts := make([]renderer.Buffer, len(sizes))
	for i, n := range sizes {
		dst, err := backend.CreateBuffer(fmt.Sprintf("dst-%d", i), uint64(n), renderer.BufferUsageVertex|renderer.BufferUsageCopyDst)
		if err != nil {
			t.Fatalf("CreateBuffer() = %v", err)
		}
		dsts[i] = dst
		if err := engine.UploadToDevice(dst, 0, pattern(i, n)); err != nil {
			t.Fatalf("UploadToDevice(%d) = %v", i, err)
		}
	}
	if err := engine.WaitAll(); err != nil {
		t.Fatalf("WaitAll() = %v", err)
	}

	if len(backend.violations) != 0 {
		t.Fatalf("staging writes over in-flight copies:\n%v", backend.violations)
	}
	for i, dst := range dsts {
		got, err := backend.ReadBuffer(dst)
		if err != nil {
			t.Fatalf("ReadBuffer(%d) = %v", i, err)
		}
		if !bytes.Equal(got, pattern(i, sizes[i])) {
			t.Errorf("dst-%d = %v, want %v", i, got, pattern(i, sizes[i]))
		}
	}

	stats := engine.Stats()
	if stats.Wraps == 0 {
		t.Error("Wraps = 0, want the ring to wrap")
	}
	if stats.Uploads != len(sizes) {
		t.Errorf("Uploads = %d, want %d", stats.Uploads, len(sizes))
	}
}

func TestWriteLargerThanCapacityRejected(t *testing.T) {
	backend := newAuditingBackend()
	defer backend.Release()

	engine, err := NewTransferEngine(backend, WithCapacity(32))
	if err != nil {
		t.Fatalf("NewTransferEngine() = %v", err)
	}
	defer engine.Close()

	if _, err := engine.Write(make([]byte, 33)); !errors.Is(err, ErrWriteTooLarge) {
		t.Fatalf("Write(33) = %v, want ErrWriteTooLarge", err)
	}
	if backend.writes != 0 {
		t.Errorf("staging writes after rejection = %d, want 0", backend.writes)
	}

	offset, err := engine.Write(make([]byte, 32))
	if err != nil || offset != 0 {
		t.Errorf("Write(32) = %d, %v, want 0, nil", offset, err)
	}
	if _, err := engine.Write(nil); !errors.Is(err, ErrEmptyWrite) {
		t.Errorf("Write(nil) = %v, want ErrEmptyWrite", err)
	}
}

func TestWriteAlignsAndWraps(t *testing.T) {
	backend := newAuditingBackend()
	defer backend.Release()

	engine, err := NewTransferEngine(backend, WithCapacity(30))
	if err != nil {
		t.Fatalf("NewTransferEngine() = %v", err)
	}
	defer engine.Close()
	if engine.Capacity() != 32 {
		t.Fatalf("Capacity() = %d, want 32", engine.Capacity())
	}

	for i, tc := range []struct {
		size int
		want uint64
	}{
		{size: 6, want: 0},
		{size: 8, want: 8},
		{size: 12, want: 16},
		{size: 4, want: 28},
		{size: 5, want: 0},
	} {
		got, err := engine.Write(make([]byte, tc.size))
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if got != tc.want {
			t.Errorf("write %d of %d bytes at %d, want %d", i, tc.size, got, tc.want)
		}
	}
}

func TestReclaimCompleted(t *testing.T) {
	backend := newAuditingBackend()
	defer backend.Release()

	engine, err := NewTransferEngine(backend)
	if err != nil {
		t.Fatalf("NewTransferEngine() = %v", err)
	}
	defer engine.Close()
	if engine.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", engine.Capacity(), DefaultCapacity)
	}

	dst, _ := backend.CreateBuffer("dst", 64, renderer.BufferUsageCopyDst)
	for i := range 3 {
		if err := engine.UploadToDevice(dst, uint64(i*16), pattern(i, 16)); err != nil {
			t.Fatalf("UploadToDevice() = %v", err)
		}
	}
	if err := backend.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() = %v", err)
	}
	if n := engine.ReclaimCompleted(); n != 3 {
		t.Errorf("ReclaimCompleted() = %d, want 3", n)
	}
	if engine.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d, want 0", engine.Outstanding())
	}
}

func TestUploadAfterClose(t *testing.T) {
	backend := newAuditingBackend()
	defer backend.Release()

	engine, err := NewTransferEngine(backend, WithCapacity(64))
	if err != nil {
		t.Fatalf("NewTransferEngine() = %v", err)
	}
	dst, _ := backend.CreateBuffer("dst", 16, renderer.BufferUsageCopyDst)
	if err := engine.UploadToDevice(dst, 0, pattern(1, 16)); err != nil {
		t.Fatalf("UploadToDevice() = %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if engine.Outstanding() != 0 {
		t.Errorf("Outstanding() after Close = %d, want 0", engine.Outstanding())
	}
	if err := engine.UploadToDevice(dst, 0, pattern(1, 16)); !errors.Is(err, ErrClosed) {
		t.Errorf("UploadToDevice after Close = %v, want ErrClosed", err)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
