package geometry

import (
	"fmt"
	"unsafe"
)

const (
	// Magic identifies a geometry channel region ("GEOM").
	Magic uint32 = 0x4D4F4547
	// Version is the only wire version this package reads or writes.
	Version uint32 = 1

	// MaxAttributes is the number of attribute slots in the header.
	MaxAttributes = 8
	// MaxVertexBytes is the capacity of the vertex payload.
	MaxVertexBytes = 4 * 1024 * 1024
	// MaxIndexBytes is the capacity of the index payload.
	MaxIndexBytes = 2 * 1024 * 1024
)

// WireBinding is the on-wire binding descriptor.
type WireBinding struct {
	Binding   uint32
	Stride    uint32
	InputRate uint32
}

// WireAttribute is the on-wire attribute descriptor.
type WireAttribute struct {
	Location uint32
	Binding  uint32
	Format   uint32
	Offset   uint32
}

// Header is the fixed-layout control block at the start of the shared region. Every field is
// 4 bytes wide, so the Go layout has no padding and matches the C layout of the same fields.
//
// Sequence is even while the region is stable and odd while a writer is mid-update.
// ConsumerSequence is the only field written by the reader.
type Header struct {
	Magic          uint32
	Version        uint32
	Sequence       uint32
	HasGeometry    uint32
	HasTransform   uint32
	VertexStride   uint32
	VertexCount    uint32
	IndexCount     uint32
	IndexType      uint32
	Topology       uint32
	AttributeCount uint32
	Binding        WireBinding
	Attributes     [MaxAttributes]WireAttribute
	Model          [16]float32
	View           [16]float32
	Proj           [16]float32

	ConsumerSequence uint32
}

var (
	// HeaderSize is the byte size of Header.
	HeaderSize = int(unsafe.Sizeof(Header{}))
	// VertexDataOffset is the offset of the vertex payload from the start of the region.
	VertexDataOffset = HeaderSize
	// IndexDataOffset is the offset of the index payload from the start of the region.
	IndexDataOffset = HeaderSize + MaxVertexBytes
	// RegionSize is the total byte size of a shared geometry region.
	RegionSize = HeaderSize + MaxVertexBytes + MaxIndexBytes
)

// CopyContentFrom copies every field of src except Sequence and ConsumerSequence, which belong
// to the seqlock protocol and the reader respectively.
// Fields are assigned one by one; the two protocol words are never written, not even transiently.
//
// Parameters:
//   - src: the header to copy from
func (h *Header) CopyContentFrom(src *Header) {
	h.Magic = src.Magic
	h.Version = src.Version
	h.HasGeometry = src.HasGeometry
	h.HasTransform = src.HasTransform
	h.VertexStride = src.VertexStride
	h.VertexCount = src.VertexCount
	h.IndexCount = src.IndexCount
	h.IndexType = src.IndexType
	h.Topology = src.Topology
	h.AttributeCount = src.AttributeCount
	h.Binding = src.Binding
	h.Attributes = src.Attributes
	h.Model = src.Model
	h.View = src.View
	h.Proj = src.Proj
}

// Frame is an encoded update: a header and the payload bytes it describes.
type Frame struct {
	Header Header
	Vertex []byte
	Index  []byte
}

// Encode converts snapshots into a Frame. A nil geometry or transform clears the matching
// has-flag. Encode never fails; staying within MaxAttributes, MaxVertexBytes and MaxIndexBytes
// is the producer's responsibility (the channel writer rejects frames that do not fit).
//
// Parameters:
//   - g: the geometry to send, or nil to send a transform-only update
//   - t: the transform to send, or nil
//
// Returns:
//   - Frame: the encoded header and payload slices (the payload aliases g's byte slices)
func Encode(g *GeometrySnapshot, t *TransformSnapshot) Frame {
	f := Frame{}
	h := &f.Header
	h.Magic = Magic
	h.Version = Version

	if g != nil {
		stride := g.Stride()
		width := g.Layout.IndexType.Width()

		h.HasGeometry = 1
		h.VertexStride = stride
		if stride > 0 {
			h.VertexCount = uint32(len(g.VertexData)) / stride
		}
		h.IndexCount = uint32(len(g.IndexData)) / width
		h.IndexType = uint32(g.Layout.IndexType)
		h.Topology = uint32(g.Layout.Topology)
		h.Binding = WireBinding{
			Binding:   g.Layout.Binding.Binding,
			Stride:    stride,
			InputRate: uint32(g.Layout.Binding.InputRate),
		}
		h.AttributeCount = uint32(len(g.Layout.Attributes))
		for i, a := range g.Layout.Attributes {
			if i >= MaxAttributes {
				break
			}
			h.Attributes[i] = WireAttribute{
				Location: a.Location,
				Binding:  a.Binding,
				Format:   uint32(a.Format),
				Offset:   a.Offset,
			}
		}
		f.Vertex = g.VertexData
		f.Index = g.IndexData
	}

	if t != nil {
		h.HasTransform = 1
		h.Model = t.Model
		h.View = t.View
		h.Proj = t.Proj
	}

	return f
}

// ValidateHeader checks a header copy and returns the payload sizes it declares.
// Checks run in order: magic and version, presence of content, then (for geometry updates)
// attribute count, vertex byte size, index byte size and stride agreement.
//
// Parameters:
//   - h: the header to validate
//
// Returns:
//   - int: the vertex payload size in bytes (0 for transform-only updates)
//   - int: the index payload size in bytes (0 for un-indexed or transform-only updates)
//   - error: a validation sentinel wrapped with detail, or nil
func ValidateHeader(h *Header) (int, int, error) {
	if h.Magic != Magic {
		return 0, 0, fmt.Errorf("%w: 0x%08X", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return 0, 0, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, Version)
	}
	if h.HasGeometry == 0 {
		if h.HasTransform == 0 {
			return 0, 0, ErrEmptyUpdate
		}
		return 0, 0, nil
	}

	if h.AttributeCount == 0 || h.AttributeCount > MaxAttributes {
		return 0, 0, fmt.Errorf("%w: %d", ErrAttributeCount, h.AttributeCount)
	}

	vertexBytes := uint64(h.VertexCount) * uint64(h.VertexStride)
	if vertexBytes == 0 || vertexBytes > MaxVertexBytes {
		return 0, 0, fmt.Errorf("%w: %d", ErrVertexBytes, vertexBytes)
	}

	var indexBytes uint64
	if h.IndexCount > 0 {
		indexBytes = uint64(h.IndexCount) * uint64(IndexType(h.IndexType).Width())
		if indexBytes > MaxIndexBytes {
			return 0, 0, fmt.Errorf("%w: %d", ErrIndexBytes, indexBytes)
		}
	}

	if h.VertexStride != h.Binding.Stride {
		return 0, 0, fmt.Errorf("%w: header %d, binding %d", ErrStrideMismatch, h.VertexStride, h.Binding.Stride)
	}

	return int(vertexBytes), int(indexBytes), nil
}

// Decode validates a header copy and builds an Update, copying the declared number of bytes out
// of the payload regions. The returned snapshot owns its bytes.
//
// Parameters:
//   - h: a stable copy of the header
//   - vertexRegion: the vertex payload region (at least the declared size)
//   - indexRegion: the index payload region (at least the declared size)
//
// Returns:
//   - Update: the decoded update
//   - error: a validation error; the caller must treat the update as absent
func Decode(h *Header, vertexRegion, indexRegion []byte) (Update, error) {
	vertexBytes, indexBytes, err := ValidateHeader(h)
	if err != nil {
		return Update{}, err
	}
	if len(vertexRegion) < vertexBytes || len(indexRegion) < indexBytes {
		return Update{}, ErrPayloadTooSmall
	}

	u := Update{Sequence: h.Sequence}

	if h.HasGeometry != 0 {
		attrs := make([]Attribute, h.AttributeCount)
		for i := range attrs {
			wa := h.Attributes[i]
			attrs[i] = Attribute{
				Location: wa.Location,
				Binding:  wa.Binding,
				Format:   Format(wa.Format),
				Offset:   wa.Offset,
			}
		}

		g := GeometrySnapshot{
			Layout: Layout{
				Binding: Binding{
					Binding:   h.Binding.Binding,
					Stride:    h.Binding.Stride,
					InputRate: InputRate(h.Binding.InputRate),
				},
				Attributes: attrs,
				Topology:   Topology(h.Topology),
				IndexType:  IndexType(h.IndexType),
			},
			VertexData:  make([]byte, vertexBytes),
			VertexCount: h.VertexCount,
		}
		copy(g.VertexData, vertexRegion[:vertexBytes])
		if indexBytes > 0 {
			g.IndexData = make([]byte, indexBytes)
			copy(g.IndexData, indexRegion[:indexBytes])
			g.IndexCount = h.IndexCount
		}

		u.HasGeometry = true
		u.Geometry = g
	}

	if h.HasTransform != 0 {
		u.HasTransform = true
		u.Transform = TransformSnapshot{Model: h.Model, View: h.View, Proj: h.Proj}
	}

	return u, nil
}
