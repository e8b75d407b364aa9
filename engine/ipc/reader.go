package ipc

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
)

// ReaderStats counts TryConsume outcomes since the reader was created.
type ReaderStats struct {
	// Consumed is the number of updates returned.
	Consumed uint64
	// Stale counts reads where the sequence had not moved since the last consumed update.
	Stale uint64
	// InProgress counts reads that found an odd sequence.
	InProgress uint64
	// Torn counts copies discarded because the sequence changed underneath them.
	Torn uint64
	// Invalid counts stable snapshots rejected by header validation.
	Invalid uint64
	// Failed counts stable snapshots that could not be decoded for any other reason.
	Failed uint64
}

// Reader is the consumer end of the geometry channel. It is meant to be polled once per rendered
// frame and never blocks.
type Reader interface {
	// Open maps the existing region. Calling Open on an open reader is a no-op.
	// Opening resets the acknowledgment field so the writer retransmits geometry.
	//
	// Returns:
	//   - error: ErrNotFound if no writer has created the region yet
	Open() error

	// Close releases the mapping. TryConsume reports no update until the reader is reopened.
	//
	// Returns:
	//   - error: an error if unmapping failed
	Close() error

	// IsOpen reports whether the region is mapped.
	IsOpen() bool

	// Superseded reports whether a writer recreated the region under the same name after the
	// reader mapped it. The mapping then no longer receives updates; Close and Open to follow
	// the new region.
	Superseded() bool

	// TryConsume returns the newest stable update if one was published since the last call.
	// It retries a bounded number of times when it races the writer, then gives up until the
	// next call. Transport failures are never returned as errors.
	//
	// Returns:
	//   - geometry.Update: the decoded update (zero value when the bool is false)
	//   - bool: true if a new, valid update was read
	TryConsume() (geometry.Update, bool)

	// LastConsumed returns the sequence of the last update TryConsume returned.
	LastConsumed() uint32

	// Stats returns a copy of the outcome counters.
	Stats() ReaderStats
}

// reader is the implementation of the Reader interface.
type reader struct {
	cfg    channelConfig
	region *SharedRegion

	lastConsumed uint32
	stats        ReaderStats
}

var _ Reader = &reader{}

// NewReader creates an unopened Reader.
//
// Parameters:
//   - options: functional options configuring the channel name, directory, retries and acknowledgment
//
// Returns:
//   - Reader: the reader; call Open before polling
func NewReader(options ...ChannelBuilderOption) Reader {
	r := &reader{cfg: defaultChannelConfig()}
	for _, opt := range options {
		opt(&r.cfg)
	}
	return r
}

func (r *reader) Open() error {
	if r.region != nil {
		return nil
	}
	region, err := OpenRegion(r.cfg.name, r.cfg.dir)
	if err != nil {
		return err
	}
	r.region = region
	if r.cfg.acknowledge {
		atomic.StoreUint32(&region.Header().ConsumerSequence, 0)
	}
	common.Logger().Info("geometry channel opened", "name", r.cfg.name)
	return nil
}

func (r *reader) Close() error {
	if r.region == nil {
		return nil
	}
	err := r.region.Close()
	r.region = nil
	return err
}

func (r *reader) IsOpen() bool {
	return r.region != nil
}

func (r *reader) Superseded() bool {
	return r.region != nil && r.region.Superseded()
}

func (r *reader) LastConsumed() uint32 {
	return r.lastConsumed
}

func (r *reader) Stats() ReaderStats {
	return r.stats
}

func (r *reader) TryConsume() (geometry.Update, bool) {
	if r.region == nil {
		return geometry.Update{}, false
	}
	hdr := r.region.Header()
	log := common.Logger()

	for attempt := 0; attempt <= r.cfg.retries; attempt++ {
		s1 := atomic.LoadUint32(&hdr.Sequence)
		if s1 == r.lastConsumed {
			r.stats.Stale++
			return geometry.Update{}, false
		}
		if s1&1 != 0 {
			r.stats.InProgress++
			continue
		}

		local := *hdr

		s2 := atomic.LoadUint32(&hdr.Sequence)
		if s2 != s1 || s2&1 != 0 {
			r.stats.Torn++
			continue
		}
		local.Sequence = s1

		u, err := geometry.Decode(&local, r.region.VertexRegion(), r.region.IndexRegion())
		if err != nil {
			if geometry.IsValidation(err) {
				r.stats.Invalid++
				log.Debug("discarding geometry snapshot", "sequence", s1, "error", err)
			} else {
				r.stats.Failed++
				log.Warn("decoding geometry snapshot failed", "sequence", s1, "error", err)
			}
			return geometry.Update{}, false
		}

		// The payload is copied after the header check, so it gets its own.
		if s3 := atomic.LoadUint32(&hdr.Sequence); s3 != s1 {
			r.stats.Torn++
			continue
		}

		r.lastConsumed = s1
		r.stats.Consumed++
		if r.cfg.acknowledge && u.HasGeometry {
			atomic.StoreUint32(&hdr.ConsumerSequence, s1)
		}
		return u, true
	}

	log.Debug("geometry channel busy, retrying next frame", "retries", r.cfg.retries)
	return geometry.Update{}, false
}
