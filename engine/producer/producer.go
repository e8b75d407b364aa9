// Package producer publishes a mesh and a per-cycle transform into the geometry channel. Geometry
// is withheld once the consumer acknowledges it; until then it is retransmitted with a bounded
// exponential backoff.
package producer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/camera"
	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/ipc"
	"github.com/google/uuid"
)

// PublishResult describes one publish cycle.
type PublishResult struct {
	// Sequence is the channel sequence after the publish.
	Sequence uint32
	// WithGeometry reports whether the cycle carried the mesh.
	WithGeometry bool
	// Acknowledged reports whether the consumer had acknowledged the current mesh before the cycle.
	Acknowledged bool
}

// Stats counts publish activity.
type Stats struct {
	Cycles        uint64
	GeometrySends uint64
	TransformOnly uint64
}

// Producer is the writing end of the viewer link.
type Producer interface {
	// Open creates and zeroes the channel.
	//
	// Returns:
	//   - error: an error if the region could not be created
	Open() error

	// Publish runs one cycle: it decides whether the mesh must be (re)sent and publishes the
	// transform for time t.
	//
	// Parameters:
	//   - t: animation time since the producer started
	//
	// Returns:
	//   - PublishResult: what was published
	//   - error: ipc.ErrClosed before Open, or a capacity error for an oversized mesh
	Publish(t time.Duration) (PublishResult, error)

	// Run publishes every interval until ctx is done.
	//
	// Parameters:
	//   - ctx: stops the loop
	//
	// Returns:
	//   - error: the first publish failure, or nil when ctx ends the loop
	Run(ctx context.Context) error

	// SetGeometry replaces the mesh and re-arms retransmission.
	//
	// Parameters:
	//   - g: the mesh; it is copied
	SetGeometry(g geometry.GeometrySnapshot)

	// SessionID identifies this producer run in logs.
	SessionID() string

	// Stats returns the publish counters.
	Stats() Stats

	// Close closes the channel.
	//
	// Returns:
	//   - error: an error if unmapping or removal failed
	Close() error
}

// producer is the implementation of the Producer interface.
type producer struct {
	mu *sync.Mutex

	writer         ipc.Writer
	channelOptions []ipc.ChannelBuilderOption
	sessionID      string

	interval   time.Duration
	maxBackoff int
	spinRate   float32
	aspect     float32
	flipY      bool
	onPublish  func(PublishResult)

	geometry geometry.GeometrySnapshot
	camera   camera.Camera

	// geometrySince is the sequence the current mesh was first published at, 0 before that.
	geometrySince uint32
	acknowledged  bool
	backoff       int
	countdown     int

	stats Stats
}

var _ Producer = &producer{}

// NewProducer creates a Producer publishing geometry.Cube() unless WithGeometry says otherwise.
//
// Parameters:
//   - options: functional options for producer configuration
//
// Returns:
//   - Producer: the producer; call Open before publishing
func NewProducer(options ...ProducerBuilderOption) Producer {
	p := &producer{
		mu:         &sync.Mutex{},
		sessionID:  uuid.New().String(),
		interval:   DefaultInterval,
		maxBackoff: MaxRetransmitInterval,
		spinRate:   DefaultSpinRate,
		aspect:     DefaultAspect,
		flipY:      true,
		geometry:   geometry.Cube(),
		backoff:    1,
	}
	for _, opt := range options {
		opt(p)
	}
	p.writer = ipc.NewWriter(p.channelOptions...)

	p.camera = camera.NewCamera(camera.WithAspect(p.aspect), camera.WithFlipY(p.flipY))
	return p
}

func (p *producer) Open() error {
	if err := p.writer.Create(); err != nil {
		return err
	}
	common.Logger().Info("producer started", "session", p.sessionID, "vertices", p.geometry.VertexCount, "indices", p.geometry.IndexCount)
	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}

func (p *producer) SessionID() string {
	return p.sessionID
}

func (p *producer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *producer) SetGeometry(g geometry.GeometrySnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.geometry = g.Clone()
	p.rearmLocked()
}

// rearmLocked forgets any acknowledgment so the next cycle sends the mesh.
func (p *producer) rearmLocked() {
	p.geometrySince = 0
	p.acknowledged = false
	p.backoff = 1
	p.countdown = 0
}

// needGeometryLocked decides whether this cycle carries the mesh, given the consumer's
// acknowledged sequence.
func (p *producer) needGeometryLocked(consumer uint32) bool {
	if p.geometrySince == 0 {
		return true
	}
	if consumer != 0 && consumer >= p.geometrySince {
		p.acknowledged = true
		return false
	}
	if p.acknowledged {
		// The acknowledgment went away: a consumer reopened the channel and needs the mesh again.
		common.Logger().Info("consumer acknowledgment reset, resending geometry", "session", p.sessionID)
		p.rearmLocked()
		return true
	}
	p.countdown--
	return p.countdown <= 0
}

func (p *producer) Publish(t time.Duration) (PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.writer.IsOpen() {
		return PublishResult{}, ipc.ErrClosed
	}

	var xf geometry.TransformSnapshot
	common.Rotate(xf.Model[:], float32(t.Seconds())*p.spinRate, 0, 1, 0)
	xf.View = p.camera.ViewMatrix()
	xf.Proj = p.camera.ProjectionMatrix()

	sendGeometry := p.needGeometryLocked(p.writer.ConsumerSequence())
	var g *geometry.GeometrySnapshot
	if sendGeometry {
		g = &p.geometry
	}

	seq, err := p.writer.Publish(geometry.Encode(g, &xf))
	if err != nil {
		return PublishResult{}, fmt.Errorf("publish: %w", err)
	}

	p.stats.Cycles++
	if sendGeometry {
		p.stats.GeometrySends++
		if p.geometrySince == 0 {
			p.geometrySince = seq
		} else {
			common.Logger().Debug("retransmitting unacknowledged geometry", "session", p.sessionID, "sequence", seq, "nextGap", p.backoff)
		}
		p.countdown = p.backoff
		p.backoff = min(p.backoff*2, p.maxBackoff)
	} else {
		p.stats.TransformOnly++
	}

	return PublishResult{Sequence: seq, WithGeometry: sendGeometry, Acknowledged: p.acknowledged}, nil
}

func (p *producer) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		res, err := p.Publish(time.Since(start))
		if err != nil {
			return err
		}
		if p.onPublish != nil {
			p.onPublish(res)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
