package producer

import (
	"time"

	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/ipc"
)

const (
	// DefaultInterval is the publish cadence, roughly one update per 60 Hz frame.
	DefaultInterval = 16 * time.Millisecond

	// MaxRetransmitInterval is the default cap, in publish cycles, on the gap between
	// unacknowledged geometry retransmissions.
	MaxRetransmitInterval = 32

	// DefaultSpinRate is the model rotation speed in radians per second.
	DefaultSpinRate = float32(1)

	// DefaultAspect is the aspect ratio the published projection is built for.
	DefaultAspect = float32(16) / 9
)

// ProducerBuilderOption is a functional option for configuring a Producer.
type ProducerBuilderOption func(*producer)

// WithChannelOptions sets the options used to create the channel writer.
//
// Parameters:
//   - options: channel builder options (name, directory, remove-on-close)
//
// Returns:
//   - ProducerBuilderOption: option function to apply
func WithChannelOptions(options ...ipc.ChannelBuilderOption) ProducerBuilderOption {
	return func(p *producer) {
		p.channelOptions = append(p.channelOptions, options...)
	}
}

// WithInterval sets the publish cadence used by Run. Values <= 0 keep the default.
//
// Parameters:
//   - d: time between publishes (default DefaultInterval)
//
// Returns:
//   - ProducerBuilderOption: option function to apply
func WithInterval(d time.Duration) ProducerBuilderOption {
	return func(p *producer) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithRetransmitBackoff caps the gap between unacknowledged geometry retransmissions. The gap
// starts at one cycle and doubles after each retransmission up to maxCycles. A cap of 1
// retransmits geometry on every cycle until the consumer acknowledges it.
//
// Parameters:
//   - maxCycles: the largest gap in publish cycles (default MaxRetransmitInterval); values < 1 are treated as 1
//
// Returns:
//   - ProducerBuilderOption: option function to apply
func WithRetransmitBackoff(maxCycles int) ProducerBuilderOption {
	return func(p *producer) {
		p.maxBackoff = max(maxCycles, 1)
	}
}

// WithGeometry sets the mesh the producer publishes. Defaults to geometry.Cube().
//
// Parameters:
//   - g: the mesh; it is copied
//
// Returns:
//   - ProducerBuilderOption: option function to apply
func WithGeometry(g geometry.GeometrySnapshot) ProducerBuilderOption {
	return func(p *producer) {
		p.geometry = g.Clone()
	}
}

// WithSpinRate sets the model rotation speed about +Y.
//
// Parameters:
//   - radiansPerSecond: rotation speed (default DefaultSpinRate)
//
// Returns:
//   - ProducerBuilderOption: option function to apply
func WithSpinRate(radiansPerSecond float32) ProducerBuilderOption {
	return func(p *producer) {
		p.spinRate = radiansPerSecond
	}
}

// WithAspect sets the aspect ratio of the published projection. Values <= 0 keep the default.
//
// Parameters:
//   - aspect: width / height (default DefaultAspect)
//
// Returns:
//   - ProducerBuilderOption: option function to apply
func WithAspect(aspect float32) ProducerBuilderOption {
	return func(p *producer) {
		if aspect > 0 {
			p.aspect = aspect
		}
	}
}

// WithFlipY controls whether the published projection flips Y for a Y-down clip space.
//
// Parameters:
//   - flip: true to negate the projection's Y scale (default true)
//
// Returns:
//   - ProducerBuilderOption: option function to apply
func WithFlipY(flip bool) ProducerBuilderOption {
	return func(p *producer) {
		p.flipY = flip
	}
}

// WithOnPublish registers a callback run after every successful publish in Run.
//
// Parameters:
//   - fn: receives the result of each publish
//
// Returns:
//   - ProducerBuilderOption: option function to apply
func WithOnPublish(fn func(PublishResult)) ProducerBuilderOption {
	return func(p *producer) {
		p.onPublish = fn
	}
}
