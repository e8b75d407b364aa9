package profiler

import (
	"log"
	"runtime"
	"time"
)

// Counters is a cumulative snapshot of the viewer's activity counters. The profiler logs the
// difference between consecutive snapshots, so callers pass running totals.
type Counters struct {
	// Updates is the number of channel updates consumed.
	Updates uint64
	// GeometrySwaps is the number of accepted mesh replacements.
	GeometrySwaps uint64
	// PipelineRebuilds is the number of pipelines built, including rebuilds after layout changes
	// and swapchain recreation.
	PipelineRebuilds uint64
	// Recreations is the number of swapchain recreations.
	Recreations uint64
	// Skipped is the number of frames abandoned at acquire.
	Skipped uint64
}

// sub returns the per-field difference c - prev.
func (c Counters) sub(prev Counters) Counters {
	return Counters{
		Updates:          c.Updates - prev.Updates,
		GeometrySwaps:    c.GeometrySwaps - prev.GeometrySwaps,
		PipelineRebuilds: c.PipelineRebuilds - prev.PipelineRebuilds,
		Recreations:      c.Recreations - prev.Recreations,
		Skipped:          c.Skipped - prev.Skipped,
	}
}

// Profiler tracks frame rate, viewer counters and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	lastCounters   Counters
	now            func() time.Time
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
		now:            time.Now,
	}
}

// SetInterval changes how often statistics are logged. Values <= 0 log on every tick.
//
// Parameters:
//   - d: the logging interval
func (p *Profiler) SetInterval(d time.Duration) {
	p.updateInterval = max(d, 0)
}

// Tick should be called once per presented frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, consumed updates, mesh swaps, pipeline rebuilds, swapchain recreations,
// skipped frames, heap usage, allocation rate and GC count.
//
// Parameters:
//   - c: the current cumulative counters
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(c Counters) bool {
	p.frameCount++
	currentTime := p.now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}

	seconds := elapsed.Seconds()
	var fps float64
	if seconds > 0 {
		fps = float64(p.frameCount) / seconds
	}

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024

	var allocRateMB float64
	if seconds > 0 {
		allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
		allocRateMB = float64(allocDelta) / 1024 / 1024 / seconds
	}
	gcDelta := p.memStats.NumGC - p.lastGCCount

	d := c.sub(p.lastCounters)
	log.Printf("[Profiler] FPS: %.2f | Updates: %d | Swaps: %d | Rebuilds: %d | Recreations: %d | Skipped: %d | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: +%d",
		fps, d.Updates, d.GeometrySwaps, d.PipelineRebuilds, d.Recreations, d.Skipped, allocMB, allocRateMB, gcDelta)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = p.memStats.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.lastCounters = c
	return true
}
