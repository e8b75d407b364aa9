package producer

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-link/engine/geometry"
	"github.com/Carmen-Shannon/oxy-link/engine/ipc"
	"github.com/google/uuid"
)

func channelOptions(dir string) []ipc.ChannelBuilderOption {
	return []ipc.ChannelBuilderOption{ipc.WithName(`Local\ProducerTest`), ipc.WithDirectory(dir)}
}

func newOpenProducer(t *testing.T, dir string, options ...ProducerBuilderOption) Producer {
	t.Helper()
	p := NewProducer(append([]ProducerBuilderOption{WithChannelOptions(channelOptions(dir)...)}, options...)...)
	if err := p.Open(); err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func newOpenReader(t *testing.T, dir string) ipc.Reader {
	t.Helper()
	r := ipc.NewReader(channelOptions(dir)...)
	if err := r.Open(); err != nil {
		t.Fatalf("reader Open() = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func mustPublish(t *testing.T, p Producer, cycle int) PublishResult {
	t.Helper()
	res, err := p.Publish(time.Duration(cycle) * DefaultInterval)
	if err != nil {
		t.Fatalf("Publish(cycle %d) = %v", cycle, err)
	}
	return res
}

func TestProducerStopsGeometryAfterAck(t *testing.T) {
	dir := t.TempDir()
	p := newOpenProducer(t, dir)
	r := newOpenReader(t, dir)

	if res := mustPublish(t, p, 0); !res.WithGeometry {
		t.Fatal("first publish carried no geometry")
	}
	u, ok := r.TryConsume()
	if !ok || !u.HasGeometry || !u.HasTransform {
		t.Fatalf("TryConsume() = %+v, %v, want geometry and transform", u, ok)
	}
	if u.Geometry.VertexCount != 8 || u.Geometry.IndexCount != 36 {
		t.Errorf("decoded %d vertices, %d indices, want 8, 36", u.Geometry.VertexCount, u.Geometry.IndexCount)
	}
	if u.Transform.Proj[5] >= 0 {
		t.Errorf("Proj[5] = %v, want a Y-flipped projection", u.Transform.Proj[5])
	}

	for cycle := 1; cycle <= 5; cycle++ {
		res := mustPublish(t, p, cycle)
		if res.WithGeometry || !res.Acknowledged {
			t.Fatalf("cycle %d: %+v, want acknowledged transform-only", cycle, res)
		}
		u, ok := r.TryConsume()
		if !ok || u.HasGeometry || !u.HasTransform {
			t.Fatalf("cycle %d: TryConsume() = %+v, %v", cycle, u, ok)
		}
	}

	stats := p.Stats()
	if stats.Cycles != 6 || stats.GeometrySends != 1 || stats.TransformOnly != 5 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestRetransmitBackoffWithoutAck(t *testing.T) {
	for _, tc := range []struct {
		name      string
		maxCycles int
		cycles    int
		want      []int
	}{
		{name: "always", maxCycles: 1, cycles: 6, want: []int{0, 1, 2, 3, 4, 5}},
		{name: "capped at 4", maxCycles: 4, cycles: 16, want: []int{0, 1, 3, 7, 11, 15}},
		{name: "default", maxCycles: MaxRetransmitInterval, cycles: 64, want: []int{0, 1, 3, 7, 15, 31, 63}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := newOpenProducer(t, t.TempDir(), WithRetransmitBackoff(tc.maxCycles))

			var got []int
			for cycle := range tc.cycles {
				if mustPublish(t, p, cycle).WithGeometry {
					got = append(got, cycle)
				}
			}
			if !slices.Equal(got, tc.want) {
				t.Errorf("geometry sent at cycles %v, want %v", got, tc.want)
			}
		})
	}
}

func TestReopenedConsumerGetsGeometryAgain(t *testing.T) {
	dir := t.TempDir()
	p := newOpenProducer(t, dir)
	r := newOpenReader(t, dir)

	mustPublish(t, p, 0)
	if _, ok := r.TryConsume(); !ok {
		t.Fatal("TryConsume() found no update")
	}
	if res := mustPublish(t, p, 1); res.WithGeometry {
		t.Fatal("geometry resent after acknowledgment")
	}

	r.Close()
	r2 := newOpenReader(t, dir)
	res := mustPublish(t, p, 2)
	if !res.WithGeometry {
		t.Fatal("geometry not resent after the consumer reopened")
	}
	u, ok := r2.TryConsume()
	if !ok || !u.HasGeometry {
		t.Errorf("reopened reader TryConsume() = %+v, %v, want geometry", u, ok)
	}
}

func TestSetGeometryRearms(t *testing.T) {
	dir := t.TempDir()
	p := newOpenProducer(t, dir)
	r := newOpenReader(t, dir)

	mustPublish(t, p, 0)
	r.TryConsume()
	if mustPublish(t, p, 1).WithGeometry {
		t.Fatal("geometry resent after acknowledgment")
	}

	cube := geometry.Cube()
	cube.IndexData = cube.IndexData[:12]
	p.SetGeometry(cube)
	if !mustPublish(t, p, 2).WithGeometry {
		t.Fatal("new mesh not sent after SetGeometry")
	}
	u, ok := r.TryConsume()
	if !ok || u.Geometry.IndexCount != 6 {
		t.Errorf("TryConsume() index count = %d, %v, want 6", u.Geometry.IndexCount, ok)
	}
}

func TestPublishBeforeOpen(t *testing.T) {
	p := NewProducer(WithChannelOptions(channelOptions(t.TempDir())...))
	if _, err := p.Publish(0); !errors.Is(err, ipc.ErrClosed) {
		t.Errorf("Publish() before Open = %v, want ErrClosed", err)
	}
	if _, err := uuid.Parse(p.SessionID()); err != nil {
		t.Errorf("SessionID() = %q is not a UUID: %v", p.SessionID(), err)
	}
}

func TestRunPublishesUntilCancelled(t *testing.T) {
	var results []PublishResult
	p := newOpenProducer(t, t.TempDir(),
		WithInterval(time.Millisecond),
		WithOnPublish(func(res PublishResult) { results = append(results, res) }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("Run() published %d times, want several", len(results))
	}
	if !results[0].WithGeometry {
		t.Error("first Run publish carried no geometry")
	}
	for i := 1; i < len(results); i++ {
		if results[i].Sequence <= results[i-1].Sequence {
			t.Errorf("sequence went from %d to %d", results[i-1].Sequence, results[i].Sequence)
		}
	}
}
