package profiler

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestTickLogsDeltasAtInterval(t *testing.T) {
	buf := captureLog(t)

	start := time.Unix(100, 0)
	now := start
	p := NewProfiler()
	p.lastTime = start
	p.now = func() time.Time { return now }

	now = start.Add(500 * time.Millisecond)
	if p.Tick(Counters{Updates: 10}) {
		t.Fatal("Tick() logged before the interval elapsed")
	}

	now = start.Add(time.Second)
	if !p.Tick(Counters{Updates: 30, GeometrySwaps: 1, Recreations: 2}) {
		t.Fatal("Tick() = false after the interval elapsed")
	}
	line := buf.String()
	for _, want := range []string{"[Profiler]", "FPS: 2.00", "Updates: 30", "Swaps: 1", "Recreations: 2"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}

	buf.Reset()
	now = start.Add(2 * time.Second)
	if !p.Tick(Counters{Updates: 35, GeometrySwaps: 1, Recreations: 2}) {
		t.Fatal("second Tick() = false")
	}
	if line := buf.String(); !strings.Contains(line, "Updates: 5 ") || !strings.Contains(line, "Swaps: 0") {
		t.Errorf("second log line %q does not report deltas", line)
	}
}

func TestSetIntervalZeroLogsEveryTick(t *testing.T) {
	captureLog(t)

	p := NewProfiler()
	p.SetInterval(-time.Second)
	for i := range 3 {
		if !p.Tick(Counters{}) {
			t.Errorf("tick %d did not log", i)
		}
	}
}
