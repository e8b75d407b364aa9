package engine

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-link/engine/config"
	"github.com/Carmen-Shannon/oxy-link/engine/producer"
)

func TestOptionsFromConfigDriveHeadlessViewer(t *testing.T) {
	cfg := config.Default()
	cfg.Channel.Directory = t.TempDir()
	cfg.Channel.Name = "config-test"
	cfg.Viewer.Headless = true
	cfg.Viewer.Width, cfg.Viewer.Height = 160, 120
	cfg.Viewer.InitialCube = false

	p := producer.NewProducer(cfg.ProducerOptions()...)
	if err := p.Open(); err != nil {
		t.Fatalf("producer Open() = %v", err)
	}
	defer p.Close()
	if _, err := p.Publish(0); err != nil {
		t.Fatalf("Publish() = %v", err)
	}

	e, err := NewEngine(OptionsFromConfig(cfg)...)
	if err != nil {
		t.Fatalf("NewEngine() = %v", err)
	}
	defer e.Release()

	if w, h := e.Backend().SwapchainExtent(); w != 160 || h != 120 {
		t.Errorf("SwapchainExtent() = %dx%d, want 160x120", w, h)
	}
	if _, err := e.Step(); err != nil {
		t.Fatalf("Step() = %v", err)
	}
	mesh, ok := e.Manager().ActiveMesh()
	if !ok || mesh.IndexCount != 36 {
		t.Errorf("ActiveMesh() = %d indices, %v, want the producer's cube", mesh.IndexCount, ok)
	}
}
