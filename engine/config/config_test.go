package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oxy-link.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
channel:
  name: test-channel
  retries: 0
viewer:
  headless: true
  width: 640
producer:
  interval: 5ms
  retransmit_backoff: 1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	def := Default()
	if cfg.Channel.Name != "test-channel" || cfg.Channel.Directory != def.Channel.Directory {
		t.Errorf("Channel = %+v", cfg.Channel)
	}
	if cfg.Channel.Retries == nil || *cfg.Channel.Retries != 0 {
		t.Errorf("Channel.Retries = %v, want explicit 0", cfg.Channel.Retries)
	}
	if cfg.Channel.Acknowledge != nil {
		t.Errorf("Channel.Acknowledge = %v, want unset", *cfg.Channel.Acknowledge)
	}
	if !cfg.Viewer.Headless || cfg.Viewer.Width != 640 || cfg.Viewer.Height != def.Viewer.Height {
		t.Errorf("Viewer = %+v", cfg.Viewer)
	}
	if cfg.Producer.Interval != 5*time.Millisecond || cfg.Producer.RetransmitBackoff != 1 {
		t.Errorf("Producer = %+v", cfg.Producer)
	}
	if cfg.Producer.SpinRate != def.Producer.SpinRate {
		t.Errorf("Producer.SpinRate = %v, want default %v", cfg.Producer.SpinRate, def.Producer.SpinRate)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") = %v", err)
	}
	if cfg.Viewer.Title != "oxy-link" || !cfg.Viewer.InitialCube {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg.Viewer)
	}
}

func TestLoadRejects(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Load(missing) = %v, want ErrNotExist", err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		path := writeConfig(t, "# "+strings.Repeat("x", MaxFileSize))
		if _, err := Load(path); !errors.Is(err, ErrTooLarge) {
			t.Errorf("Load(large) = %v, want ErrTooLarge", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		path := writeConfig(t, "viewer: [unterminated")
		cfg, err := Load(path)
		if err == nil {
			t.Fatal("Load(malformed) succeeded")
		}
		if cfg.Viewer.Width != Default().Viewer.Width {
			t.Errorf("Load(malformed) returned %+v, want defaults", cfg.Viewer)
		}
	})

	t.Run("world writable", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission bits are not checked on Windows")
		}
		path := writeConfig(t, "log_level: info\n")
		if err := os.Chmod(path, 0o666); err != nil {
			t.Fatalf("Chmod() = %v", err)
		}
		if _, err := Load(path); !errors.Is(err, ErrWorldWritable) {
			t.Errorf("Load(world-writable) = %v, want ErrWorldWritable", err)
		}
	})
}

func TestLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	} {
		if got := (Config{LogLevel: tc.in}).Level(); got != tc.want {
			t.Errorf("Level(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoadProducerMesh(t *testing.T) {
	cfg := Default()
	opts, err := cfg.LoadProducerMesh()
	if err != nil || opts != nil {
		t.Errorf("LoadProducerMesh() without a mesh = %v, %v, want nothing", opts, err)
	}

	cfg.Producer.Mesh = filepath.Join(t.TempDir(), "missing.glb")
	if _, err := cfg.LoadProducerMesh(); err == nil {
		t.Error("LoadProducerMesh() with a missing file succeeded")
	}
}
