// Package config loads the YAML file shared by oxy-viewer and oxy-producer and turns it into
// builder options.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine/ipc"
	"github.com/Carmen-Shannon/oxy-link/engine/loader"
	"github.com/Carmen-Shannon/oxy-link/engine/producer"
	"gopkg.in/yaml.v3"
)

// MaxFileSize bounds the config file size.
const MaxFileSize = 1024 * 1024

var (
	// ErrTooLarge is returned for config files above MaxFileSize.
	ErrTooLarge = errors.New("config file too large")

	// ErrWorldWritable is returned for config files anyone can modify.
	ErrWorldWritable = errors.New("config file is world-writable")
)

// ChannelConfig selects the shared-memory channel.
type ChannelConfig struct {
	Name        string `yaml:"name"`
	Directory   string `yaml:"directory"`
	Retries     *int   `yaml:"retries"`     // pointer to distinguish unset vs 0
	Acknowledge *bool  `yaml:"acknowledge"` // pointer to distinguish unset vs false
}

// ViewerConfig configures oxy-viewer.
type ViewerConfig struct {
	Title          string        `yaml:"title"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	Fullscreen     bool          `yaml:"fullscreen"`
	VSync          *bool         `yaml:"vsync"`
	SoftwareGPU    bool          `yaml:"software_gpu"`
	Headless       bool          `yaml:"headless"`
	FramesInFlight int           `yaml:"frames_in_flight"`
	StagingBytes   uint64        `yaml:"staging_bytes"` // 0 uses the staging default
	FrameLimit     float64       `yaml:"frame_limit"`
	ReopenInterval time.Duration `yaml:"reopen_interval"`
	InitialCube    bool          `yaml:"initial_cube"`
	Profile        bool          `yaml:"profile"`
}

// ProducerConfig configures oxy-producer.
type ProducerConfig struct {
	Interval          time.Duration `yaml:"interval"`
	RetransmitBackoff int           `yaml:"retransmit_backoff"`
	SpinRate          float32       `yaml:"spin_rate"`
	Aspect            float32       `yaml:"aspect"`
	FlipY             *bool         `yaml:"flip_y"`

	// Mesh is a .gltf or .glb file published instead of the built-in cube.
	Mesh string `yaml:"mesh"`
	// FitMesh rescales Mesh to the unit cube; defaults to true.
	FitMesh *bool `yaml:"fit_mesh"`
}

// Config is the root of the config file.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Channel  ChannelConfig  `yaml:"channel"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Producer ProducerConfig `yaml:"producer"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		Channel: ChannelConfig{
			Name:      ipc.MappingName,
			Directory: ipc.DefaultDirectory,
		},
		Viewer: ViewerConfig{
			Title:          "oxy-link",
			Width:          1280,
			Height:         720,
			FramesInFlight: 2,
			ReopenInterval: time.Second,
			InitialCube:    true,
		},
		Producer: ProducerConfig{
			Interval:          producer.DefaultInterval,
			RetransmitBackoff: producer.MaxRetransmitInterval,
			SpinRate:          producer.DefaultSpinRate,
			Aspect:            producer.DefaultAspect,
		},
	}
}

// Load reads a config file on top of Default. Keys missing from the file keep their defaults.
//
// Parameters:
//   - path: the YAML file to read; an empty path returns Default()
//
// Returns:
//   - Config: the merged configuration
//   - error: a stat, size, permission, read or parse failure
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return cfg, fmt.Errorf("stat config: %w", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0002 != 0 {
		slog.Error("config is world-writable, refusing to load", "path", path, "mode", info.Mode())
		return cfg, fmt.Errorf("%w: %s", ErrWorldWritable, path)
	}
	if info.Size() > MaxFileSize {
		slog.Warn("config file too large", "path", path, "size", info.Size())
		return cfg, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}

	slog.Debug("loaded config", "path", path, "size", info.Size())
	return cfg, nil
}

// Level maps LogLevel to a slog level; unknown values mean info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ChannelOptions converts the channel section into channel builder options.
func (c Config) ChannelOptions() []ipc.ChannelBuilderOption {
	d := Default().Channel
	opts := []ipc.ChannelBuilderOption{
		ipc.WithName(common.Coalesce(c.Channel.Name, d.Name)),
		ipc.WithDirectory(common.Coalesce(c.Channel.Directory, d.Directory)),
	}
	if c.Channel.Retries != nil {
		opts = append(opts, ipc.WithRetries(*c.Channel.Retries))
	}
	if c.Channel.Acknowledge != nil {
		opts = append(opts, ipc.WithAcknowledge(*c.Channel.Acknowledge))
	}
	return opts
}

// ProducerOptions converts the producer and channel sections into producer builder options.
//
// Returns:
//   - []producer.ProducerBuilderOption: options for producer.NewProducer
func (c Config) ProducerOptions() []producer.ProducerBuilderOption {
	d := Default().Producer
	p := c.Producer
	opts := []producer.ProducerBuilderOption{
		producer.WithChannelOptions(c.ChannelOptions()...),
		producer.WithInterval(common.Coalesce(p.Interval, d.Interval)),
		producer.WithRetransmitBackoff(common.Coalesce(p.RetransmitBackoff, d.RetransmitBackoff)),
		producer.WithSpinRate(common.Coalesce(p.SpinRate, d.SpinRate)),
		producer.WithAspect(common.Coalesce(p.Aspect, d.Aspect)),
	}
	if p.FlipY != nil {
		opts = append(opts, producer.WithFlipY(*p.FlipY))
	}
	return opts
}

// LoadProducerMesh loads the producer mesh file, if one is configured.
//
// Returns:
//   - []producer.ProducerBuilderOption: a WithGeometry option, or nothing when no mesh is set
//   - error: a load failure
func (c Config) LoadProducerMesh() ([]producer.ProducerBuilderOption, error) {
	if c.Producer.Mesh == "" {
		return nil, nil
	}
	fit := c.Producer.FitMesh == nil || *c.Producer.FitMesh
	g, err := loader.NewLoader(loader.BackendTypeGLTF, loader.WithFitToUnit(fit)).Load(c.Producer.Mesh)
	if err != nil {
		return nil, fmt.Errorf("producer mesh: %w", err)
	}
	return []producer.ProducerBuilderOption{producer.WithGeometry(g)}, nil
}
