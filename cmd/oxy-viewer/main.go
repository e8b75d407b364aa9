// Command oxy-viewer renders the mesh and transform a producer publishes into the shared geometry
// channel. Without a producer it spins the built-in cube.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Carmen-Shannon/oxy-link/common"
	"github.com/Carmen-Shannon/oxy-link/engine"
	"github.com/Carmen-Shannon/oxy-link/engine/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	headless := flag.Bool("headless", false, "render on the soft backend without a window")
	fullscreen := flag.Bool("fullscreen", false, "start in fullscreen (F11 toggles)")
	profile := flag.Bool("profile", false, "log frame statistics every second")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides the config file)")
	duration := flag.Duration("duration", 0, "exit after this long (0 runs until the window closes)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *headless {
		cfg.Viewer.Headless = true
	}
	if *fullscreen {
		cfg.Viewer.Fullscreen = true
	}
	if *profile {
		cfg.Viewer.Profile = true
	}
	cfg.LogLevel = common.Coalesce(*logLevel, cfg.LogLevel)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	common.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) (err error) {
	start := time.Now()
	eng, err := engine.NewEngine(engine.OptionsFromConfig(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to start viewer: %w", err)
	}
	defer func() {
		err = errors.Join(err, eng.Release())
	}()

	slog.Info("viewer started", "headless", cfg.Viewer.Headless, "channel", cfg.Channel.Name)
	if err := eng.Run(ctx); err != nil {
		return err
	}

	c := eng.Counters()
	slog.Info("viewer stopped",
		"uptime", time.Since(start).Round(time.Millisecond),
		"frames", eng.Scheduler().Stats().Frames,
		"updates", c.Updates,
		"meshSwaps", c.GeometrySwaps,
		"rejected", eng.Rejected(),
	)
	return nil
}
