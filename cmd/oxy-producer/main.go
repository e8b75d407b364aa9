// Command oxy-producer publishes a spinning mesh into the shared geometry channel until
// interrupted. The mesh is a built-in cube unless a glTF/GLB file is given.
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
	"github.com/Carmen-Shannon/oxy-link/engine/config"
	"github.com/Carmen-Shannon/oxy-link/engine/producer"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	interval := flag.Duration("interval", 0, "publish interval (overrides the config file)")
	backoff := flag.Int("retransmit-backoff", 0, "largest gap in cycles between unacknowledged geometry resends (1 resends every cycle)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides the config file)")
	duration := flag.Duration("duration", 0, "exit after this long (0 runs until interrupted)")
	quiet := flag.Bool("quiet", false, "disable the progress spinner")
	mesh := flag.String("mesh", "", "a .gltf or .glb file to publish instead of the cube (overrides the config file)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Producer.Interval = common.Coalesce(*interval, cfg.Producer.Interval)
	cfg.Producer.RetransmitBackoff = common.Coalesce(*backoff, cfg.Producer.RetransmitBackoff)
	cfg.LogLevel = common.Coalesce(*logLevel, cfg.LogLevel)
	cfg.Producer.Mesh = common.Coalesce(*mesh, cfg.Producer.Mesh)

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

	spinner := !*quiet && term.IsTerminal(int(os.Stderr.Fd()))
	if err := run(ctx, cfg, spinner); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run producer: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, spinner bool) (err error) {
	opts := cfg.ProducerOptions()
	meshOpts, err := cfg.LoadProducerMesh()
	if err != nil {
		return err
	}
	opts = append(opts, meshOpts...)

	if spinner {
		bar := progressbar.Default(-1, "waiting for viewer")
		defer bar.Close()
		acknowledged := false
		opts = append(opts, producer.WithOnPublish(func(res producer.PublishResult) {
			if res.Acknowledged != acknowledged {
				acknowledged = res.Acknowledged
				if acknowledged {
					bar.Describe("viewer has geometry")
				} else {
					bar.Describe("waiting for viewer")
				}
			}
			bar.Add(1)
		}))
	}

	p := producer.NewProducer(opts...)
	if err := p.Open(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, p.Close())
	}()

	start := time.Now()
	if err := p.Run(ctx); err != nil {
		return err
	}

	stats := p.Stats()
	slog.Info("producer stopped",
		"session", p.SessionID(),
		"uptime", time.Since(start).Round(time.Millisecond),
		"cycles", stats.Cycles,
		"geometrySends", stats.GeometrySends,
	)
	return nil
}
