// ABOUTME: Entry point for the S/PDIF transmitter
// ABOUTME: Encodes an audio source onto the line and records it as a capture file
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Resonate-Protocol/spdif-go/internal/config"
	"github.com/Resonate-Protocol/spdif-go/internal/source"
	"github.com/Resonate-Protocol/spdif-go/internal/version"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/line"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/tx"
)

var (
	configFile = flag.String("config", "", "YAML configuration file")
	srcName    = flag.String("source", "", "Audio source: tone, tone:<hz>, ramp, MP3/FLAC file or HTTP MP3 URL")
	rate       = flag.Int("rate", 0, "Line sample rate (default from config, 48000)")
	mclk       = flag.Int("mclk", 0, "Master clock in Hz (default: family clock for the rate)")
	delay      = flag.Int("delay", -1, "Output delay in master clock ticks")
	legacy     = flag.Bool("legacy", false, "Use the legacy preamble code table")
	loop       = flag.Bool("loop", false, "Loop file sources")
	duration   = flag.Duration("duration", 5*time.Second, "Audio to transmit (0 runs until the source ends)")
	out        = flag.String("out", "spdif-capture.bin", "Capture file to record")
	oversample = flag.Int("oversample", 8, "Capture samples per unit interval")
	logFile    = flag.String("log-file", "", "Log file path (default from config)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			log.Fatal("configuration", "err", err)
		}
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal("configuration", "err", err)
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal("error opening log file", "err", err)
	}
	defer func() { _ = f.Close() }()
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal("transmit failed", "err", err)
	}
}

func applyFlags(cfg *config.Config) {
	if *srcName != "" {
		cfg.Transmitter.Source = *srcName
	}
	if *rate > 0 {
		cfg.Transmitter.Rate = *rate
	}
	if *mclk > 0 {
		cfg.Transmitter.MasterClock = *mclk
	}
	if *delay >= 0 {
		cfg.Transmitter.Delay = *delay
	}
	if *legacy {
		cfg.Transmitter.Generation = spdif.Legacy.String()
	}
	if *loop {
		cfg.Transmitter.Loop = true
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
}

func run(ctx context.Context, cfg config.Config) error {
	t := cfg.Transmitter
	gen, _ := spdif.ParseGeneration(t.Generation)

	src, err := source.NewSource(t.Source, source.Options{Loop: t.Loop, ToneRate: t.Rate})
	if err != nil {
		return err
	}
	defer src.Close()
	title, artist, _ := src.Metadata()
	log.Info("source opened", "title", title, "artist", artist,
		"rate", src.SampleRate(), "channels", src.Channels())

	if src.SampleRate() != t.Rate || src.Channels() != 2 {
		if src, err = source.NewResampled(src, t.Rate); err != nil {
			return fmt.Errorf("resample: %w", err)
		}
	}

	rec, err := line.CreateStream(*out)
	if err != nil {
		return err
	}
	defer rec.Close()
	wire, err := line.NewOversampled(rec, *oversample)
	if err != nil {
		return err
	}

	tr, err := tx.New(tx.Config{Line: wire, Clock: wire, Delay: t.Delay, Generation: gen})
	if err != nil {
		return err
	}
	runErr := make(chan error, 1)
	go func() { runErr <- tr.Run(ctx) }()

	if err := tr.ConfigureRate(ctx, t.Rate, cfg.TransmitterClock()); err != nil {
		return err
	}

	maxFrames := int64(duration.Seconds() * float64(t.Rate))
	log.Info("transmitting", "version", version.Version, "rate", t.Rate, "generation", gen,
		"frames", maxFrames, "capture", *out)
	frames, playErr := source.Play(ctx, tr, src, maxFrames)

	if err := tr.Shutdown(ctx); err != nil && playErr == nil {
		playErr = err
	}
	if err := <-runErr; err != nil && playErr == nil {
		playErr = err
	}
	if err := rec.Close(); err != nil && playErr == nil {
		playErr = err
	}

	s := tr.Stats()
	log.Info("capture written", "path", *out, "frames", frames, "blocks", s.Frames/spdif.FramesPerBlock,
		"words", rec.Words(), "replay_rate", t.Rate*128*wire.Factor())
	if errors.Is(playErr, context.Canceled) {
		return nil
	}
	return playErr
}
