// ABOUTME: Entry point for the S/PDIF network bridge
// ABOUTME: Receives a line, decodes it and streams the audio to WebSocket clients
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

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/Resonate-Protocol/spdif-go/internal/bridge"
	"github.com/Resonate-Protocol/spdif-go/internal/config"
	"github.com/Resonate-Protocol/spdif-go/internal/indicator"
	"github.com/Resonate-Protocol/spdif-go/internal/source"
	"github.com/Resonate-Protocol/spdif-go/internal/ui"
	"github.com/Resonate-Protocol/spdif-go/internal/version"
	"github.com/Resonate-Protocol/spdif-go/pkg/protocol"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/line"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/rx"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/tx"
)

var (
	configFile  = flag.String("config", "", "YAML configuration file")
	port        = flag.Int("port", 0, "WebSocket server port (default from config, 8928)")
	name        = flag.String("name", "", "Bridge friendly name")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	capture     = flag.String("capture", "", "Replay this capture file instead of the loopback line")
	captureRate = flag.Int("capture-rate", 48000*128*8, "Samples per second of the capture file")
	srcName     = flag.String("source", "", "Loopback transmitter source (tone, ramp, file or URL)")
	rate        = flag.Int("rate", 0, "Loopback transmitter sample rate")
	skewPPM     = flag.Float64("skew-ppm", 0, "Loopback transmitter clock error in ppm")
	gpioChip    = flag.String("gpio-chip", "", "GPIO chip for the lock LED, e.g. gpiochip0")
	gpioLine    = flag.Int("gpio-line", -1, "GPIO line offset for the lock LED")
	logFile     = flag.String("log-file", "", "Log file path (default from config)")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	debug       = flag.Bool("debug", false, "Enable debug logging")
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

	useTUI := !*noTUI

	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal("error opening log file", "err", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	log.Info("starting S/PDIF bridge", "name", cfg.Bridge.Name, "port", cfg.Bridge.Port,
		"version", version.Version)

	lock, err := openIndicator(cfg.Indicator)
	if err != nil {
		log.Warn("lock indicator unavailable", "err", err)
	}
	defer lock.Close()

	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg = ui.Run(cfg.Bridge.Name, controls)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Error("TUI error", "err", err)
			}
		}()
	}
	updateTUI := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	gen, _ := spdif.ParseGeneration(cfg.Receiver.Generation)
	srv := bridge.New(bridge.Config{
		Port:       cfg.Bridge.Port,
		Name:       cfg.Bridge.Name,
		EnableMDNS: cfg.Bridge.MDNS,
		Generation: gen,
		OnStatus: func(st protocol.ReceiverStatus) {
			if err := lock.Set(st.Locked); err != nil {
				log.Warn("lock indicator", "err", err)
			}
			updateTUI(ui.StatusMsg{Receiver: &st})
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in, err := startInput(ctx, cfg, srv.Feed)
	if err != nil {
		log.Fatal("input line", "err", err)
	}
	srv.Attach(in.rcv)
	connected := true
	updateTUI(ui.StatusMsg{Connected: &connected, SourceName: in.name})

	go func() {
		err := in.rcv.Run(ctx)
		switch {
		case errors.Is(err, spdif.ErrLineClosed):
			log.Info("capture finished", "path", *capture)
		case err != nil && !errors.Is(err, context.Canceled):
			log.Error("receiver stopped", "err", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if controls != nil {
			select {
			case <-controls.Quit:
				log.Info("received quit signal from TUI")
			case <-sigChan:
				log.Info("shutdown signal received")
			}
		} else {
			sig := <-sigChan
			log.Info("shutting down", "signal", sig)
		}
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Error("bridge error", "err", err)
	}

	if err := in.rcv.Shutdown(); err != nil && !errors.Is(err, spdif.ErrStopped) {
		log.Warn("receiver shutdown", "err", err)
	}
	cancel()
	in.close()
	if tuiProg != nil {
		tuiProg.Quit()
	}
	log.Info("bridge stopped")
}

func applyFlags(cfg *config.Config) {
	if *port > 0 {
		cfg.Bridge.Port = *port
	}
	if *name != "" {
		cfg.Bridge.Name = *name
	}
	if *noMDNS {
		cfg.Bridge.MDNS = false
	}
	if *capture != "" {
		cfg.Receiver.Capture = *capture
	}
	if *srcName != "" {
		cfg.Transmitter.Source = *srcName
	}
	if *rate > 0 {
		cfg.Transmitter.Rate = *rate
	}
	if *gpioChip != "" {
		cfg.Indicator.Chip = *gpioChip
	}
	if *gpioLine >= 0 {
		cfg.Indicator.Offset = *gpioLine
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
}

func openIndicator(c config.Indicator) (*indicator.Lock, error) {
	if c.Chip == "" {
		return nil, nil
	}
	return indicator.Open(c.Chip, c.Offset, c.ActiveLow)
}

type input struct {
	name  string
	rcv   *rx.Receiver
	close func()
}

// startInput builds the receiver over a replayed capture or, by default, a
// loopback wire driven by an in-process transmitter.
func startInput(ctx context.Context, cfg config.Config, onEvent func(spdif.Event)) (*input, error) {
	gen, _ := spdif.ParseGeneration(cfg.Receiver.Generation)
	parity, _ := rx.ParseParityPolicy(cfg.Receiver.Parity)
	rcfg := rx.Config{
		RateEstimate: cfg.Receiver.RateEstimate,
		Reference:    cfg.Receiver.Reference,
		Generation:   gen,
		Parity:       parity,
		OnEvent:      onEvent,
	}

	if path := cfg.Receiver.Capture; path != "" {
		in, err := line.OpenStream(path)
		if err != nil {
			return nil, err
		}
		rcfg.Line = in
		rcfg.Reference = *captureRate
		rcv, err := rx.New(rcfg)
		if err != nil {
			in.Close()
			return nil, err
		}
		return &input{name: "capture " + path, rcv: rcv, close: func() { in.Close() }}, nil
	}

	t := cfg.Transmitter
	mclk := cfg.TransmitterClock()
	lb := line.NewLoopback(line.LoopbackConfig{MasterClock: mclk, Reference: cfg.Receiver.Reference, SkewPPM: *skewPPM})
	rcfg.Line = lb.In()
	rcfg.Clock = lb.In()
	rcv, err := rx.New(rcfg)
	if err != nil {
		lb.Close()
		return nil, err
	}

	src, err := source.NewSource(t.Source, source.Options{Loop: true, ToneRate: t.Rate})
	if err != nil {
		lb.Close()
		return nil, err
	}
	if src.SampleRate() != t.Rate || src.Channels() != 2 {
		if src, err = source.NewResampled(src, t.Rate); err != nil {
			lb.Close()
			return nil, err
		}
	}
	txGen, _ := spdif.ParseGeneration(t.Generation)
	tr, err := tx.New(tx.Config{Line: lb.Out(), Clock: lb.Out(), Delay: t.Delay, Generation: txGen})
	if err != nil {
		lb.Close()
		return nil, err
	}
	go tr.Run(ctx)
	if err := tr.ConfigureRate(ctx, t.Rate, mclk); err != nil {
		lb.Close()
		return nil, err
	}
	go func() {
		if _, err := source.Play(ctx, tr, src, 0); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("loopback transmitter stopped", "err", err)
		}
	}()

	title, _, _ := src.Metadata()
	return &input{
		name: fmt.Sprintf("loopback %s @ %d Hz", title, t.Rate),
		rcv:  rcv,
		close: func() {
			lb.Close()
			src.Close()
		},
	}, nil
}
