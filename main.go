// ABOUTME: Entry point for the S/PDIF monitor
// ABOUTME: Parses CLI flags and plays a bridge's stream with a status TUI
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/Resonate-Protocol/spdif-go/internal/app"
	"github.com/Resonate-Protocol/spdif-go/internal/ui"
)

var (
	serverAddr = flag.String("server", "", "Manual bridge address (skip mDNS)")
	name       = flag.String("name", "", "Monitor friendly name (default: hostname-spdif-monitor)")
	codec      = flag.String("codec", "pcm", "Preferred stream codec: pcm or opus")
	outputRate = flag.Int("output-rate", app.DefaultOutputRate, "Local playback sample rate")
	statusOnly = flag.Bool("status-only", false, "Receive receiver status without audio")
	logFile    = flag.String("log-file", "spdif-monitor.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
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

	monitorName := *name
	if monitorName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		monitorName = fmt.Sprintf("%s-spdif-monitor", hostname)
	}

	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg = ui.Run(monitorName, controls)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Error("TUI error", "err", err)
			}
		}()
	} else {
		log.Info("starting S/PDIF monitor", "name", monitorName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		var quit chan struct{}
		if controls != nil {
			quit = controls.Quit
		}
		select {
		case <-quit:
			log.Info("received quit signal from TUI")
		case <-sigChan:
			log.Info("shutdown signal received")
		}
		cancel()
	}()

	m := app.New(app.Config{
		ServerAddr: *serverAddr,
		Name:       monitorName,
		Codec:      *codec,
		OutputRate: *outputRate,
		StatusOnly: *statusOnly,
		Controls:   controls,
		OnStatus: func(msg ui.StatusMsg) {
			if tuiProg != nil {
				tuiProg.Send(msg)
			}
		},
	})
	runErr := m.Run(ctx)

	if tuiProg != nil {
		tuiProg.Quit()
		tuiProg.Wait()
	}
	if runErr != nil {
		log.Fatal("monitor stopped", "err", runErr)
	}
	log.Info("monitor stopped")
}
