// ABOUTME: Entry point for the S/PDIF loopback self test
// ABOUTME: Runs transmit-to-receive round trips and prints or plots the results
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Resonate-Protocol/spdif-go/internal/selftest"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
)

var (
	rates    = flag.String("rates", "", "Comma separated sample rates (default: all supported)")
	skewPPM  = flag.Float64("skew-ppm", 0, "Transmitter clock error in parts per million")
	estimate = flag.Int("estimate", 0, "Receiver rate estimate (default: the true rate)")
	frames   = flag.Int("frames", selftest.DefaultFrames, "Clean frames required per rate")
	legacy   = flag.Bool("legacy", false, "Use the legacy preamble code table")
	timeout  = flag.Duration("timeout", 30*time.Second, "Limit per round trip")
	plotFile = flag.String("plot", "", "Write clock recovery traces to this image (.png, .svg, .pdf)")
	debug    = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	list, err := parseRates(*rates)
	if err != nil {
		log.Fatal("invalid -rates", "err", err)
	}
	gen := spdif.Current
	if *legacy {
		gen = spdif.Legacy
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, runErr := selftest.Run(ctx, selftest.Options{
		Rates:      list,
		SkewPPM:    *skewPPM,
		Frames:     *frames,
		Estimate:   *estimate,
		Generation: gen,
		Timeout:    *timeout,
	})
	fmt.Print(selftest.Report(results, *frames))

	if *plotFile != "" {
		if err := selftest.SavePlot(results, *plotFile); err != nil {
			log.Error("plot failed", "err", err)
		} else {
			fmt.Printf("clock traces written to %s\n", *plotFile)
		}
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func parseRates(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, field := range strings.Split(s, ",") {
		r, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || r <= 0 {
			return nil, fmt.Errorf("bad rate %q", field)
		}
		out = append(out, r)
	}
	return out, nil
}
