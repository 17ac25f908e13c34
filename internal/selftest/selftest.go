// ABOUTME: Transmit-to-receive round trips over the virtual loopback wire
// ABOUTME: Measures lock, clock recovery and frame integrity per sample rate
package selftest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"

	"github.com/Resonate-Protocol/spdif-go/internal/source"
	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/line"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/rx"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/tx"
)

const (
	DefaultFrames = 2 * spdif.FramesPerBlock
	traceEvery    = 16 // subframes between trace points
)

// Options configures Run.
type Options struct {
	// Rates to test; empty means every supported rate.
	Rates []int
	// SkewPPM makes the transmitter run this much fast (or slow if negative).
	SkewPPM float64
	// Frames of clean audio required after lock.
	Frames int
	// Estimate seeds clock recovery; 0 means the true rate.
	Estimate   int
	Generation spdif.Generation
	// Timeout bounds each round trip (default 30s).
	Timeout time.Duration
	Logger  *log.Logger
}

// Point is one clock recovery sample.
type Point struct {
	Subframe int
	Unit     float64 // ticks per UI
	Divider  int
}

// Result describes one round trip.
type Result struct {
	Rate      int
	Estimate  int
	SkewPPM   float64
	Locked    bool
	Divider   int
	Unit      float64
	Measured  float64
	Retargets int
	Counters  rx.Counters
	// Settle is the number of subframes received before the clean run began.
	Settle int
	// Matched counts consecutive intact frames at the end of the run.
	Matched int
	Trace   []Point
	Err     error
}

// OK reports whether the round trip locked and delivered enough clean frames.
func (r Result) OK(frames int) bool {
	return r.Err == nil && r.Locked && r.Matched >= frames
}

// Run performs a round trip per rate. Failed rounds are recorded in their
// Result and joined into the returned error.
func Run(ctx context.Context, opts Options) ([]Result, error) {
	if opts.Frames <= 0 {
		opts.Frames = DefaultFrames
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("selftest")
	}
	rates := opts.Rates
	if len(rates) == 0 {
		rates = spdif.AllRates()
	}

	var errs *multierror.Error
	results := make([]Result, 0, len(rates))
	for _, rate := range rates {
		res := roundTrip(ctx, opts, rate)
		if res.Err == nil && !res.OK(opts.Frames) {
			res.Err = fmt.Errorf("%d Hz: %d clean frames, locked=%v", rate, res.Matched, res.Locked)
		}
		if res.Err != nil {
			errs = multierror.Append(errs, res.Err)
		}
		opts.Logger.Info("round trip", "rate", rate, "divider", res.Divider, "locked", res.Locked,
			"settle", res.Settle, "matched", res.Matched, "retargets", res.Retargets)
		results = append(results, res)
		if ctx.Err() != nil {
			break
		}
	}
	return results, errs.ErrorOrNil()
}

func roundTrip(parent context.Context, opts Options, rate int) Result {
	res := Result{Rate: rate, Estimate: opts.Estimate, SkewPPM: opts.SkewPPM}
	if res.Estimate == 0 {
		res.Estimate = rate
	}
	mclk := spdif.MasterClockFor(rate)

	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	lb := line.NewLoopback(line.LoopbackConfig{MasterClock: mclk, SkewPPM: opts.SkewPPM, Phase: 0.37})
	defer lb.Close()

	// Enough events to settle from a cold start and then carry Frames.
	want := 2 * (opts.Frames + 4*spdif.FramesPerBlock)
	var (
		mu     sync.Mutex
		events = make([]spdif.Event, 0, want)
		trace  []Point
		rcv    *rx.Receiver
		got    = make(chan struct{})
	)
	rcv, err := rx.New(rx.Config{
		Line:         lb.In(),
		Clock:        lb.In(),
		RateEstimate: res.Estimate,
		Generation:   opts.Generation,
		Logger:       opts.Logger.WithPrefix("rx"),
		OnEvent: func(e spdif.Event) {
			mu.Lock()
			defer mu.Unlock()
			if len(events) == want {
				return
			}
			events = append(events, e)
			if len(events)%traceEvery == 0 {
				s := rcv.Stats()
				trace = append(trace, Point{Subframe: len(events), Unit: s.Unit, Divider: s.Divider})
			}
			if len(events) == want {
				close(got)
			}
		},
	})
	if err != nil {
		res.Err = err
		return res
	}
	tr, err := tx.New(tx.Config{Line: lb.Out(), Clock: lb.Out(), Generation: opts.Generation,
		Logger: opts.Logger.WithPrefix("tx")})
	if err != nil {
		res.Err = err
		return res
	}

	go rcv.Run(ctx)
	go tr.Run(ctx)
	if err := tr.ConfigureRate(ctx, rate, mclk); err != nil {
		res.Err = fmt.Errorf("%d Hz: configure: %w", rate, err)
		return res
	}
	go source.Play(ctx, tr, source.NewRamp(rate), 0)

	select {
	case <-got:
	case <-ctx.Done():
		res.Err = fmt.Errorf("%d Hz: %w", rate, ctx.Err())
	}
	if err := rcv.Shutdown(); err != nil && !errors.Is(err, spdif.ErrStopped) {
		opts.Logger.Debug("receiver shutdown", "err", err)
	}
	cancel()
	<-rcv.Done()
	<-tr.Done()

	s := rcv.Stats()
	res.Locked = s.Locked
	res.Divider = s.Divider
	res.Unit = s.Unit
	res.Measured = s.Measured
	res.Retargets = s.Retargets
	res.Counters = s.Counters

	mu.Lock()
	defer mu.Unlock()
	res.Trace = trace
	res.Settle, res.Matched = cleanRun(events)
	return res
}

// cleanRun finds the longest tail of events forming consecutive intact ramp
// frames. It returns the index of its first subframe and its frame count.
func cleanRun(events []spdif.Event) (start, frames int) {
	frameOf := func(e spdif.Event) (int, bool) {
		if e.ParityError {
			return 0, false
		}
		return source.RampFrame(audio.FromLeftJustified(e.Sample()), e.Channel)
	}
	follows := func(prev, e spdif.Event) bool {
		a, ok1 := frameOf(prev)
		b, ok2 := frameOf(e)
		if !ok1 || !ok2 || prev.Channel == e.Channel {
			return false
		}
		if e.Channel == 1 {
			return a == b
		}
		return (a+1)%source.RampPeriod == b
	}

	end := len(events)
	// The run ends on a complete frame.
	for end > 0 && events[end-1].Channel != 1 {
		end--
	}
	if end == 0 {
		return len(events), 0
	}
	start = end - 1
	if _, ok := frameOf(events[start]); !ok {
		return len(events), 0
	}
	for start > 0 && follows(events[start-1], events[start]) {
		start--
	}
	if events[start].Channel != 0 {
		start++
	}
	return start, (end - start) / 2
}
