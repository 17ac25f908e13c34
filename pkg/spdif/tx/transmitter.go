// ABOUTME: Transmit engine serving rate, sample and shutdown requests in order
// ABOUTME: Requests hand off on an unbuffered channel and frames are written whole
package tx

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/line"
)

// Config configures a Transmitter.
type Config struct {
	// Line takes the modulated words (required).
	Line line.Output
	// Clock divides the master clock down to the UI clock. Nil leaves the
	// line's clock alone.
	Clock line.Clock
	// Delay in master clock ticks aligns the output with a sibling interface.
	Delay int
	// Generation selects the sample width sent.
	Generation spdif.Generation
	// Logger defaults to the package logger with a "tx" prefix.
	Logger *log.Logger
}

// Stats is a snapshot of transmitter state.
type Stats struct {
	Frames           uint64
	Reconfigurations uint64
	Rate             int
	MasterClock      int
	Divider          int
	BlockFrame       int
}

// request is a command for the engine. The set is closed.
type request interface {
	isRequest()
}

type configureRate struct {
	rate, master, divider int
}

type samplePair struct {
	left, right int32
}

type shutdown struct{}

func (configureRate) isRequest() {}
func (samplePair) isRequest()    {}
func (shutdown) isRequest()      {}

// Transmitter owns an output line for the duration of Run.
type Transmitter struct {
	cfg        Config
	log        *log.Logger
	reqs       chan request
	done       chan struct{}
	running    atomic.Bool
	configured atomic.Bool
	stats      atomic.Pointer[Stats]

	enc     *Encoder
	current Stats
	delayed bool
}

// New validates cfg and returns a transmitter ready to Run.
func New(cfg Config) (*Transmitter, error) {
	if cfg.Line == nil {
		return nil, errors.New("tx: output line is required")
	}
	if cfg.Delay < 0 {
		return nil, fmt.Errorf("tx: negative delay %d", cfg.Delay)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("tx")
	}
	t := &Transmitter{
		cfg:  cfg,
		log:  logger,
		reqs: make(chan request),
		done: make(chan struct{}),
		enc:  NewEncoder(cfg.Generation),
	}
	t.publish()
	return t, nil
}

// Run serves requests until Shutdown, ctx is done or the line fails. It must
// be called once. The line is not closed on return.
func (t *Transmitter) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return errors.New("tx: already running")
	}
	defer close(t.done)
	defer t.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-t.reqs:
			switch r := req.(type) {
			case configureRate:
				if err := t.apply(r); err != nil {
					return err
				}
			case samplePair:
				if err := t.emit(ctx, r); err != nil {
					return err
				}
			case shutdown:
				t.log.Info("transmitter stopped", "frames", t.current.Frames)
				return nil
			}
		}
	}
}

func (t *Transmitter) apply(r configureRate) error {
	if !t.delayed {
		if err := t.cfg.Line.SetDelay(t.cfg.Delay); err != nil {
			return fmt.Errorf("tx: set delay: %w", err)
		}
		t.delayed = true
	}
	if t.cfg.Clock != nil {
		if err := t.cfg.Clock.SetDivider(r.divider); err != nil {
			return fmt.Errorf("tx: set divider %d: %w", r.divider, err)
		}
	}
	t.enc.SetRate(r.rate)
	t.current.Rate = r.rate
	t.current.MasterClock = r.master
	t.current.Divider = r.divider
	t.current.Reconfigurations++
	t.log.Info("rate configured", "rate", r.rate, "mclk", r.master, "divider", r.divider,
		"block_frame", t.enc.Frame())
	t.publish()
	return nil
}

func (t *Transmitter) emit(ctx context.Context, p samplePair) error {
	if t.current.Reconfigurations == 0 {
		t.log.Warn("sample pair before rate configuration dropped")
		return nil
	}
	words := t.enc.EncodeFrame(p.left, p.right)
	for _, w := range words {
		if err := t.cfg.Line.Write(ctx, w); err != nil {
			return fmt.Errorf("tx: write: %w", err)
		}
	}
	t.current.Frames++
	if t.current.Frames%spdif.FramesPerBlock == 0 {
		t.publish()
	}
	return nil
}

func (t *Transmitter) publish() {
	s := t.current
	s.BlockFrame = t.enc.Frame()
	t.stats.Store(&s)
}

func (t *Transmitter) submit(ctx context.Context, r request) error {
	select {
	case t.reqs <- r:
		return nil
	case <-t.done:
		return spdif.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConfigureRate switches the output to sampleRate derived from masterClock.
// It fails with ErrDividerRange when no supported divider fits, and
// returns once the engine has taken the request. The change lands between
// frames.
func (t *Transmitter) ConfigureRate(ctx context.Context, sampleRate, masterClock int) error {
	div, err := spdif.TxDivider(sampleRate, masterClock)
	if err != nil {
		return err
	}
	if err := t.submit(ctx, configureRate{rate: sampleRate, master: masterClock, divider: div}); err != nil {
		return err
	}
	t.configured.Store(true)
	return nil
}

// OutputSamplePair queues one frame. Samples are left-justified 32-bit
// values. It fails with ErrNotConfigured before the first ConfigureRate
// and returns once the engine has taken the pair.
func (t *Transmitter) OutputSamplePair(ctx context.Context, left, right int32) error {
	if !t.configured.Load() {
		return spdif.ErrNotConfigured
	}
	return t.submit(ctx, samplePair{left: left, right: right})
}

// Shutdown asks Run to return after the requests already taken.
func (t *Transmitter) Shutdown(ctx context.Context) error {
	return t.submit(ctx, shutdown{})
}

// Stats returns the latest snapshot.
func (t *Transmitter) Stats() Stats {
	return *t.stats.Load()
}

// Done is closed when Run has returned.
func (t *Transmitter) Done() <-chan struct{} {
	return t.done
}
