// ABOUTME: Receive engine multiplexing the input line with its control channel
// ABOUTME: Recovers the bit clock, decodes subframes and posts them to a mailbox
package rx

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/line"
)

const (
	// DefaultReference is the reference clock divided down to the sample clock.
	DefaultReference = 100000000

	statsEvery = 256 // words between stats snapshots
)

// Config configures a Receiver.
type Config struct {
	// Line delivers sampled levels (required).
	Line line.Input
	// Clock programs the sample divider. Nil means the sample clock is fixed,
	// as for a replayed capture.
	Clock line.Clock
	// RateEstimate is a rough sample rate in Hz used to seed clock recovery.
	RateEstimate int
	// Reference is the clock in Hz that Clock divides (default 100 MHz). For a
	// fixed clock it is the sample rate of the line.
	Reference int
	// Divider overrides the initial divider derived from RateEstimate. It is
	// ignored for a fixed clock, which always runs at divider 1.
	Divider int
	// Generation selects the preamble code table.
	Generation spdif.Generation
	// Parity decides whether subframes failing parity are flagged or dropped.
	Parity ParityPolicy
	// OnEvent, if set, sees every delivered event on the engine goroutine
	// before it is posted. It must not block.
	OnEvent func(spdif.Event)
	// Logger defaults to the package logger with an "rx" prefix.
	Logger *log.Logger
}

// Stats is a snapshot of receiver state.
type Stats struct {
	Counters
	Overwritten uint64
	Retargets   int
	Locked      bool
	Frame       int
	Divider     int
	Unit        float64 // ticks per UI
	Rate        int     // nearest supported rate, 0 when unknown
	Measured    float64 // rate implied by the clock estimate
}

// Receiver owns an input line for the duration of Run.
type Receiver struct {
	cfg     Config
	log     *log.Logger
	box     *Mailbox
	quit    chan struct{}
	done    chan struct{}
	running atomic.Bool
	stats   atomic.Pointer[Stats]

	sampler   Sampler
	clock     ClockState
	dec       *Decoder
	intervals []uint32
}

// New validates cfg, programs the initial sample divider and returns a
// receiver ready to Run.
func New(cfg Config) (*Receiver, error) {
	if cfg.Line == nil {
		return nil, errors.New("rx: input line is required")
	}
	if cfg.Reference <= 0 {
		cfg.Reference = DefaultReference
	}
	if cfg.Divider < 0 || cfg.Divider > MaxDivider {
		return nil, errors.New("rx: divider out of range")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("rx")
	}
	if cfg.Clock == nil {
		// Nothing can apply a divider to a fixed line.
		cfg.Divider = 1
	}

	r := &Receiver{
		cfg:       cfg,
		log:       logger,
		box:       NewMailbox(),
		quit:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		clock:     NewClockState(cfg.Reference, cfg.RateEstimate, cfg.Divider),
		dec:       NewDecoder(cfg.Generation, cfg.Parity),
		intervals: make([]uint32, 0, 32),
	}
	r.clock.Fixed = cfg.Clock == nil
	if cfg.Clock != nil {
		if err := cfg.Clock.SetDivider(r.clock.Divider); err != nil {
			return nil, fmt.Errorf("rx: program sample clock: %w", err)
		}
	}
	r.publish()
	return r, nil
}

// Run services the line until Shutdown, ctx is done or the line closes. It
// must be called once. The line is not closed on return.
func (r *Receiver) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("rx: already running")
	}
	defer close(r.done)
	defer r.publish()

	r.log.Info("receiver started", "estimate", r.cfg.RateEstimate, "divider", r.clock.Divider,
		"generation", r.cfg.Generation, "parity", r.cfg.Parity)

	words := r.cfg.Line.Words()
	var n int
	for {
		select {
		case <-r.quit:
			r.log.Info("receiver stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case w, ok := <-words:
			if !ok {
				return spdif.ErrLineClosed
			}
			r.process(w)
			n++
			if n%statsEvery == 0 {
				r.publish()
			}
		}
	}
}

func (r *Receiver) process(word uint32) {
	r.intervals = r.sampler.Intervals(word, r.intervals[:0])
	for _, n := range r.intervals {
		var sym Symbol
		div := r.clock.Divider
		r.clock, sym = Recover(r.clock, n)
		if r.clock.Divider != div {
			r.setDivider(div)
		}

		wasLocked := r.dec.Locked()
		e, ok := r.dec.Step(sym)
		if locked := r.dec.Locked(); locked != wasLocked {
			r.lockChanged(locked)
		}
		if !ok {
			continue
		}
		if r.cfg.OnEvent != nil {
			r.cfg.OnEvent(e)
		}
		r.box.Put(e)
	}
}

// setDivider programs the divider chosen by clock recovery. If the line
// refuses it the estimate is put back on the previous divider and the clock
// is treated as fixed from then on.
func (r *Receiver) setDivider(prev int) {
	div := r.clock.Divider
	if err := r.cfg.Clock.SetDivider(div); err != nil {
		r.log.Warn("cannot program sample clock, holding divider", "divider", prev, "err", err)
		r.clock.Unit = clampUnit(int64(r.clock.Unit) * int64(div) / int64(prev))
		r.clock.Divider = prev
		r.clock.Retargets--
		r.clock.Fixed = true
		return
	}
	r.log.Debug("sample divider", "divider", div, "unit", float64(r.clock.Unit)/256)
	r.publish()
}

func (r *Receiver) lockChanged(locked bool) {
	r.publish()
	if !locked {
		r.log.Debug("lock lost", "sync_losses", r.dec.Counters().SyncLosses)
		return
	}
	s := r.stats.Load()
	r.log.Info("locked", "rate", s.Rate, "divider", s.Divider)
}

func (r *Receiver) publish() {
	measured := r.clock.Rate(r.cfg.Reference)
	s := &Stats{
		Counters:    r.dec.Counters(),
		Overwritten: r.box.Overwritten(),
		Retargets:   r.clock.Retargets,
		Locked:      r.dec.Locked(),
		Frame:       r.dec.Frame(),
		Divider:     r.clock.Divider,
		Unit:        float64(r.clock.Unit) / 256,
		Measured:    measured,
		Rate:        spdif.NearestRate(measured),
	}
	r.stats.Store(s)
}

// Stats returns the latest snapshot. Counters lag by at most a few hundred
// words while running.
func (r *Receiver) Stats() Stats {
	return *r.stats.Load()
}

// Samples is readable exactly when a decoded event is pending. Use it in a
// select alongside other work.
func (r *Receiver) Samples() <-chan spdif.Event {
	return r.box.Ready()
}

// Poll takes the pending event, if any, without blocking.
func (r *Receiver) Poll() (spdif.Event, bool) {
	return r.box.Poll()
}

// WaitSample blocks for the next event. After the engine has stopped it
// returns any event still pending, then ErrStopped.
func (r *Receiver) WaitSample(ctx context.Context) (spdif.Event, error) {
	select {
	case e := <-r.box.Ready():
		return e, nil
	case <-ctx.Done():
		return spdif.Event{}, ctx.Err()
	case <-r.done:
		if e, ok := r.box.Poll(); ok {
			return e, nil
		}
		return spdif.Event{}, spdif.ErrStopped
	}
}

// Shutdown asks Run to return. It does not wait.
func (r *Receiver) Shutdown() error {
	select {
	case <-r.done:
		return spdif.ErrStopped
	default:
	}
	select {
	case r.quit <- struct{}{}:
	default:
	}
	return nil
}

// Done is closed when Run has returned.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}
