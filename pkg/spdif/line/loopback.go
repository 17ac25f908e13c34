// ABOUTME: Virtual-time wire joining a transmitter output to a receiver input
// ABOUTME: Output words become timed edges which are resampled at the input clock
package line

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	DefaultMasterClock = 24576000
	DefaultReference   = 100000000
)

// LoopbackConfig sets up a Loopback.
type LoopbackConfig struct {
	MasterClock int     // Hz driving the output divider
	Reference   int     // Hz driving the input divider
	SkewPPM     float64 // output runs this much faster than nominal
	Phase       float64 // first input sample, in input sample periods
	Buffer      int     // input words buffered ahead of the reader
}

// Loopback connects one Output to one Input in virtual time. Output time
// advances by one unit interval per level written; input samples are taken
// every divider/Reference seconds of that timeline. Neither side waits on
// wall-clock time.
type Loopback struct {
	cfg   LoopbackConfig
	out   *OutputPort
	in    *InputPort
	segs  chan segment
	words chan uint32
	done  chan struct{}
	once  sync.Once
}

type segment struct {
	word  uint32
	start float64
	ui    float64
}

// NewLoopback starts the wire. Close releases it.
func NewLoopback(cfg LoopbackConfig) *Loopback {
	if cfg.MasterClock <= 0 {
		cfg.MasterClock = DefaultMasterClock
	}
	if cfg.Reference <= 0 {
		cfg.Reference = DefaultReference
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 4
	}
	l := &Loopback{
		cfg:   cfg,
		segs:  make(chan segment, cfg.Buffer),
		words: make(chan uint32, cfg.Buffer),
		done:  make(chan struct{}),
	}
	l.out = &OutputPort{l: l}
	l.out.div.Store(1)
	l.in = &InputPort{l: l}
	l.in.div.Store(1)
	go l.pump()
	return l
}

// Out returns the transmitter side.
func (l *Loopback) Out() *OutputPort { return l.out }

// In returns the receiver side.
func (l *Loopback) In() *InputPort { return l.in }

// Close stops the wire. Pending writes fail with ErrClosed and the input
// word channel is closed.
func (l *Loopback) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *Loopback) pump() {
	defer close(l.words)

	var (
		level uint32
		acc   uint32
		n     uint
	)
	period := func() float64 {
		return float64(l.in.div.Load()) / float64(l.cfg.Reference)
	}
	var t, next float64
	started := false

	sample := func(b uint32) bool {
		acc |= b << n
		n++
		if n == 32 {
			select {
			case l.words <- acc:
			case <-l.done:
				return false
			}
			acc, n = 0, 0
			t = period()
		}
		next += t
		return true
	}

	for {
		var s segment
		select {
		case s = <-l.segs:
		case <-l.done:
			return
		}
		if !started {
			t = period()
			next = l.cfg.Phase * t
			started = true
		}

		for next < s.start {
			if !sample(level) {
				return
			}
		}
		for i := 0; i < 32; i++ {
			level = s.word >> i & 1
			end := s.start + float64(i+1)*s.ui
			for next < end {
				if !sample(level) {
					return
				}
			}
		}
	}
}

// OutputPort is the transmitter end of a Loopback. It is an Output and the
// Clock dividing the master clock.
type OutputPort struct {
	l       *Loopback
	div     atomic.Int64
	t       float64
	delayed bool
	words   atomic.Uint64
}

// SetDivider sets the unit-interval clock to MasterClock/div.
func (o *OutputPort) SetDivider(div int) error {
	if div < 1 {
		return fmt.Errorf("line: output divider %d out of range", div)
	}
	o.div.Store(int64(div))
	return nil
}

// SetDelay idles the line for ticks master clock periods before the first word.
func (o *OutputPort) SetDelay(ticks int) error {
	if ticks < 0 {
		return fmt.Errorf("line: negative delay %d", ticks)
	}
	if !o.delayed {
		o.t += float64(ticks) / float64(o.l.cfg.MasterClock)
		o.delayed = true
	}
	return nil
}

func (o *OutputPort) Write(ctx context.Context, word uint32) error {
	rate := float64(o.l.cfg.MasterClock) * (1 + o.l.cfg.SkewPPM/1e6)
	ui := float64(o.div.Load()) / rate
	s := segment{word: word, start: o.t, ui: ui}
	select {
	case o.l.segs <- s:
		o.t += 32 * ui
		o.words.Add(1)
		return nil
	case <-o.l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Written returns the number of words accepted.
func (o *OutputPort) Written() uint64 { return o.words.Load() }

// InputPort is the receiver end of a Loopback. It is an Input and the Clock
// dividing the reference clock.
type InputPort struct {
	l   *Loopback
	div atomic.Int64
}

func (i *InputPort) Words() <-chan uint32 { return i.l.words }

// SetDivider sets the sample clock to Reference/div. It takes effect at the
// next word.
func (i *InputPort) SetDivider(div int) error {
	if div < 1 || div > MaxRxDivider {
		return fmt.Errorf("line: input divider %d out of range", div)
	}
	i.div.Store(int64(div))
	return nil
}

// Divider returns the current input divider.
func (i *InputPort) Divider() int { return int(i.div.Load()) }
