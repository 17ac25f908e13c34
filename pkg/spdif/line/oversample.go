// ABOUTME: Output adapter repeating each line level a fixed number of times
// ABOUTME: Turns transmitter words into a capture a fixed-clock receiver can lock to
package line

import (
	"context"
	"fmt"
)

// Oversampled repeats every level written to it factor times before passing
// whole words on. A capture recorded through it has factor samples per UI.
type Oversampled struct {
	out    Output
	factor int
	acc    uint32
	n      int
}

// NewOversampled wraps out. factor must be at least 1.
func NewOversampled(out Output, factor int) (*Oversampled, error) {
	if factor < 1 {
		return nil, fmt.Errorf("line: oversample factor %d", factor)
	}
	return &Oversampled{out: out, factor: factor}, nil
}

// Factor returns the samples written per unit interval.
func (o *Oversampled) Factor() int { return o.factor }

func (o *Oversampled) SetDelay(ticks int) error { return o.out.SetDelay(ticks) }

// SetDivider forwards to the wrapped output when it is also a Clock.
func (o *Oversampled) SetDivider(div int) error {
	if c, ok := o.out.(Clock); ok {
		return c.SetDivider(div)
	}
	return nil
}

func (o *Oversampled) Write(ctx context.Context, word uint32) error {
	for i := 0; i < 32; i++ {
		level := word >> i & 1
		for j := 0; j < o.factor; j++ {
			o.acc |= level << o.n
			o.n++
			if o.n == 32 {
				if err := o.out.Write(ctx, o.acc); err != nil {
					return err
				}
				o.acc, o.n = 0, 0
			}
		}
	}
	return nil
}
