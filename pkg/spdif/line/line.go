// ABOUTME: Contract of the serial line and clock generator the engines drive
// ABOUTME: Words carry 32 line levels, first level in bit 0
package line

import (
	"context"
	"errors"
)

// ErrClosed is returned by a line that has been closed.
var ErrClosed = errors.New("line: closed")

// MaxRxDivider is the largest divider an input sample clock accepts.
const MaxRxDivider = 255

// Clock is a programmable clock divider. For an input line it divides the
// reference clock down to the sample clock; for an output line it divides
// the master clock down to the unit-interval clock.
type Clock interface {
	SetDivider(div int) error
}

// Input delivers sampled line levels, 32 samples per word. The channel is
// closed when the line ends.
type Input interface {
	Words() <-chan uint32
}

// Output emits line levels, 32 unit intervals per word.
type Output interface {
	// SetDelay shifts the output by ticks of the master clock. It is called
	// once, before the first word.
	SetDelay(ticks int) error
	Write(ctx context.Context, word uint32) error
}
