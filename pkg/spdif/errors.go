// ABOUTME: Error values returned by the S/PDIF engines
// ABOUTME: Sync, parity and channel anomalies are counted, not returned
package spdif

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when a sample pair is submitted before the first rate configuration.
	ErrNotConfigured = errors.New("spdif: sample pair submitted before rate configuration")

	// ErrDividerRange is returned when a sample rate cannot be derived from the master clock.
	ErrDividerRange = errors.New("spdif: divider out of supported range")

	// ErrStopped is returned by requests made after an engine has exited.
	ErrStopped = errors.New("spdif: engine stopped")

	// ErrLineClosed is returned by the receiver when its input line ends.
	ErrLineClosed = errors.New("spdif: input line closed")
)

// DividerError describes a rejected rate configuration.
type DividerError struct {
	SampleRate  int
	MasterClock int
	Divider     int     // nearest supported divider, 0 if none
	PPM         float64 // deviation of the realised rate
}

func (e *DividerError) Error() string {
	if e.Divider == 0 {
		return fmt.Sprintf("spdif: cannot derive %d Hz from %d Hz master clock", e.SampleRate, e.MasterClock)
	}
	return fmt.Sprintf("spdif: %d Hz from %d Hz master clock needs divider %d (%.0f ppm off)",
		e.SampleRate, e.MasterClock, e.Divider, e.PPM)
}

func (e *DividerError) Unwrap() error {
	return ErrDividerRange
}
