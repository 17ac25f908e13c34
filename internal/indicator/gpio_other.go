//go:build !linux

// ABOUTME: Lock indicator stub for platforms without GPIO character devices
// ABOUTME: Open always fails so callers fall back to no indicator
package indicator

import "errors"

// Open is unavailable off Linux
func Open(chip string, offset int, activeLow bool) (*Lock, error) {
	return nil, errors.New("gpio lock indicator requires linux")
}
