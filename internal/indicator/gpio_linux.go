//go:build linux

// ABOUTME: GPIO character device backend for the lock indicator
// ABOUTME: Requests one output line through go-gpiocdev
package indicator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Open requests offset on chip (e.g. "gpiochip0") as an output, initially low
func Open(chip string, offset int, activeLow bool) (*Lock, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("spdif-lock"),
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}
	return newLock(line), nil
}
