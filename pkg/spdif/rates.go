// ABOUTME: Supported sample rates, master clocks and transmit divider selection
// ABOUTME: A rate must come from the master clock within level II accuracy
package spdif

import "math"

const (
	// MasterClock44k1 drives the 44.1 kHz family.
	MasterClock44k1 = 22579200
	// MasterClock48k drives the 48 kHz family.
	MasterClock48k = 24576000

	// MaxTxDivider is the largest divider the output clock generator supports.
	// Dividers above 1 must be even.
	MaxTxDivider = 510

	// MaxRatePPM bounds the deviation of a realised transmit rate.
	MaxRatePPM = 1000.0

	// uiPerSample is bits per frame times the biphase oversample factor.
	uiPerSample = 64 * 2
)

// StandardRates are the sample rates every generation supports.
var StandardRates = []int{44100, 48000, 88200, 96000, 176400, 192000}

// LegacyRates are the additional rates of older receivers.
var LegacyRates = []int{11025, 12000, 22050, 24000}

// AllRates returns the legacy and standard rates in ascending order.
func AllRates() []int {
	rates := make([]int, 0, len(LegacyRates)+len(StandardRates))
	rates = append(rates, LegacyRates...)
	return append(rates, StandardRates...)
}

// MasterClockFor returns the master clock normally used for a sample rate.
func MasterClockFor(rate int) int {
	if rate > 0 && rate%11025 == 0 {
		return MasterClock44k1
	}
	return MasterClock48k
}

// NearestRate snaps a measured sample rate to the closest supported rate.
// It returns 0 when nothing is within 5%. The snap assumes a near-nominal
// line clock: 44.1 kHz running 10% fast reads as 48 kHz.
func NearestRate(hz float64) int {
	best, bestErr := 0, math.Inf(1)
	for _, r := range AllRates() {
		e := math.Abs(hz-float64(r)) / float64(r)
		if e < bestErr {
			best, bestErr = r, e
		}
	}
	if bestErr > 0.05 {
		return 0
	}
	return best
}

// TxDivider derives the output clock divider for a sample rate from the
// master clock: master / (rate * 64 bits * 2), rounded to the nearest
// divider the clock generator supports.
func TxDivider(sampleRate, masterClock int) (int, error) {
	if sampleRate <= 0 || masterClock <= 0 {
		return 0, &DividerError{SampleRate: sampleRate, MasterClock: masterClock}
	}

	exact := float64(masterClock) / float64(sampleRate*uiPerSample)
	div := 1
	if exact >= 1.5 {
		div = 2 * int(math.Round(exact/2))
	}
	if exact < 0.5 || div > MaxTxDivider {
		return 0, &DividerError{SampleRate: sampleRate, MasterClock: masterClock}
	}

	realised := float64(masterClock) / float64(div*uiPerSample)
	ppm := math.Abs(realised-float64(sampleRate)) / float64(sampleRate) * 1e6
	if ppm > MaxRatePPM {
		return 0, &DividerError{SampleRate: sampleRate, MasterClock: masterClock, Divider: div, PPM: ppm}
	}
	return div, nil
}
