// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts file audio to the rate the S/PDIF transmitter runs at
// Package resample provides streaming sample rate conversion.
//
//	r, err := resample.New(44100, 96000, 2)
//	out = r.Resample(out[:0], chunk)
package resample
