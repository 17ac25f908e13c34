// ABOUTME: Encoders for audio chunks published by the S/PDIF bridge
// ABOUTME: Supports PCM (16/24-bit) and Opus
// Package encode turns received S/PDIF samples into bridge chunks.
//
// Encoders accept interleaved int32 samples in 24-bit range.
//
//	enc, err := encode.New(format)
//	data, err := enc.Encode(samples)
package encode
