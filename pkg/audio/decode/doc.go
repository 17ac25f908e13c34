// ABOUTME: Decoders for audio chunks sent by the S/PDIF bridge
// ABOUTME: Supports PCM (16/24-bit) and Opus
// Package decode turns bridge audio chunks back into samples.
//
// All decoders output interleaved int32 samples in 24-bit range.
//
//	dec, err := decode.New(start.Format())
//	samples, err := dec.Decode(chunk.Data)
package decode
