// ABOUTME: Audio output package for monitoring received audio
// ABOUTME: Provides the Output interface and an Oto backend
// Package output plays received S/PDIF audio on the local sound device.
//
//	out := output.NewOto()
//	err := out.Open(48000, 2)
//	err = out.Write(samples)
package output
