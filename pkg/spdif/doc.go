// ABOUTME: S/PDIF bitstream data model shared by the receiver and transmitter
// ABOUTME: Defines preambles, generations, subframe layout, channel status and rates
// Package spdif describes the S/PDIF (IEC 60958 consumer) bitstream.
//
// A subframe is 32 time slots: a 4-slot preamble, 24 audio slots sent
// LSB first, then the validity, user, channel-status and parity bits. Two
// subframes make a frame and 192 frames make a block. Every slot is a
// biphase-mark cell of two unit intervals (UI), so a frame is 128 UI.
//
// The receiver lives in package rx, the transmitter in package tx, and the
// line contract both of them drive in package line.
//
// Example:
//
//	div, err := spdif.TxDivider(48000, spdif.MasterClock48k)
//	if errors.Is(err, spdif.ErrDividerRange) {
//	    // the master clock cannot produce this rate
//	}
package spdif
