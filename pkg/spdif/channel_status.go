// ABOUTME: Consumer channel-status block carried one bit per frame
// ABOUTME: Encodes copy, category, channel number, sample rate and word length
package spdif

// ChannelStatus is a 192-bit channel-status block, bit 0 first.
type ChannelStatus [FramesPerBlock / 8]byte

// Bit returns the channel-status bit sent in the given frame of a block.
func (cs ChannelStatus) Bit(frame int) uint32 {
	return uint32(cs[frame>>3]>>(frame&7)) & 1
}

// ConsumerStatus builds the consumer-format block a transmitter sends for
// one channel (1 = left, 2 = right).
func ConsumerStatus(sampleRate, sampleBits, channel int) ChannelStatus {
	var cs ChannelStatus
	cs[0] = 0x04 // consumer, linear PCM, copy permitted, no pre-emphasis
	cs[1] = 0x7A // digital/digital converter, other
	cs[2] = byte(channel&0xF) << 4
	cs[3] = rateCode(sampleRate) // clock accuracy level II
	cs[4] = wordLengthCode(sampleBits)
	return cs
}

// SampleRateCode returns the four sample-frequency bits of byte 3.
func (cs ChannelStatus) SampleRateCode() byte {
	return cs[3] & 0xF
}

func rateCode(rate int) byte {
	switch rate {
	case 44100:
		return 0x0
	case 48000:
		return 0x2
	case 88200:
		return 0x8
	case 96000:
		return 0xA
	case 176400:
		return 0xC
	case 192000:
		return 0xE
	case 22050:
		return 0x4
	case 24000:
		return 0x6
	default:
		return 0x1 // not indicated
	}
}

func wordLengthCode(bits int) byte {
	if bits == 20 {
		return 0x0A
	}
	return 0x0B
}
