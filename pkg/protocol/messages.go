// ABOUTME: Bridge protocol message type definitions
// ABOUTME: JSON control messages and the binary audio chunk framing
package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
)

const (
	// Version is the protocol version carried in hello messages
	Version = 1

	// Path is the WebSocket endpoint served by a bridge
	Path = "/spdif"

	// BinaryMessageHeaderSize is the type byte plus the 8-byte timestamp
	BinaryMessageHeaderSize = 1 + 8

	// AudioChunkMessageType tags binary audio chunks
	AudioChunkMessageType = 4
)

// Message types
const (
	TypeClientHello    = "client/hello"
	TypeClientGoodbye  = "client/goodbye"
	TypeServerHello    = "server/hello"
	TypeServerError    = "server/error"
	TypeStreamStart    = "stream/start"
	TypeStreamEnd      = "stream/end"
	TypeReceiverStatus = "receiver/status"
)

// Message is the top-level wrapper for all JSON messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello opens a session. SupportedFormats is in preference order.
type ClientHello struct {
	ClientID         string        `json:"client_id"`
	Name             string        `json:"name"`
	Version          int           `json:"version"`
	DeviceInfo       *DeviceInfo   `json:"device_info,omitempty"`
	SupportedFormats []AudioFormat `json:"supported_formats"`
	StatusOnly       bool          `json:"status_only,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// AudioFormat describes a codec a client can take. Zero SampleRate means
// any rate.
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate,omitempty"`
	BitDepth   int    `json:"bit_depth"`
}

// ServerHello answers client/hello
type ServerHello struct {
	ServerID   string `json:"server_id"`
	Name       string `json:"name"`
	Version    int    `json:"version"`
	Generation string `json:"generation"`
}

// ServerError reports why a session was refused
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StreamStart announces the format of the chunks that follow. A bridge
// sends one each time the receiver locks at a rate.
type StreamStart struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	CodecHeader string `json:"codec_header,omitempty"` // base64
}

// NewStreamStart builds a stream/start payload from a format
func NewStreamStart(f audio.Format) StreamStart {
	s := StreamStart{
		Codec:      f.Codec,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   f.BitDepth,
	}
	if len(f.CodecHeader) > 0 {
		s.CodecHeader = base64.StdEncoding.EncodeToString(f.CodecHeader)
	}
	return s
}

// Format converts the payload back to an audio.Format
func (s StreamStart) Format() (audio.Format, error) {
	f := audio.Format{
		Codec:      s.Codec,
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		BitDepth:   s.BitDepth,
	}
	if s.CodecHeader != "" {
		h, err := base64.StdEncoding.DecodeString(s.CodecHeader)
		if err != nil {
			return f, fmt.Errorf("codec header: %w", err)
		}
		f.CodecHeader = h
	}
	return f, nil
}

// StreamEnd stops the current stream, e.g. when lock is lost
type StreamEnd struct {
	Reason string `json:"reason"` // "unlocked", "rate_change", "shutdown"
}

// ClientGoodbye is sent before graceful disconnect
type ClientGoodbye struct {
	Reason string `json:"reason"`
}

// ReceiverStatus publishes the receive engine's state and error counters
type ReceiverStatus struct {
	Locked        bool    `json:"locked"`
	SampleRate    int     `json:"sample_rate"`
	Measured      float64 `json:"measured_rate"`
	Divider       int     `json:"divider"`
	Unit          float64 `json:"ticks_per_ui"`
	Subframes     uint64  `json:"subframes"`
	SyncLosses    uint64  `json:"sync_losses"`
	ParityErrors  uint64  `json:"parity_errors"`
	ChannelErrors uint64  `json:"channel_errors"`
	BlockErrors   uint64  `json:"block_errors"`
	Dropped       uint64  `json:"dropped"`
	Overwritten   uint64  `json:"overwritten"`
	Retargets     int     `json:"retargets"`
	Clients       int     `json:"clients"`
}

// AudioChunk is a timestamped block of encoded audio
type AudioChunk struct {
	Timestamp int64 // microseconds since the stream started
	Data      []byte
}

// EncodeChunk frames a chunk as [type:1][timestamp:8 BE][data]
func EncodeChunk(timestamp int64, data []byte) []byte {
	out := make([]byte, BinaryMessageHeaderSize+len(data))
	out[0] = AudioChunkMessageType
	binary.BigEndian.PutUint64(out[1:BinaryMessageHeaderSize], uint64(timestamp))
	copy(out[BinaryMessageHeaderSize:], data)
	return out
}

// DecodeChunk parses a binary message produced by EncodeChunk
func DecodeChunk(b []byte) (AudioChunk, error) {
	if len(b) < BinaryMessageHeaderSize {
		return AudioChunk{}, fmt.Errorf("binary message too short: %d bytes", len(b))
	}
	if b[0] != AudioChunkMessageType {
		return AudioChunk{}, fmt.Errorf("unknown binary message type: %d", b[0])
	}
	return AudioChunk{
		Timestamp: int64(binary.BigEndian.Uint64(b[1:BinaryMessageHeaderSize])),
		Data:      b[BinaryMessageHeaderSize:],
	}, nil
}
