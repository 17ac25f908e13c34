// ABOUTME: Tests for bridge protocol message types
// ABOUTME: Verifies JSON field names and binary chunk framing
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
)

func TestClientHelloFields(t *testing.T) {
	hello := ClientHello{
		ClientID: "abc",
		Name:     "Monitor",
		Version:  Version,
		SupportedFormats: []AudioFormat{
			{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
			{Codec: "pcm", Channels: 2, BitDepth: 24},
		},
	}

	data, err := json.Marshal(Message{Type: TypeClientHello, Payload: hello})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "client/hello", raw["type"])
	payload := raw["payload"].(map[string]interface{})
	assert.Equal(t, "abc", payload["client_id"])
	formats := payload["supported_formats"].([]interface{})
	require.Len(t, formats, 2)
	assert.NotContains(t, formats[1].(map[string]interface{}), "sample_rate")
	assert.NotContains(t, payload, "status_only")
}

func TestStreamStartFormat(t *testing.T) {
	f := audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16, CodecHeader: []byte{1, 2, 3}}
	start := NewStreamStart(f)
	assert.Equal(t, "AQID", start.CodecHeader)

	back, err := start.Format()
	require.NoError(t, err)
	assert.Equal(t, f, back)

	start.CodecHeader = "!!"
	_, err = start.Format()
	assert.Error(t, err)
}

func TestReceiverStatusFields(t *testing.T) {
	data, err := json.Marshal(ReceiverStatus{Locked: true, SampleRate: 96000, Divider: 4})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"locked":true`)
	assert.Contains(t, string(data), `"sample_rate":96000`)
	assert.Contains(t, string(data), `"ticks_per_ui":0`)
}

func TestChunkFraming(t *testing.T) {
	b := EncodeChunk(0x0102030405060708, []byte{0xAA, 0xBB})
	assert.Equal(t, []byte{4, 1, 2, 3, 4, 5, 6, 7, 8, 0xAA, 0xBB}, b)

	chunk, err := DecodeChunk(b)
	require.NoError(t, err)
	assert.Equal(t, int64(0x0102030405060708), chunk.Timestamp)
	assert.Equal(t, []byte{0xAA, 0xBB}, chunk.Data)
}

func TestDecodeChunkRejects(t *testing.T) {
	_, err := DecodeChunk([]byte{4, 0, 0})
	assert.Error(t, err)

	bad := EncodeChunk(1, nil)
	bad[0] = 1
	_, err = DecodeChunk(bad)
	assert.Error(t, err)
}
