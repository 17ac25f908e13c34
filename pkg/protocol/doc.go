// ABOUTME: S/PDIF bridge wire protocol package
// ABOUTME: Defines protocol messages and the WebSocket client
// Package protocol implements the bridge wire protocol.
//
// Control messages are JSON objects {"type": ..., "payload": ...}. Audio
// travels as binary messages: one type byte (4), an 8-byte big-endian
// timestamp in microseconds, then the encoded audio.
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "bridge.local:8928", ...})
//	err := client.Connect(ctx)
//	for chunk := range client.AudioChunks { ... }
package protocol
