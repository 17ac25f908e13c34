// ABOUTME: WebSocket client for the bridge protocol
// ABOUTME: Handles connection, handshake, and message routing
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const handshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	ServerAddr       string
	ClientID         string
	Name             string
	DeviceInfo       DeviceInfo
	SupportedFormats []AudioFormat
	StatusOnly       bool
	Logger           *log.Logger
}

// Client is a connection to one bridge
type Client struct {
	config Config
	log    *log.Logger
	conn   *websocket.Conn
	mu     sync.RWMutex
	server ServerHello

	AudioChunks chan AudioChunk
	StreamStart chan StreamStart
	StreamEnd   chan StreamEnd
	Status      chan ReceiverStatus

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	logger := config.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("client")
	}

	return &Client{
		config:      config,
		log:         logger,
		AudioChunks: make(chan AudioChunk, 100),
		StreamStart: make(chan StreamStart, 1),
		StreamEnd:   make(chan StreamEnd, 1),
		Status:      make(chan ReceiverStatus, 4),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Connect dials the bridge and performs the handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: Path}
	c.log.Info("connecting", "url", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return nil
}

// Server returns the bridge's hello, valid after Connect
func (c *Client) Server() ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

func (c *Client) handshake() error {
	hello := ClientHello{
		ClientID:         c.config.ClientID,
		Name:             c.config.Name,
		Version:          Version,
		DeviceInfo:       &c.config.DeviceInfo,
		SupportedFormats: c.config.SupportedFormats,
		StatusOnly:       c.config.StatusOnly,
	}
	if err := c.sendJSON(Message{Type: TypeClientHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}

	switch msg.Type {
	case TypeServerHello:
	case TypeServerError:
		var e ServerError
		json.Unmarshal(msg.Payload, &e)
		return fmt.Errorf("refused: %s: %s", e.Error, e.Message)
	default:
		return fmt.Errorf("expected server/hello, got %s", msg.Type)
	}

	var server ServerHello
	if err := json.Unmarshal(msg.Payload, &server); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	c.mu.Lock()
	c.server = server
	c.mu.Unlock()

	c.log.Info("handshake complete", "bridge", server.Name, "generation", server.Generation)
	return nil
}

func (c *Client) sendJSON(msg Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) readMessages() {
	defer close(c.done)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Warn("read error", "err", err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.handleBinaryMessage(data)
		case websocket.TextMessage:
			c.handleJSONMessage(data)
		}
	}
}

func (c *Client) handleBinaryMessage(data []byte) {
	chunk, err := DecodeChunk(data)
	if err != nil {
		c.log.Debug("dropping binary message", "err", err)
		return
	}

	select {
	case c.AudioChunks <- chunk:
	case <-c.ctx.Done():
	}
}

func (c *Client) handleJSONMessage(data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("failed to parse message", "err", err)
		return
	}

	switch msg.Type {
	case TypeStreamStart:
		var start StreamStart
		if err := json.Unmarshal(msg.Payload, &start); err != nil {
			c.log.Warn("failed to parse stream/start", "err", err)
			return
		}
		select {
		case c.StreamStart <- start:
		case <-c.ctx.Done():
		}

	case TypeStreamEnd:
		var end StreamEnd
		if err := json.Unmarshal(msg.Payload, &end); err != nil {
			c.log.Warn("failed to parse stream/end", "err", err)
			return
		}
		select {
		case c.StreamEnd <- end:
		case <-c.ctx.Done():
		}

	case TypeReceiverStatus:
		var status ReceiverStatus
		if err := json.Unmarshal(msg.Payload, &status); err != nil {
			c.log.Warn("failed to parse receiver/status", "err", err)
			return
		}
		// Status is periodic; a stale one can be skipped.
		select {
		case c.Status <- status:
		default:
		}

	default:
		c.log.Debug("unknown message type", "type", msg.Type)
	}
}

// SendGoodbye sends client/goodbye before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	return c.sendJSON(Message{Type: TypeClientGoodbye, Payload: ClientGoodbye{Reason: reason}})
}

// Done is closed when the read loop exits
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		c.log.Info("connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
