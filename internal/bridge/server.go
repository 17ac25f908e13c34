// ABOUTME: WebSocket server publishing received S/PDIF audio and receiver status
// ABOUTME: Manages client handshakes, per-client writers and mDNS advertisement
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"

	"github.com/Resonate-Protocol/spdif-go/internal/discovery"
	"github.com/Resonate-Protocol/spdif-go/pkg/protocol"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/rx"
)

const (
	eventBuffer    = 1 << 16
	sendBuffer     = 100
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	shutdownWindow = 5 * time.Second
)

// StatusSource reports receiver state; *rx.Receiver implements it
type StatusSource interface {
	Stats() rx.Stats
}

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Generation spdif.Generation
	// StatusInterval is the receiver/status period (default 1s)
	StatusInterval time.Duration
	// OnStatus, if set, sees every status published
	OnStatus func(protocol.ReceiverStatus)
	Logger   *log.Logger
}

// Server is the bridge between one receiver and any number of clients
type Server struct {
	config   Config
	log      *log.Logger
	serverID string
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	// clientsMu also guards isShutdown so no client registers once Serve
	// has begun waiting for writers.
	clients    map[string]*client
	clientsMu  sync.RWMutex
	isShutdown bool

	events  chan spdif.Event
	dropped atomic.Uint64
	source  atomic.Pointer[StatusSource]
	status  atomic.Pointer[protocol.ReceiverStatus]

	mdns *discovery.Manager

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type client struct {
	id         string
	name       string
	conn       *websocket.Conn
	formats    []protocol.AudioFormat
	statusOnly bool
	sendChan   chan interface{}
	dropped    atomic.Uint64

	mu     sync.Mutex
	stream *clientStream
}

// New creates a bridge server
func New(config Config) *Server {
	if config.StatusInterval <= 0 {
		config.StatusInterval = time.Second
	}
	if config.Name == "" {
		config.Name = "S/PDIF Bridge"
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("bridge")
	}

	s := &Server{
		config:   config,
		log:      logger,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Bridges serve trusted local networks; browsers on any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*client),
		events:   make(chan spdif.Event, eventBuffer),
		stopChan: make(chan struct{}),
	}
	s.mux.HandleFunc(protocol.Path, s.handleWebSocket)
	return s
}

// Attach sets the receiver whose state is published
func (s *Server) Attach(src StatusSource) {
	s.source.Store(&src)
}

// Feed queues one decoded subframe. It never blocks; events arriving while
// the queue is full are counted and discarded. Use it as rx.Config.OnEvent.
func (s *Server) Feed(e spdif.Event) {
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
	}
}

// Start listens on the configured port and serves until Stop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if s.config.EnableMDNS {
		s.mdns = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Info:        map[string]string{"id": s.serverID, "generation": s.config.Generation.String()},
		})
		if err := s.mdns.Advertise(); err != nil {
			s.log.Warn("mDNS advertisement failed", "err", err)
		}
	}

	return s.Serve(ln)
}

// Serve runs the stream pump and serves WebSocket clients on ln until Stop.
// Errors from the listener and from shutdown are aggregated.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("bridge starting", "name", s.config.Name, "id", s.serverID, "addr", ln.Addr().String())

	httpServer := &http.Server{Handler: s.mux}
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pump(ctx)
	}()

	var result error
	select {
	case <-s.stopChan:
		s.log.Info("bridge shutting down")
	case err := <-errChan:
		result = multierror.Append(result, fmt.Errorf("http server: %w", err))
	}

	s.clientsMu.Lock()
	s.isShutdown = true
	s.clientsMu.Unlock()

	cancel()
	if s.mdns != nil {
		s.mdns.Stop()
	}

	s.broadcast(protocol.TypeStreamEnd, protocol.StreamEnd{Reason: "shutdown"})

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownWindow)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}
	s.closeClients()
	s.wg.Wait()

	s.log.Info("bridge stopped")
	return result
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Status returns the most recently published receiver status
func (s *Server) Status() protocol.ReceiverStatus {
	if p := s.status.Load(); p != nil {
		return *p
	}
	return protocol.ReceiverStatus{}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	s.log.Debug("new connection", "remote", r.RemoteAddr)
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.clientsMu.RLock()
	shutdown := s.isShutdown
	s.clientsMu.RUnlock()
	if shutdown {
		return
	}

	hello, err := readHello(conn)
	if err != nil {
		s.log.Warn("handshake failed", "err", err)
		writeError(conn, "bad_hello", err.Error())
		return
	}

	c := &client{
		id:         hello.ClientID,
		name:       hello.Name,
		conn:       conn,
		formats:    hello.SupportedFormats,
		statusOnly: hello.StatusOnly,
		sendChan:   make(chan interface{}, sendBuffer),
	}

	s.clientsMu.Lock()
	if s.isShutdown {
		s.clientsMu.Unlock()
		s.log.Debug("refusing client during shutdown", "name", c.name)
		writeError(conn, "shutting_down", "Bridge is shutting down")
		return
	}
	if _, exists := s.clients[c.id]; exists {
		s.clientsMu.Unlock()
		s.log.Warn("duplicate client id", "id", c.id, "name", c.name)
		writeError(conn, "duplicate_client_id", "Client ID already connected")
		return
	}
	s.clients[c.id] = c
	s.wg.Add(1)
	s.clientsMu.Unlock()

	s.log.Info("client connected", "name", c.name, "id", c.id)

	writerDone := make(chan struct{})
	go func() {
		defer s.wg.Done()
		defer close(writerDone)
		s.clientWriter(c)
	}()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		c.mu.Lock()
		c.closeStream()
		c.mu.Unlock()
		close(c.sendChan)
		<-writerDone
		s.log.Info("client disconnected", "name", c.name, "dropped", c.dropped.Load())
	}()

	s.send(c, protocol.Message{Type: protocol.TypeServerHello, Payload: protocol.ServerHello{
		ServerID:   s.serverID,
		Name:       s.config.Name,
		Version:    protocol.Version,
		Generation: s.config.Generation.String(),
	}})
	if st := s.status.Load(); st != nil {
		s.send(c, protocol.Message{Type: protocol.TypeReceiverStatus, Payload: *st})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error", "err", err)
			}
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("bad message", "err", err)
			continue
		}
		if msg.Type == protocol.TypeClientGoodbye {
			s.log.Info("client said goodbye", "name", c.name)
			return
		}
	}
}

func readHello(conn *websocket.Conn) (protocol.ClientHello, error) {
	var hello protocol.ClientHello

	conn.SetReadDeadline(time.Now().Add(writeDeadline))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return hello, fmt.Errorf("read hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return hello, fmt.Errorf("parse hello: %w", err)
	}
	if msg.Type != protocol.TypeClientHello {
		return hello, fmt.Errorf("expected %s, got %s", protocol.TypeClientHello, msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		return hello, fmt.Errorf("parse hello: %w", err)
	}
	if hello.ClientID == "" || hello.Name == "" {
		return hello, errors.New("hello needs client_id and name")
	}
	return hello, nil
}

func writeError(conn *websocket.Conn, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeServerError,
		Payload: protocol.ServerError{Error: code, Message: message},
	})
}

// clientWriter owns all writes to the client's connection
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			var err error
			switch v := msg.(type) {
			case []byte:
				err = c.conn.WriteMessage(websocket.BinaryMessage, v)
			default:
				err = c.conn.WriteJSON(v)
			}
			if err != nil {
				s.log.Debug("write failed", "client", c.name, "err", err)
				c.conn.Close()
				// keep draining so senders never block on a dead client
				for range c.sendChan {
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				for range c.sendChan {
				}
				return
			}
		}
	}
}

// send queues a message without blocking
func (s *Server) send(c *client, msg interface{}) bool {
	select {
	case c.sendChan <- msg:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

func (s *Server) broadcast(msgType string, payload interface{}) {
	msg := protocol.Message{Type: msgType, Payload: payload}
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		s.send(c, msg)
	}
}

func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		c.conn.Close()
	}
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
