package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"nbwatchd/internal/logging"
)

// Handler processes messages a client sends to the daemon.
type Handler interface {
	HandleMessage(ctx context.Context, conn *Conn, msg *Message) (*Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn *Conn, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, conn *Conn, msg *Message) (*Message, error) {
	return f(ctx, conn, msg)
}

// ServerConfig configures the IPC server.
type ServerConfig struct {
	SocketPath     string
	Version        string
	MaxConnections int
	RequestTimeout time.Duration
	Log            *logging.Logger
}

// Server listens on a unix socket and serves editor and CLI clients.
type Server struct {
	mu         sync.RWMutex
	listener   net.Listener
	socketPath string
	handler    Handler
	conns      map[string]*Conn
	editorID   string // connection ID of the current editor, empty when none
	version    string
	maxConns   int
	reqTimeout time.Duration
	startedAt  time.Time
	log        *logging.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	nextRequestID atomic.Uint32
	nextConnSeq   atomic.Uint64
}

// Conn is one connected client.
type Conn struct {
	ID          string
	Name        string
	Role        string
	ConnectedAt time.Time

	conn    net.Conn
	writeMu sync.Mutex

	// Server-initiated requests awaiting a response from this client.
	pendingMu sync.Mutex
	pending   map[uint32]chan *Message

	closed atomic.Bool
}

// NewServer creates an IPC server. Call Start to begin listening.
func NewServer(cfg ServerConfig, handler Handler) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 16
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: cfg.SocketPath,
		handler:    handler,
		conns:      make(map[string]*Conn),
		version:    cfg.Version,
		maxConns:   cfg.MaxConnections,
		reqTimeout: cfg.RequestTimeout,
		log:        cfg.Log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening on the unix socket.
func (s *Server) Start() error {
	socketDir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(socketDir, 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.startedAt = time.Now()
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("ipc server listening", "socket", s.socketPath)
	return nil
}

// Stop shuts the server down and removes the socket file. Idempotent.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, c := range s.conns {
		c.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("ipc shutdown timed out waiting for connections")
	}

	os.Remove(s.socketPath)
	return nil
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// StartedAt returns when the server began listening.
func (s *Server) StartedAt() time.Time {
	return s.startedAt
}

// Version returns the advertised server version.
func (s *Server) Version() string {
	return s.version
}

// ConnCount returns the number of connected clients.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Editor returns the currently connected editor, or nil.
func (s *Server) Editor() *Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.editorID == "" {
		return nil
	}
	return s.conns[s.editorID]
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Warn("accept failed", "error", err)
				continue
			}
		}

		// Only the socket owner may connect.
		if ok, err := verifyPeerIsCurrentUser(netConn); err != nil || !ok {
			s.log.Warn("rejecting connection from foreign peer", "error", err)
			netConn.Close()
			continue
		}

		s.mu.RLock()
		count := len(s.conns)
		s.mu.RUnlock()
		if count >= s.maxConns {
			s.log.Warn("connection limit reached, rejecting client", "limit", s.maxConns)
			netConn.Close()
			continue
		}

		c := &Conn{
			ID:          fmt.Sprintf("conn-%d", s.nextConnSeq.Add(1)),
			ConnectedAt: time.Now(),
			conn:        netConn,
			pending:     make(map[uint32]chan *Message),
		}

		s.mu.Lock()
		s.conns[c.ID] = c
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(c)
	}
}

func (s *Server) serveConn(c *Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c.ID)
		if s.editorID == c.ID {
			s.editorID = ""
			s.log.Info("editor disconnected", "conn", c.ID)
		}
		s.mu.Unlock()
		c.close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		msg, err := ReadMessage(c.conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("connection read failed", "conn", c.ID, "error", err)
			}
			return
		}

		// A response frame whose RequestID matches a server-initiated
		// request completes it; everything else is a client request.
		if c.deliverResponse(msg) {
			continue
		}

		resp := s.dispatch(c, msg)
		if resp != nil {
			if err := c.send(resp); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatch(c *Conn, msg *Message) *Message {
	switch msg.Header.Type {
	case MsgPing:
		return NewReply(MsgPong, msg.Header.RequestID, nil)

	case MsgHello:
		return s.handleHello(c, msg)

	default:
		if s.handler == nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "no handler")
		}
		resp, err := s.handler.HandleMessage(s.ctx, c, msg)
		if err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		return resp
	}
}

func (s *Server) handleHello(c *Conn, msg *Message) *Message {
	var req HelloRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid hello")
	}

	c.Name = req.ClientName
	c.Role = req.Role

	if req.Role == "editor" {
		s.mu.Lock()
		// A newer editor connection supersedes any previous one.
		s.editorID = c.ID
		s.mu.Unlock()
		s.log.Info("editor connected", "conn", c.ID, "name", req.ClientName)
	}

	resp, err := NewResponse(MsgHelloAck, msg.Header.RequestID, &HelloResponse{
		ServerVersion:   s.version,
		ProtocolVersion: ProtocolVersion,
		ClientID:        c.ID,
	})
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
	}
	return resp
}

// Request sends a server-initiated request to the client and waits for
// the correlated response.
func (s *Server) Request(ctx context.Context, c *Conn, msgType MessageType, payload any) (*Message, error) {
	data, err := Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	reqID := s.nextRequestID.Add(1)
	respChan := make(chan *Message, 1)

	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	if err := c.send(NewMessage(msgType, reqID, data)); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	timer := time.NewTimer(s.reqTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, errors.New("connection closed")
		}
		if resp.Header.Type == MsgError {
			var e ErrorResponse
			Decode(resp.Payload, &e)
			return nil, fmt.Errorf("remote error: %s", e.Message)
		}
		return resp, nil
	case <-timer.C:
		return nil, errors.New("request timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, errors.New("server shutting down")
	}
}

// Push sends a one-way message to the client, no response expected.
func (s *Server) Push(c *Conn, msgType MessageType, payload any) error {
	data, err := Encode(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return c.send(NewMessage(msgType, s.nextRequestID.Add(1), data))
}

func (c *Conn) deliverResponse(msg *Message) bool {
	// The client may reuse a RequestID a pending server request holds;
	// only frames flagged as responses are eligible for correlation.
	if !msg.Header.IsResponse() {
		return false
	}

	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	ch, ok := c.pending[msg.Header.RequestID]
	if !ok {
		return false
	}
	select {
	case ch <- msg:
	default:
	}
	return true
}

func (c *Conn) send(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return msg.Write(c.conn)
}

func (c *Conn) close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.conn.Close()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}
