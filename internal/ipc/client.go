package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Common client errors.
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrDaemonNotRunning = errors.New("daemon is not running")
	ErrTimeout          = errors.New("request timeout")
)

// ClientConfig configures an IPC client.
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	Role           string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns control-client defaults for the socket.
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ClientName:     "nbwatchctl",
		ClientVersion:  "1.0.0",
		Role:           "cli",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Client is a synchronous request/response client for the daemon socket.
// One request is in flight at a time, which is all the CLI needs.
type Client struct {
	mu       sync.Mutex
	conn     net.Conn
	clientID string
	cfg      ClientConfig

	nextReqID atomic.Uint32
}

// NewClient creates a client. Call Connect before issuing requests.
func NewClient(cfg ClientConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect dials the daemon socket and performs the hello exchange.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.Dial("unix", c.cfg.SocketPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrDaemonNotRunning
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
		}
		return err
	}
	c.conn = conn

	resp, err := c.roundTrip(MsgHello, &HelloRequest{
		ClientName:      c.cfg.ClientName,
		ClientVersion:   c.cfg.ClientVersion,
		Role:            c.cfg.Role,
		ProtocolVersion: ProtocolVersion,
	})
	if err != nil {
		conn.Close()
		c.conn = nil
		return fmt.Errorf("hello: %w", err)
	}

	var ack HelloResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		conn.Close()
		c.conn = nil
		return fmt.Errorf("decode hello ack: %w", err)
	}
	c.clientID = ack.ClientID
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// request performs one locked round trip.
func (c *Client) request(msgType MessageType, payload any) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.roundTrip(msgType, payload)
}

// roundTrip writes a request and reads frames until the correlated
// response arrives. Caller holds c.mu.
func (c *Client) roundTrip(msgType MessageType, payload any) (*Message, error) {
	data, err := Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	reqID := c.nextReqID.Add(1)
	msg := NewMessage(msgType, reqID, data)

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	c.conn.SetWriteDeadline(deadline)
	if err := msg.Write(c.conn); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	for {
		c.conn.SetReadDeadline(deadline)
		resp, err := ReadMessage(c.conn)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("read response: %w", err)
		}

		// Unsolicited frames (daemon-initiated requests, notices meant
		// for an editor) are skipped even if their RequestID collides.
		if !resp.Header.IsResponse() || resp.Header.RequestID != reqID {
			continue
		}

		if resp.Header.Type == MsgError {
			var e ErrorResponse
			Decode(resp.Payload, &e)
			return nil, fmt.Errorf("daemon error: %s", e.Message)
		}
		return resp, nil
	}
}

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	resp, err := c.request(MsgPing, nil)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected response type: %d", resp.Header.Type)
	}
	return nil
}

// Status fetches the daemon status snapshot.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.request(MsgStatusRequest, nil)
	if err != nil {
		return nil, err
	}
	var status StatusResponse
	if err := Decode(resp.Payload, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetConfig fetches the active configuration as JSON.
func (c *Client) GetConfig() (json.RawMessage, error) {
	resp, err := c.request(MsgGetConfig, nil)
	if err != nil {
		return nil, err
	}
	var cfg GetConfigResponse
	if err := Decode(resp.Payload, &cfg); err != nil {
		return nil, err
	}
	return cfg.Config, nil
}

// ApplySettings submits a partial settings document.
func (c *Client) ApplySettings(settings json.RawMessage) error {
	resp, err := c.request(MsgApplySettings, &ApplySettingsRequest{Settings: settings})
	if err != nil {
		return err
	}
	var result ApplySettingsResponse
	if err := Decode(resp.Payload, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("settings rejected: %s", result.Error)
	}
	return nil
}

// Journal fetches recent journal entries, optionally scoped to a path.
func (c *Client) Journal(path string, limit int) ([]JournalEntry, error) {
	resp, err := c.request(MsgJournalQuery, &JournalQuery{Path: path, Limit: limit})
	if err != nil {
		return nil, err
	}
	var result JournalResponse
	if err := Decode(resp.Payload, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// CheckNow asks the daemon to run a poll cycle immediately.
func (c *Client) CheckNow() error {
	_, err := c.request(MsgCheckNow, nil)
	return err
}
