// Package ipc carries the daemon's control plane: the editor front-end
// reports document lifecycle events and answers reload/prompt requests
// over it, and the CLI queries status, configuration, and the change
// journal.
//
// Messages are length-prefixed frames on a unix socket: a fixed 16-byte
// header followed by a JSON payload. Requests and responses are
// correlated by RequestID, which lets either side initiate (the daemon
// pushes prompt and reload requests to the editor). RequestIDs are only
// unique per initiating side, so every reply frame carries FlagResponse
// and correlation matches on the flag plus the ID; a bare RequestID
// match is never treated as a response.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x4E425744 // "NBWD"
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing     MessageType = 0x0001
	MsgPong     MessageType = 0x0002
	MsgHello    MessageType = 0x0003
	MsgHelloAck MessageType = 0x0004
	MsgError    MessageType = 0x0005
	MsgAck      MessageType = 0x0006

	// Status (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Document lifecycle, editor -> daemon (0x02xx)
	MsgDocOpened MessageType = 0x0200
	MsgDocClosed MessageType = 0x0201
	MsgDocSaved  MessageType = 0x0202
	MsgDocDirty  MessageType = 0x0203

	// Engine requests, daemon -> editor (0x03xx)
	MsgReloadRequest    MessageType = 0x0300
	MsgReloadResponse   MessageType = 0x0301
	MsgPromptRequest    MessageType = 0x0302
	MsgPromptResponse   MessageType = 0x0303
	MsgListDocsRequest  MessageType = 0x0304
	MsgListDocsResponse MessageType = 0x0305
	MsgNotice           MessageType = 0x0306

	// Configuration (0x04xx)
	MsgGetConfig         MessageType = 0x0400
	MsgGetConfigResp     MessageType = 0x0401
	MsgApplySettings     MessageType = 0x0402
	MsgApplySettingsResp MessageType = 0x0403

	// Journal and checks (0x05xx)
	MsgJournalQuery MessageType = 0x0500
	MsgJournalResp  MessageType = 0x0501
	MsgCheckNow     MessageType = 0x0502
)

// Header flags.
const (
	// FlagResponse marks a frame as the reply to an earlier request.
	// Both sides must set it on replies; see the correlation rule in
	// the package comment.
	FlagResponse uint8 = 0x01
)

// Header is the fixed-size message header (16 bytes).
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32 // payload length, header excluded
}

// HeaderSize is the size of the header in bytes.
const HeaderSize = 16

// maxPayload bounds a frame; journal queries are the largest payloads
// and stay far below this.
const maxPayload = 8 * 1024 * 1024

// Message wraps a header and payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a message with the given type and payload.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer.
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates a header from a reader.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// IsResponse reports whether the frame is a reply to an earlier request.
func (h *Header) IsResponse() bool {
	return h.Flags&FlagResponse != 0
}

// Write writes the message to a writer.
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > maxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Request/response payloads.

// HelloRequest identifies a connecting client. Role is "editor" for the
// front-end that owns documents, "cli" for control clients.
type HelloRequest struct {
	ClientName      string `json:"client_name"`
	ClientVersion   string `json:"client_version"`
	Role            string `json:"role"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HelloResponse acknowledges a connection.
type HelloResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	ClientID        string `json:"client_id"`
}

// ErrorResponse is sent when an operation fails.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes.
const (
	ErrUnknown        = 1
	ErrInvalidRequest = 2
	ErrNotFound       = 3
	ErrNoEditor       = 4
	ErrInternalError  = 5
	ErrBadSettings    = 6
)

// StatusResponse describes the daemon's state.
type StatusResponse struct {
	Version         string    `json:"version"`
	StartedAt       time.Time `json:"started_at"`
	Uptime          string    `json:"uptime"`
	Running         bool      `json:"running"`
	EditorConnected bool      `json:"editor_connected"`
	TrackedCount    int       `json:"tracked_count"`
	PendingReloads  int       `json:"pending_reloads"`
	JournalEntries  int64     `json:"journal_entries,omitempty"`
}

// DocEvent carries a document lifecycle notification from the editor.
type DocEvent struct {
	Path    string    `json:"path"`
	Dirty   bool      `json:"dirty,omitempty"`
	SavedAt time.Time `json:"saved_at,omitempty"`
}

// ReloadRequest asks the editor to replace a document's buffer with
// current storage content.
type ReloadRequest struct {
	Path string `json:"path"`
}

// ReloadResponse reports the reload outcome.
type ReloadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PromptRequest asks the editor to show a modal choice.
type PromptRequest struct {
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Choices []string `json:"choices"`
}

// PromptResponse carries the user's choice. Dismissed is set when the
// prompt was closed without choosing.
type PromptResponse struct {
	Choice    string `json:"choice,omitempty"`
	Dismissed bool   `json:"dismissed,omitempty"`
}

// DocInfo describes one open document.
type DocInfo struct {
	Path  string `json:"path"`
	Dirty bool   `json:"dirty"`
}

// ListDocsResponse enumerates the editor's open documents.
type ListDocsResponse struct {
	Documents []DocInfo `json:"documents"`
}

// NoticeEvent is a passive notification pushed to the editor.
type NoticeEvent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// GetConfigResponse carries the active configuration rendered to JSON.
type GetConfigResponse struct {
	Config json.RawMessage `json:"config"`
}

// ApplySettingsRequest carries a partial settings document. It is
// validated against the settings schema before anything is applied.
type ApplySettingsRequest struct {
	Settings json.RawMessage `json:"settings"`
}

// ApplySettingsResponse acknowledges a settings update.
type ApplySettingsResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// JournalQuery requests recent reconciliation journal entries.
type JournalQuery struct {
	Path  string `json:"path,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// JournalEntry mirrors one journal row.
type JournalEntry struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Path       string    `json:"path"`
	ObservedAt time.Time `json:"observed_at"`
	Source     string    `json:"source"`
	Class      string    `json:"class"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// JournalResponse carries journal query results.
type JournalResponse struct {
	Entries []JournalEntry `json:"entries"`
}

// Encode encodes a payload to JSON bytes.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes into a payload.
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewReply creates a response frame for requestID with FlagResponse set.
func NewReply(msgType MessageType, requestID uint32, payload []byte) *Message {
	m := NewMessage(msgType, requestID, payload)
	m.Header.Flags |= FlagResponse
	return m
}

// NewErrorMessage creates an error response message.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message})
	return NewReply(MsgError, requestID, payload)
}

// NewResponse creates a response message with an encoded payload.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewReply(msgType, requestID, payload), nil
}
