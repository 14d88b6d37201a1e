package ipc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	payload, err := Encode(&ReloadRequest{Path: "/nb/a.ipynb"})
	require.NoError(t, err)

	msg := NewMessage(MsgReloadRequest, 42, payload)

	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))
	assert.Equal(t, HeaderSize+len(payload), buf.Len())

	got, err := ReadMessage(&buf)
	require.NoError(t, err)

	assert.Equal(t, uint32(ProtocolMagic), got.Header.Magic)
	assert.Equal(t, uint8(ProtocolVersion), got.Header.Version)
	assert.Equal(t, MsgReloadRequest, got.Header.Type)
	assert.Equal(t, uint32(42), got.Header.RequestID)

	var req ReloadRequest
	require.NoError(t, Decode(got.Payload, &req))
	assert.Equal(t, "/nb/a.ipynb", req.Path)
}

func TestEmptyPayloadRoundTrip(t *testing.T) {
	msg := NewMessage(MsgPing, 7, nil)

	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))
	assert.Equal(t, HeaderSize, buf.Len())

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgPing, got.Header.Type)
	assert.Empty(t, got.Payload)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], 0xDEADBEEF)

	_, err := ReadHeader(bytes.NewReader(buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid magic")
}

func TestReadHeaderRejectsNewerVersion(t *testing.T) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], ProtocolMagic)
	buf[4] = ProtocolVersion + 1

	_, err := ReadHeader(bytes.NewReader(buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported protocol version")
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	h := Header{
		Magic:   ProtocolMagic,
		Version: ProtocolVersion,
		Type:    MsgStatusRequest,
		Length:  maxPayload + 1,
	}
	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))

	_, err := ReadMessage(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload too large")
}

func TestReadMessageTruncatedPayload(t *testing.T) {
	msg := NewMessage(MsgStatusRequest, 1, []byte(`{"x":1}`))

	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := ReadMessage(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(9, ErrNoEditor, "no editor connected")
	assert.Equal(t, MsgError, msg.Header.Type)
	assert.Equal(t, uint32(9), msg.Header.RequestID)

	var e ErrorResponse
	require.NoError(t, Decode(msg.Payload, &e))
	assert.Equal(t, ErrNoEditor, e.Code)
	assert.Equal(t, "no editor connected", e.Message)
}

func TestReplyFramesCarryResponseFlag(t *testing.T) {
	reply := NewReply(MsgPong, 3, nil)
	assert.True(t, reply.Header.IsResponse())

	errMsg := NewErrorMessage(4, ErrUnknown, "boom")
	assert.True(t, errMsg.Header.IsResponse())

	resp, err := NewResponse(MsgReloadResponse, 5, &ReloadResponse{Success: true})
	require.NoError(t, err)
	assert.True(t, resp.Header.IsResponse())

	req := NewMessage(MsgPing, 6, nil)
	assert.False(t, req.Header.IsResponse())

	// The flag survives the wire.
	var buf bytes.Buffer
	require.NoError(t, reply.Write(&buf))
	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.True(t, got.Header.IsResponse())
}
