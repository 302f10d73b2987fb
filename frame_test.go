package ravana

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	payload := []byte{0x08, 0x01, 0x00, 0x2a, 0x00}
	frame := must(t)(Frame(payload))
	require.Len(t, frame, RequestHeaderSize+len(payload))
	assert.Equal(t, uint32(len(payload)), binary.NativeEndian.Uint32(frame[0:]))
	assert.Equal(t, uint16(ProtoVersion), binary.NativeEndian.Uint16(frame[4:]))
	assert.Equal(t, uint16(FlagClient), binary.NativeEndian.Uint16(frame[6:]))
	assert.Equal(t, payload, frame[RequestHeaderSize:])

	hdr, got, err := ReadRequestFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, RequestHeader{Size: uint32(len(payload)), Version: ProtoVersion, Flags: FlagClient}, hdr)
	assert.Equal(t, payload, got)

	empty := must(t)(Frame(nil))
	assert.Len(t, empty, RequestHeaderSize)
	assert.Equal(t, uint32(0), binary.NativeEndian.Uint32(empty))
	// the u32 size field can never disagree with the payload
	huge := make([]byte, MaxPayload+1)
	_, err = Frame(huge)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, WriteResponseFrame(io.Discard, huge), ErrInvalidArgument)
}

func TestReadRequestFrameErrors(t *testing.T) {
	frame := must(t)(Frame([]byte{1, 2, 3}))
	binary.NativeEndian.PutUint16(frame[4:], 2)
	_, _, err := ReadRequestFrame(bytes.NewReader(frame))
	assert.ErrorIs(t, err, ErrMalformed)

	_, _, err = ReadRequestFrame(bytes.NewReader(must(t)(Frame([]byte{1, 2, 3}))[:9]))
	assert.ErrorIs(t, err, ErrTruncated)
	_, _, err = ReadRequestFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestResponseFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponseFrame(&buf, []byte{0xfe}))
	raw := buf.Bytes()
	require.Len(t, raw, ResponseHeaderSize+1)

	size, payload, err := Unframe(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), size)
	assert.Equal(t, []byte{0xfe}, payload)

	got, err := ReadResponseFrame(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfe}, got)

	// bytes beyond the declared size are not part of the payload
	_, payload, err = Unframe(append(raw, 0x00, 0x00))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfe}, payload)
}

func TestResponseFrameShort(t *testing.T) {
	_, _, err := Unframe([]byte{1, 0})
	assert.ErrorIs(t, err, ErrTruncated)

	short := make([]byte, ResponseHeaderSize+2)
	binary.NativeEndian.PutUint32(short, 10)
	_, _, err = Unframe(short)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ReadResponseFrame(bytes.NewReader(short))
	assert.ErrorIs(t, err, ErrTruncated)
	assert.ErrorIs(t, err, ErrTransport)

	_, err = ReadResponseFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrTruncated)

	huge := make([]byte, ResponseHeaderSize)
	binary.NativeEndian.PutUint32(huge, MaxPayload+1)
	_, err = ReadResponseFrame(bytes.NewReader(huge))
	assert.ErrorIs(t, err, ErrMalformed)
}

type failingWriter struct {
	n   int
	err error
}

func (w failingWriter) Write(p []byte) (int, error) {
	return w.n, w.err
}

func TestWriteFull(t *testing.T) {
	err := WriteResponseFrame(failingWriter{n: 2}, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrTransport)

	boom := errors.New("boom")
	err = WriteResponseFrame(failingWriter{err: boom}, []byte{1})
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, boom)

	err = WriteResponseFrame(failingWriter{err: io.ErrClosedPipe}, nil)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
