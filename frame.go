package ravana

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// ProtoVersion is the only protocol version spoken.
	ProtoVersion = 1

	// FlagClient marks a request as sent by a filesystem client.
	FlagClient = 1

	// RequestHeaderSize is size u32 + version u16 + flags u16.
	RequestHeaderSize = 8

	// ResponseHeaderSize is the u32 payload size prefix.
	ResponseHeaderSize = 4

	// MaxPayload bounds the size any frame may announce.
	MaxPayload = 64 << 20
)

// RequestHeader leads every request. Integers are in host byte order.
type RequestHeader struct {
	Size    uint32
	Version uint16
	Flags   uint16
}

// Frame wraps an encoded payload in a request envelope. Payloads over
// MaxPayload are refused so the size field always matches.
func Frame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, invalidArgf("request payload of %d bytes exceeds %d", len(payload), MaxPayload)
	}
	buf := make([]byte, RequestHeaderSize+len(payload))
	binary.NativeEndian.PutUint32(buf[0:], uint32(len(payload)))
	binary.NativeEndian.PutUint16(buf[4:], ProtoVersion)
	binary.NativeEndian.PutUint16(buf[6:], FlagClient)
	copy(buf[RequestHeaderSize:], payload)
	return buf, nil
}

// ReadRequestFrame reads one request envelope, for servers.
func ReadRequestFrame(r io.Reader) (RequestHeader, []byte, error) {
	var raw [RequestHeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return RequestHeader{}, nil, shortRead("request header", err)
	}
	hdr := RequestHeader{
		Size:    binary.NativeEndian.Uint32(raw[0:]),
		Version: binary.NativeEndian.Uint16(raw[4:]),
		Flags:   binary.NativeEndian.Uint16(raw[6:]),
	}
	if hdr.Version != ProtoVersion {
		return hdr, nil, fmt.Errorf("%w: protocol version %d", ErrMalformed, hdr.Version)
	}
	payload, err := readPayload(r, hdr.Size)
	return hdr, payload, err
}

// WriteResponseFrame writes the size prefix and payload in one write.
func WriteResponseFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return invalidArgf("response payload of %d bytes exceeds %d", len(payload), MaxPayload)
	}
	buf := make([]byte, ResponseHeaderSize+len(payload))
	binary.NativeEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[ResponseHeaderSize:], payload)
	return writeFull(w, buf)
}

// ReadResponseFrame reads the 4-byte size prefix and then exactly that many
// payload bytes.
func ReadResponseFrame(r io.Reader) ([]byte, error) {
	var raw [ResponseHeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, shortRead("response size", err)
	}
	return readPayload(r, binary.NativeEndian.Uint32(raw[:]))
}

// Unframe splits a buffered response envelope into its payload. Bytes past
// the declared size are left alone.
func Unframe(raw []byte) (uint32, []byte, error) {
	if len(raw) < ResponseHeaderSize {
		return 0, nil, truncatedf("response size prefix is %d bytes", len(raw))
	}
	size := binary.NativeEndian.Uint32(raw)
	rest := raw[ResponseHeaderSize:]
	if uint64(len(rest)) < uint64(size) {
		return size, nil, truncatedf("response declares %d bytes, %d available", size, len(rest))
	}
	return size, rest[:size], nil
}

func readPayload(r io.Reader, size uint32) ([]byte, error) {
	if size > MaxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes", ErrMalformed, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, shortRead("payload", err)
	}
	return payload, nil
}

func writeFull(w io.Writer, buf []byte) error {
	n, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("%w: write: %w", ErrTransport, err)
	}
	if n < len(buf) {
		return fmt.Errorf("%w: short write, %d of %d bytes", ErrTransport, n, len(buf))
	}
	return nil
}

// shortRead classifies a read failure. A stream ending early is a truncated
// message; anything else is the connection failing.
func shortRead(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w: %s: %v", ErrTransport, ErrTruncated, what, err)
	}
	return fmt.Errorf("%w: reading %s: %w", ErrTransport, what, err)
}
