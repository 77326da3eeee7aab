// Copyright 2026 CAP Contributors

package capz

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(BackendMock, 1024)
	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("expected %d bytes, got %d", HeaderSize, buf.Len())
	}

	parsed, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Version != Version || parsed.Backend != BackendMock || parsed.PayloadLen != 1024 {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestContainerRoundTrip(t *testing.T) {
	payload := []byte("test payload data")
	c := New(BackendZkVM, payload)

	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		t.Fatal(err)
	}

	parsed, err := Read(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Header.Backend != BackendZkVM || !bytes.Equal(parsed.Payload, payload) {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestInvalidMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], "XXXX")
	_, err := ReadHeader(bytes.NewReader(buf))
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], 0x9999)
	_, err := ReadHeader(bytes.NewReader(buf))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestInvalidBackend(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	buf[6] = 99
	_, err := ReadHeader(bytes.NewReader(buf))
	if !errors.Is(err, ErrInvalidBackend) {
		t.Fatalf("expected ErrInvalidBackend, got %v", err)
	}
}

func TestReservedNonZero(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	buf[7] = 1
	_, err := ReadHeader(bytes.NewReader(buf))
	if !errors.Is(err, ErrReservedNonZero) {
		t.Fatalf("expected ErrReservedNonZero, got %v", err)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint32(buf[72:76], 100_000_001)
	_, err := ReadHeader(bytes.NewReader(buf))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestPayloadExactlyAtLimitAccepted(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint32(buf[72:76], 100_000_000)
	h, err := ReadHeader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("expected payload_len == max to be accepted, got %v", err)
	}
	if h.PayloadLen != 100_000_000 {
		t.Fatalf("unexpected payload len: %d", h.PayloadLen)
	}
}
