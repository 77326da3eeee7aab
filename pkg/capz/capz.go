// Copyright 2026 CAP Contributors
//
// CAPZ Container Format
//
// Binary envelope for proof payloads. 78-byte fixed header, little-endian.
//
//	magic[4]        = "CAPZ"
//	version[2]      = 0x0002 (u16 LE)
//	backend[1]      = 0=mock, 1=zkvm, 2=halo2
//	reserved[1]     = 0x00
//	vk_hash[32]     = verification key hash (zeros if N/A)
//	params_hash[32] = params hash (zeros if N/A)
//	payload_len[4]  = u32 LE
//	reserved2[2]    = 0x0000
//	payload[payload_len]

package capz

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var Magic = [4]byte{'C', 'A', 'P', 'Z'}

const (
	Version    uint16 = 0x0002
	HeaderSize        = 78
	MaxPayload        = 100_000_000
)

// Backend identifies the proof payload's origin.
type Backend uint8

const (
	BackendMock  Backend = 0
	BackendZkVM  Backend = 1
	BackendHalo2 Backend = 2
)

func (b Backend) String() string {
	switch b {
	case BackendMock:
		return "mock"
	case BackendZkVM:
		return "zkvm"
	case BackendHalo2:
		return "halo2"
	default:
		return "unknown"
	}
}

func backendFromByte(v byte) (Backend, error) {
	switch v {
	case 0:
		return BackendMock, nil
	case 1:
		return BackendZkVM, nil
	case 2:
		return BackendHalo2, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidBackend, v)
	}
}

// Parse rejection errors, in the order the header is read.
var (
	ErrInvalidMagic       = errors.New("capz: invalid magic bytes")
	ErrUnsupportedVersion = errors.New("capz: unsupported version")
	ErrInvalidBackend     = errors.New("capz: invalid backend")
	ErrReservedNonZero    = errors.New("capz: reserved byte is non-zero")
	ErrPayloadTooLarge    = errors.New("capz: payload length too large")
)

// Header is the fixed 78-byte CAPZ header.
type Header struct {
	Version    uint16
	Backend    Backend
	VKHash     [32]byte
	ParamsHash [32]byte
	PayloadLen uint32
}

// NewHeader builds a header with zeroed key/param hashes.
func NewHeader(backend Backend, payloadLen uint32) Header {
	return Header{Version: Version, Backend: backend, PayloadLen: payloadLen}
}

// NewHeaderWithHashes builds a header carrying verification-key and
// parameter hashes.
func NewHeaderWithHashes(backend Backend, vkHash, paramsHash [32]byte, payloadLen uint32) Header {
	return Header{Version: Version, Backend: backend, VKHash: vkHash, ParamsHash: paramsHash, PayloadLen: payloadLen}
}

// ReadHeader parses a header from r, rejecting in the exact order the
// layout is read: magic, version, backend, reserved byte, payload length.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("capz: read header: %w", err)
	}

	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return Header{}, ErrInvalidMagic
	}

	version := binary.LittleEndian.Uint16(buf[4:6])
	if version != Version {
		return Header{}, fmt.Errorf("%w: 0x%04x (expected 0x%04x)", ErrUnsupportedVersion, version, Version)
	}

	backend, err := backendFromByte(buf[6])
	if err != nil {
		return Header{}, err
	}

	if buf[7] != 0 {
		return Header{}, fmt.Errorf("%w: %d", ErrReservedNonZero, buf[7])
	}

	var h Header
	h.Version = version
	h.Backend = backend
	copy(h.VKHash[:], buf[8:40])
	copy(h.ParamsHash[:], buf[40:72])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[72:76])

	if h.PayloadLen > MaxPayload {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.PayloadLen)
	}

	return h, nil
}

// Write encodes the header into exactly HeaderSize bytes, little-endian,
// reserved bytes zeroed.
func (h Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	buf[6] = byte(h.Backend)
	buf[7] = 0
	copy(buf[8:40], h.VKHash[:])
	copy(buf[40:72], h.ParamsHash[:])
	binary.LittleEndian.PutUint32(buf[72:76], h.PayloadLen)
	buf[76] = 0
	buf[77] = 0

	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("capz: write header: %w", err)
	}
	return nil
}

// Container is a full CAPZ envelope: header plus payload.
type Container struct {
	Header  Header
	Payload []byte
}

// New builds a container with zeroed key/param hashes.
func New(backend Backend, payload []byte) Container {
	return Container{Header: NewHeader(backend, uint32(len(payload))), Payload: payload}
}

// NewWithHashes builds a container carrying verification-key and parameter
// hashes.
func NewWithHashes(backend Backend, vkHash, paramsHash [32]byte, payload []byte) Container {
	return Container{
		Header:  NewHeaderWithHashes(backend, vkHash, paramsHash, uint32(len(payload))),
		Payload: payload,
	}
}

// Read parses a full container: header then exactly payload_len payload
// bytes.
func Read(r io.Reader) (Container, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return Container{}, err
	}
	payload := make([]byte, header.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Container{}, fmt.Errorf("capz: read payload: %w", err)
	}
	return Container{Header: header, Payload: payload}, nil
}

// Write encodes header then payload to w.
func (c Container) Write(w io.Writer) error {
	if err := c.Header.Write(w); err != nil {
		return err
	}
	if _, err := w.Write(c.Payload); err != nil {
		return fmt.Errorf("capz: write payload: %w", err)
	}
	return nil
}

// TotalSize returns the header size plus the payload length.
func (c Container) TotalSize() int {
	return HeaderSize + len(c.Payload)
}
