package proto

import (
	"errors"
	"fmt"
)

const (
	ProtocolVersion    = 1
	MinProtocolVersion = 1
	MaxProtocolVersion = 1

	// MaxEnvelopeSize bounds a single versioned action payload.
	MaxEnvelopeSize = 64 << 10
)

var (
	ErrTruncated          = errors.New("truncated input")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrInvalidTag         = errors.New("invalid tag")
	ErrCountOverflow      = errors.New("count exceeds limit")
	ErrTrailingBytes      = errors.New("trailing bytes")
	ErrTooLarge           = errors.New("payload too large")
)

// Envelope is the versioned action header `[version][opcode][payload...]`.
type Envelope struct {
	Version uint8
	Opcode  uint8
	Payload []byte
}

func EncodeEnvelope(opcode uint8, payload []byte) ([]byte, error) {
	if len(payload)+2 > MaxEnvelopeSize {
		return nil, ErrTooLarge
	}
	out := make([]byte, 0, len(payload)+2)
	out = append(out, ProtocolVersion, opcode)
	out = append(out, payload...)
	return out, nil
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) < 2 {
		return Envelope{}, ErrTruncated
	}
	if len(b) > MaxEnvelopeSize {
		return Envelope{}, ErrTooLarge
	}
	v := b[0]
	if v < MinProtocolVersion || v > MaxProtocolVersion {
		return Envelope{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	payload := make([]byte, len(b)-2)
	copy(payload, b[2:])
	return Envelope{Version: v, Opcode: b[1], Payload: payload}, nil
}

// StripVersionCompat removes a leading protocol version byte when one is
// present and followed by more bytes; legacy unversioned payloads pass through.
func StripVersionCompat(b []byte) []byte {
	if len(b) > 1 && b[0] >= MinProtocolVersion && b[0] <= MaxProtocolVersion {
		return b[1:]
	}
	return b
}
