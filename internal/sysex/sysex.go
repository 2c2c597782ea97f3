// Package sysex holds the framing, recognition and error vocabulary shared
// by every patch format.
package sysex

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Start = 0xF0
	End   = 0xF7
)

var (
	ErrLengthMismatch      = errors.New("length mismatch")
	ErrUnrecognizedHeader  = errors.New("unrecognized header")
	ErrUnknownParameterKey = errors.New("unknown parameter key")
	// ErrChecksumMismatch is only returned when a caller asks for strict
	// parsing; by default received checksums are not enforced.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// DeviceError is a failure reported by the synthesizer itself, such as a
// write-protected memory or a missing card. It is never retried.
type DeviceError struct {
	Device string
	Code   byte
	Reason string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s reported write failure 0x%02X: %s", e.Device, e.Code, e.Reason)
}

// Frame wraps body in F0 ... F7.
func Frame(body ...byte) []byte {
	out := make([]byte, 0, len(body)+2)
	out = append(out, Start)
	out = append(out, body...)
	return append(out, End)
}

// Validate checks framing and that every data byte is 7-bit clean.
func Validate(msg []byte) error {
	if len(msg) < 2 {
		return errors.New("sysex: message too short")
	}
	if msg[0] != Start {
		return fmt.Errorf("sysex: expected start byte 0x%02X, got 0x%02X", Start, msg[0])
	}
	if msg[len(msg)-1] != End {
		return fmt.Errorf("sysex: expected end byte 0x%02X, got 0x%02X", End, msg[len(msg)-1])
	}
	for i := 1; i < len(msg)-1; i++ {
		if msg[i] > 0x7F {
			return fmt.Errorf("sysex: byte at position %d is > 127 (0x%02X)", i, msg[i])
		}
	}
	return nil
}

// CheckLength rejects a message whose length is not exactly want.
func CheckLength(format string, msg []byte, want int) error {
	if len(msg) != want {
		return fmt.Errorf("%s: %w: want %d bytes, got %d", format, ErrLengthMismatch, want, len(msg))
	}
	return nil
}

// Split cuts a blob holding several concatenated SysEx messages into
// individual messages. Bytes outside F0 ... F7 are dropped.
func Split(blob []byte) [][]byte {
	var out [][]byte
	start := -1
	for i, b := range blob {
		switch {
		case b == Start:
			start = i
		case b == End && start >= 0:
			out = append(out, blob[start:i+1])
			start = -1
		}
	}
	return out
}

// Hex formats a message as space separated upper-case hex pairs.
func Hex(msg []byte) string {
	return strings.TrimSpace(fmt.Sprintf("% X", msg))
}
