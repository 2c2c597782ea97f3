// Package nibble converts 8-bit payloads to and from the 7-bit-safe wire
// encodings used inside SysEx messages.
package nibble

import (
	"bytes"
	"fmt"

	"github.com/dgryski/go-bitstream"
)

// Nibbleize splits every byte into two wire bytes, high nibble first.
func Nibbleize(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		out = append(out, b>>4, b&0x0F)
	}
	return out
}

// Denibbleize joins pairs of wire bytes (high, low) back into bytes. Bits
// above the low nibble of each wire byte are ignored.
func Denibbleize(wire []byte) ([]byte, error) {
	if len(wire)%2 != 0 {
		return nil, fmt.Errorf("nibble: odd wire length %d", len(wire))
	}
	out := make([]byte, len(wire)/2)
	for i := range out {
		out[i] = (wire[2*i]&0x0F)<<4 | wire[2*i+1]&0x0F
	}
	return out, nil
}

// Packed7Len is the wire length of an n byte payload after Pack7.
func Packed7Len(n int) int {
	return (n*8 + 6) / 7
}

// Pack7 re-chunks an 8-bit payload into 7-bit wire bytes, most significant
// bit first. The last wire byte is zero padded.
func Pack7(data []byte) []byte {
	n := Packed7Len(len(data))
	padded := append(append([]byte(nil), data...), 0)
	r := bitstream.NewReader(bytes.NewReader(padded))
	out := make([]byte, n)
	for i := range out {
		v, err := r.ReadBits(7)
		if err != nil {
			// the padding byte guarantees enough bits
			panic(fmt.Sprintf("nibble: pack7 short read: %v", err))
		}
		out[i] = byte(v)
	}
	return out
}

// Unpack7 is the inverse of Pack7, returning the first n payload bytes.
func Unpack7(wire []byte, n int) ([]byte, error) {
	if len(wire) < Packed7Len(n) {
		return nil, fmt.Errorf("nibble: need %d packed bytes for %d, have %d", Packed7Len(n), n, len(wire))
	}
	buf := bytes.NewBuffer(nil)
	w := bitstream.NewWriter(buf)
	for _, b := range wire[:Packed7Len(n)] {
		if err := w.WriteBits(uint64(b&0x7F), 7); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(bitstream.Zero); err != nil {
		return nil, err
	}
	return buf.Bytes()[:n], nil
}
