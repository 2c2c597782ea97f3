package bitfield

import (
	"bytes"
	"fmt"

	"github.com/dgryski/go-bitstream"
)

// StreamBits is the total bit length of a stream of the given widths.
func StreamBits(widths []int) int {
	n := 0
	for _, w := range widths {
		n += w
	}
	return n
}

// StreamBytes is the byte length WriteStream produces for widths.
func StreamBytes(widths []int) int {
	return (StreamBits(widths) + 7) / 8
}

// ReadStream reads fields laid end to end, most significant bit first, with
// no byte alignment between them.
func ReadStream(data []byte, widths []int) ([]int, error) {
	if need := StreamBytes(widths); len(data) < need {
		return nil, fmt.Errorf("bitfield: stream needs %d bytes, have %d", need, len(data))
	}
	r := bitstream.NewReader(bytes.NewReader(data))
	out := make([]int, len(widths))
	for i, w := range widths {
		v, err := r.ReadBits(w)
		if err != nil {
			return nil, fmt.Errorf("bitfield: reading stream field %d: %w", i, err)
		}
		out[i] = int(v)
	}
	return out, nil
}

// WriteStream is the inverse of ReadStream. Values are masked to their
// widths and the final byte is zero padded.
func WriteStream(widths []int, values []int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	w := bitstream.NewWriter(buf)
	for i, width := range widths {
		v := 0
		if i < len(values) {
			v = values[i] & (1<<uint(width) - 1)
		}
		if err := w.WriteBits(uint64(v), width); err != nil {
			return nil, fmt.Errorf("bitfield: writing stream field %d: %w", i, err)
		}
	}
	if err := w.Flush(bitstream.Zero); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
