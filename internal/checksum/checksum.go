// Package checksum implements the vendor checksum algorithms used by the
// patch formats. All algorithms are computed over data[start:end].
package checksum

import "bytes"

// Algorithm is a checksum selected by vendor.
type Algorithm interface {
	// Size is the number of checksum bytes Compute returns.
	Size() int
	Compute(data []byte, start, end int) []byte
}

// Verify reports whether got matches the checksum of data[start:end].
func Verify(a Algorithm, data []byte, start, end int, got []byte) bool {
	return bytes.Equal(a.Compute(data, start, end), got)
}

// WordSum16 sums little-endian 16-bit words and subtracts the sum from a
// vendor constant. The result is emitted low byte first.
type WordSum16 struct {
	Constant uint16
}

func (WordSum16) Size() int { return 2 }

func (w WordSum16) Sum(data []byte, start, end int) uint16 {
	var sum uint16
	for i := start; i < end; i += 2 {
		word := uint16(data[i])
		if i+1 < end {
			word |= uint16(data[i+1]) << 8
		}
		sum += word
	}
	return sum
}

func (w WordSum16) Compute(data []byte, start, end int) []byte {
	c := w.Constant - w.Sum(data, start, end)
	return []byte{byte(c), byte(c >> 8)}
}

// TwosComplement7 is the 7-bit two's complement of the byte sum.
type TwosComplement7 struct{}

func (TwosComplement7) Size() int { return 1 }

func (TwosComplement7) Compute(data []byte, start, end int) []byte {
	sum := 0
	for _, b := range data[start:end] {
		sum += int(b)
	}
	return []byte{byte((128 - sum%128) & 0x7F)}
}

// Sum7 is the plain byte sum masked to 7 bits.
type Sum7 struct{}

func (Sum7) Size() int { return 1 }

func (Sum7) Compute(data []byte, start, end int) []byte {
	var sum byte
	for _, b := range data[start:end] {
		sum = (sum + b) & 0x7F
	}
	return []byte{sum}
}

// Weighted8 is the 8-bit two's complement of a byte sum in which positions
// flagged in Overflow count as byte*128. Those positions hold the MSB half
// of a split MSB/LSB pair. Overflow is indexed by absolute position in data.
type Weighted8 struct {
	Overflow []bool
}

func (Weighted8) Size() int { return 1 }

func (w Weighted8) Compute(data []byte, start, end int) []byte {
	sum := 0
	for i := start; i < end; i++ {
		v := int(data[i])
		if i < len(w.Overflow) && w.Overflow[i] {
			v *= 128
		}
		sum += v
	}
	return []byte{byte((256 - sum%256) & 0xFF)}
}
