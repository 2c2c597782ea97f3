// Package signed converts between stored display values and their wire
// representations.
package signed

// Transform maps a display value to its raw wire value and back.
type Transform interface {
	Encode(v int) int
	Decode(raw int) int
}

// Identity stores values unchanged.
type Identity struct{}

func (Identity) Encode(v int) int   { return v }
func (Identity) Decode(raw int) int { return raw }

// Bias stores v as v + Offset. A range [lo, hi] is stored from zero with
// Bias{Offset: -lo}.
type Bias struct {
	Offset int
}

func (b Bias) Encode(v int) int   { return v + b.Offset }
func (b Bias) Decode(raw int) int { return raw - b.Offset }

// Invert stores Max - v. Some firmware stores scales upside down.
type Invert struct {
	Max int
}

func (i Invert) Encode(v int) int   { return i.Max - v }
func (i Invert) Decode(raw int) int { return i.Max - raw }

// Twos stores a signed value in an n-bit two's complement field.
type Twos struct {
	Width int
}

func (t Twos) Encode(v int) int {
	return v & (1<<uint(t.Width) - 1)
}

func (t Twos) Decode(raw int) int {
	raw &= 1<<uint(t.Width) - 1
	if raw&(1<<uint(t.Width-1)) != 0 {
		return raw - 1<<uint(t.Width)
	}
	return raw
}

// Chain applies transforms left to right on Encode and right to left on
// Decode, so an Invert placed first is applied before any other transform
// and undone after all of them.
type Chain []Transform

func (c Chain) Encode(v int) int {
	for _, t := range c {
		v = t.Encode(v)
	}
	return v
}

func (c Chain) Decode(raw int) int {
	for i := len(c) - 1; i >= 0; i-- {
		raw = c[i].Decode(raw)
	}
	return raw
}

// Encode applies t, treating nil as Identity.
func Encode(t Transform, v int) int {
	if t == nil {
		return v
	}
	return t.Encode(v)
}

// Decode applies t, treating nil as Identity.
func Decode(t Transform, raw int) int {
	if t == nil {
		return raw
	}
	return t.Decode(raw)
}

// EncodeSplit stores v - bias as a signed byte split into an MSB wire byte
// (bit 7) and an LSB wire byte (bits 0-6).
func EncodeSplit(v, bias int) (msb, lsb byte) {
	b := byte(int8(v - bias))
	return b >> 7, b & 0x7F
}

// DecodeSplit reverses EncodeSplit: the two wire bytes are rejoined,
// sign extended as an 8-bit quantity, then offset by bias.
func DecodeSplit(msb, lsb byte, bias int) int {
	b := (msb&0x01)<<7 | lsb&0x7F
	return int(int8(b)) + bias
}
