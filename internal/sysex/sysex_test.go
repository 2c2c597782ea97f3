package sysex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sized(n int, header ...byte) []byte {
	msg := make([]byte, n)
	msg[0] = Start
	copy(msg[1:], header)
	msg[n-1] = End
	return msg
}

func TestRecognizeExactLength(t *testing.T) {
	single := Shape{ID: "x/single", Length: 12, Header: Header(0x40, 0x00, 0x20)}
	bank := Shape{ID: "x/bank", Length: 20, Header: Header(0x40, 0x00, 0x21)}
	r := NewRecognizer(single, bank)

	id, ok := r.Recognize(sized(12, 0x40, 0x00, 0x20))
	require.True(t, ok)
	assert.Equal(t, FormatID("x/single"), id)

	id, ok = r.Recognize(sized(20, 0x40, 0x00, 0x21))
	require.True(t, ok)
	assert.Equal(t, FormatID("x/bank"), id)

	_, ok = r.Recognize(sized(11, 0x40, 0x00, 0x20))
	assert.False(t, ok)
	_, ok = r.Recognize(sized(13, 0x40, 0x00, 0x20))
	assert.False(t, ok)
}

func TestRecognizeRejectsCorruptHeader(t *testing.T) {
	r := NewRecognizer(Shape{ID: "x", Length: 8, Header: Header(0x41, 0x10)})
	_, ok := r.Recognize(sized(8, 0x41, 0x11))
	assert.False(t, ok)

	msg := sized(8, 0x41, 0x10)
	msg[7] = 0x00
	_, ok = r.Recognize(msg)
	assert.False(t, ok)
}

func TestRecognizeMaskedChannel(t *testing.T) {
	s := Shape{ID: "k", Length: 6, Header: []Match{
		{Pos: 1, Value: 0x40},
		{Pos: 2, Value: 0x00, Mask: 0xF0},
	}}
	assert.True(t, s.Matches(sized(6, 0x40, 0x0B)))
	assert.False(t, s.Matches(sized(6, 0x40, 0x1B)))
}

func TestFirstShapeWins(t *testing.T) {
	loose := Shape{ID: "loose", Length: 6, Header: Header(0x7E)}
	strict := Shape{ID: "strict", Length: 6, Header: Header(0x7E, 0x01)}
	id, ok := NewRecognizer(loose, strict).Recognize(sized(6, 0x7E, 0x01))
	require.True(t, ok)
	assert.Equal(t, FormatID("loose"), id)
}

func TestValidateAndSplit(t *testing.T) {
	assert.NoError(t, Validate(Frame(0x41, 0x10)))
	assert.Error(t, Validate([]byte{0xF0, 0x80, 0xF7}))
	assert.Error(t, Validate([]byte{0x90, 0xF7}))
	assert.Error(t, Validate([]byte{0xF0}))

	blob := append(Frame(0x01, 0x02), Frame(0x03)...)
	blob = append(blob, 0x99)
	parts := Split(blob)
	require.Len(t, parts, 2)
	assert.Equal(t, []byte{0xF0, 0x03, 0xF7}, parts[1])
}

func TestCheckLength(t *testing.T) {
	err := CheckLength("kawai/single", []byte{1, 2}, 3)
	assert.True(t, errors.Is(err, ErrLengthMismatch))
	assert.NoError(t, CheckLength("x", []byte{1}, 1))
}

func TestHexAndDeviceError(t *testing.T) {
	assert.Equal(t, "F0 41 F7", Hex([]byte{0xF0, 0x41, 0xF7}))

	var err error = &DeviceError{Device: "kawai", Code: 0x42, Reason: "write protected"}
	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, err.Error(), "write protected")
}
