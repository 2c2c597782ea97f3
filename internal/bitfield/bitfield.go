// Package bitfield packs and unpacks groups of sub-byte fields.
//
// Fields are described most-significant-first: within a byte the first field
// occupies the highest bits, and a field that does not fit below its
// predecessor starts the next byte.
package bitfield

import (
	"errors"
	"fmt"
)

// Field is one sub-field: Width bits starting at bit Shift of byte Byte,
// relative to the position a Layout is applied at.
type Field struct {
	Byte  int
	Shift int
	Width int
}

func (f Field) mask() int { return 1<<uint(f.Width) - 1 }

// Layout is an ordered group of fields.
type Layout []Field

// FromOffsets builds a Layout from parallel bit offset and width arrays.
// offsets[i] is the right shift of field i within its byte.
func FromOffsets(offsets, widths []int) (Layout, error) {
	if len(offsets) != len(widths) {
		return nil, fmt.Errorf("bitfield: %d offsets for %d widths", len(offsets), len(widths))
	}
	if len(offsets) == 0 {
		return nil, errors.New("bitfield: empty layout")
	}
	l := make(Layout, len(offsets))
	b := 0
	for i := range offsets {
		o, w := offsets[i], widths[i]
		if w < 1 || w > 8 || o < 0 || o+w > 8 {
			return nil, fmt.Errorf("bitfield: field %d (offset %d, width %d) does not fit a byte", i, o, w)
		}
		if i > 0 && o+w > offsets[i-1] {
			b++
		}
		l[i] = Field{Byte: b, Shift: o, Width: w}
	}
	return l, nil
}

// MustLayout is FromOffsets for static tables.
func MustLayout(offsets, widths []int) Layout {
	l, err := FromOffsets(offsets, widths)
	if err != nil {
		panic(err)
	}
	return l
}

// Span is the number of bytes the layout touches.
func (l Layout) Span() int {
	n := 0
	for _, f := range l {
		if f.Byte+1 > n {
			n = f.Byte + 1
		}
	}
	return n
}

// Unpack returns one value per field, read from data starting at pos.
func Unpack(data []byte, pos int, l Layout) []int {
	out := make([]int, len(l))
	for i, f := range l {
		out[i] = int(data[pos+f.Byte]) >> uint(f.Shift) & f.mask()
	}
	return out
}

// Pack writes values into data at pos. Each value is masked to its width;
// bits outside the layout's fields are left untouched.
func Pack(data []byte, pos int, l Layout, values []int) {
	for i, f := range l {
		if i >= len(values) {
			return
		}
		packField(data, pos, f, values[i])
	}
}

func packField(data []byte, pos int, f Field, v int) {
	m := f.mask()
	cur := int(data[pos+f.Byte])
	cur &^= m << uint(f.Shift)
	cur |= (v & m) << uint(f.Shift)
	data[pos+f.Byte] = byte(cur)
}

// Unified is a group of mutually exclusive flags collapsed into one
// selection index. Slots listed in Skip are not part of the group; they
// usually hold a sibling group's interleaved flags.
type Unified struct {
	Layout Layout
	Skip   []int
}

func (u Unified) skipped(i int) bool {
	for _, s := range u.Skip {
		if s == i {
			return true
		}
	}
	return false
}

// Slots is the number of selectable (non-skipped) slots.
func (u Unified) Slots() int {
	n := 0
	for i := range u.Layout {
		if !u.skipped(i) {
			n++
		}
	}
	return n
}

// Unpack returns k such that the k-th selectable slot is set, 0 if none.
// With several set slots the first in scan order wins; this is
// implementation-defined rather than an error.
func (u Unified) Unpack(data []byte, pos int) int {
	k := 0
	for i, f := range u.Layout {
		if u.skipped(i) {
			continue
		}
		k++
		if int(data[pos+f.Byte])>>uint(f.Shift)&f.mask() != 0 {
			return k
		}
	}
	return 0
}

// Pack writes a one-hot pattern selecting slot k (1-based); k == 0 or out
// of range clears every selectable slot.
func (u Unified) Pack(data []byte, pos int, k int) {
	n := 0
	for i, f := range u.Layout {
		if u.skipped(i) {
			continue
		}
		n++
		v := 0
		if n == k {
			v = 1
		}
		packField(data, pos, f, v)
	}
}
