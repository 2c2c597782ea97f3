// Package patch drives parse and emit for one patch payload from an ordered
// parameter table.
package patch

import (
	"fmt"

	"patchmcp/internal/bitfield"
	"patchmcp/internal/params"
	"patchmcp/internal/signed"
)

// Kind selects how an Entry maps parameters onto payload bytes.
type Kind int

const (
	// Plain is one parameter in one field.
	Plain Kind = iota
	// Packed is several parameters sharing the fields of one Layout.
	Packed
	// Unified is one parameter selecting among one-hot flags.
	Unified
	// Collapsed is a selector (0 = off) plus the shadow value that keeps the
	// last selection while the selector is off. The layout holds an enable
	// field followed by an index field.
	Collapsed
	// Split is a signed byte carried as MSB (bit 7) and LSB (bits 0-6) in
	// two consecutive payload bytes.
	Split
	// Wide is one parameter spread over Length 7-bit bytes, most
	// significant first.
	Wide
	// Text is a fixed-length character field.
	Text
	// Stream is several parameters packed back to back as a bit stream
	// with no byte alignment.
	Stream
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Packed:
		return "packed"
	case Unified:
		return "unified"
	case Collapsed:
		return "collapsed"
	case Split:
		return "split"
	case Wide:
		return "wide"
	case Text:
		return "text"
	case Stream:
		return "stream"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Entry is one row of a parameter table.
type Entry struct {
	Kind   Kind
	Names  []string
	Byte   int
	Layout bitfield.Layout
	Skip   []int
	Widths []int
	// Transforms holds one transform per name; missing entries are Identity.
	Transforms []signed.Transform
	Bias       int
	Length     int
	Legal      string
	Upper      bool
}

// Span is the number of payload bytes the entry touches.
func (e Entry) Span() int {
	switch e.Kind {
	case Split:
		return 2
	case Wide, Text:
		return e.Length
	case Stream:
		return bitfield.StreamBytes(e.Widths)
	default:
		return e.Layout.Span()
	}
}

func (e Entry) transform(i int) signed.Transform {
	if i < len(e.Transforms) {
		return e.Transforms[i]
	}
	return nil
}

// Value is a whole-byte parameter at pos.
func Value(name string, pos int, t ...signed.Transform) Entry {
	return Field(name, pos, 0, 8, t...)
}

// Field is a single sub-byte parameter.
func Field(name string, pos, offset, width int, t ...signed.Transform) Entry {
	return Entry{
		Kind:       Plain,
		Names:      []string{name},
		Byte:       pos,
		Layout:     bitfield.MustLayout([]int{offset}, []int{width}),
		Transforms: chain(t),
	}
}

// Bits packs names into the fields described by offsets and widths.
func Bits(pos int, offsets, widths []int, names ...string) Entry {
	if len(names) != len(offsets) {
		panic(fmt.Sprintf("patch: %d names for %d fields", len(names), len(offsets)))
	}
	return Entry{
		Kind:   Packed,
		Names:  names,
		Byte:   pos,
		Layout: bitfield.MustLayout(offsets, widths),
	}
}

// With returns a copy of e with per-name transforms.
func (e Entry) With(t ...signed.Transform) Entry {
	e.Transforms = t
	return e
}

// OneHot collapses mutually exclusive flags into one selection parameter.
func OneHot(name string, pos int, offsets, widths, skip []int) Entry {
	return Entry{
		Kind:   Unified,
		Names:  []string{name},
		Byte:   pos,
		Layout: bitfield.MustLayout(offsets, widths),
		Skip:   skip,
	}
}

// Selector pairs a selector parameter with its shadow. The layout must hold
// exactly two fields: enable, then index. Index values are stored zero-based
// while selector and shadow use 1..N.
func Selector(selector, shadow string, pos int, offsets, widths []int) Entry {
	if len(offsets) != 2 {
		panic("patch: selector layout needs enable and index fields")
	}
	return Entry{
		Kind:   Collapsed,
		Names:  []string{selector, shadow},
		Byte:   pos,
		Layout: bitfield.MustLayout(offsets, widths),
	}
}

// SplitByte is a signed value stored as MSB/LSB wire bytes at pos, pos+1.
func SplitByte(name string, pos, bias int) Entry {
	return Entry{Kind: Split, Names: []string{name}, Byte: pos, Bias: bias}
}

// WideValue spreads name over n 7-bit bytes.
func WideValue(name string, pos, n int, t ...signed.Transform) Entry {
	return Entry{Kind: Wide, Names: []string{name}, Byte: pos, Length: n, Transforms: chain(t)}
}

// TextField is a fixed-length name. An empty legal set means printable ASCII.
func TextField(key string, pos, length int, legal string, upper bool) Entry {
	return Entry{Kind: Text, Names: []string{key}, Byte: pos, Length: length, Legal: legal, Upper: upper}
}

// StreamFields packs names back to back as a bit stream starting at pos.
func StreamFields(pos int, widths []int, names ...string) Entry {
	if len(names) != len(widths) {
		panic(fmt.Sprintf("patch: %d names for %d stream fields", len(names), len(widths)))
	}
	return Entry{Kind: Stream, Names: names, Byte: pos, Widths: widths}
}

func chain(t []signed.Transform) []signed.Transform {
	switch len(t) {
	case 0:
		return nil
	case 1:
		return t
	default:
		return []signed.Transform{signed.Chain(t)}
	}
}

// Table is the ordered parameter table of one payload.
type Table struct {
	Size    int
	Entries []Entry
	// Exclude names parameters that must never be emitted, such as derived
	// bank/number fields or UI-only selectors.
	Exclude []string
}

// Address returns the entry carrying name, for single-parameter sends.
func (t *Table) Address(name string) (Entry, bool) {
	for _, e := range t.Entries {
		for _, n := range e.Names {
			if n == name {
				return e, true
			}
		}
	}
	return Entry{}, false
}

func (t *Table) excluded(name string) bool {
	for _, n := range t.Exclude {
		if n == name {
			return true
		}
	}
	return false
}

// validate checks bounds and names. Overlapping entries are allowed: the
// table is ground truth even where vendor documentation is suspect.
func (t *Table) validate(schema *params.Schema) error {
	for i, e := range t.Entries {
		if e.Byte < 0 || e.Byte+e.Span() > t.Size {
			return fmt.Errorf("patch: entry %d (%s %v) outside payload of %d bytes", i, e.Kind, e.Names, t.Size)
		}
		if e.Kind == Text {
			continue
		}
		for _, n := range e.Names {
			if _, ok := schema.Lookup(n); !ok {
				return fmt.Errorf("patch: entry %d names unknown parameter %q", i, n)
			}
		}
	}
	return nil
}
