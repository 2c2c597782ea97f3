package patch

import (
	"fmt"
	"log"
	"strings"

	"patchmcp/internal/bitfield"
	"patchmcp/internal/params"
	"patchmcp/internal/signed"
	"patchmcp/internal/sysex"
)

// Codec encodes and decodes one payload layout.
type Codec struct {
	name   string
	schema *params.Schema
	table  *Table
	ids    [][]params.ID
}

func New(name string, schema *params.Schema, table *Table) (*Codec, error) {
	if err := table.validate(schema); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	c := &Codec{name: name, schema: schema, table: table, ids: make([][]params.ID, len(table.Entries))}
	for i, e := range table.Entries {
		if e.Kind == Text {
			continue
		}
		c.ids[i] = make([]params.ID, len(e.Names))
		for j, n := range e.Names {
			c.ids[i][j] = schema.MustLookup(n)
		}
	}
	return c, nil
}

// MustNew is New for package-level vendor tables.
func MustNew(name string, schema *params.Schema, table *Table) *Codec {
	c, err := New(name, schema, table)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Codec) Name() string            { return c.name }
func (c *Codec) Schema() *params.Schema { return c.schema }
func (c *Codec) Table() *Table           { return c.table }
func (c *Codec) Size() int               { return c.table.Size }

// Decode parses a payload into a fresh store.
func (c *Codec) Decode(payload []byte) (*params.Store, error) {
	s := params.NewStore(c.schema)
	if err := c.DecodeInto(s, payload); err != nil {
		return nil, err
	}
	return s, nil
}

// DecodeInto overwrites s with the values held in payload. Shadow values are
// written on every parse whether or not their selector is active.
func (c *Codec) DecodeInto(s *params.Store, payload []byte) error {
	if err := sysex.CheckLength(c.name, payload, c.table.Size); err != nil {
		return err
	}
	for i, e := range c.table.Entries {
		ids := c.ids[i]
		switch e.Kind {
		case Plain, Packed:
			for j, raw := range bitfield.Unpack(payload, e.Byte, e.Layout) {
				s.Put(ids[j], signed.Decode(e.transform(j), raw))
			}
		case Unified:
			u := bitfield.Unified{Layout: e.Layout, Skip: e.Skip}
			s.Put(ids[0], u.Unpack(payload, e.Byte))
		case Collapsed:
			v := bitfield.Unpack(payload, e.Byte, e.Layout)
			enable, index := v[0], v[1]
			s.Put(ids[1], index+1)
			if enable != 0 {
				s.Put(ids[0], index+1)
			} else {
				s.Put(ids[0], 0)
			}
		case Split:
			s.Put(ids[0], signed.DecodeSplit(payload[e.Byte], payload[e.Byte+1], e.Bias))
		case Wide:
			raw := 0
			for k := 0; k < e.Length; k++ {
				raw = raw<<7 | int(payload[e.Byte+k]&0x7F)
			}
			s.Put(ids[0], signed.Decode(e.transform(0), raw))
		case Text:
			s.SetText(e.Names[0], decodeText(payload[e.Byte:e.Byte+e.Length]))
		case Stream:
			vals, err := bitfield.ReadStream(payload[e.Byte:e.Byte+e.Span()], e.Widths)
			if err != nil {
				return fmt.Errorf("%s: %w", c.name, err)
			}
			for j, raw := range vals {
				s.Put(ids[j], signed.Decode(e.transform(j), raw))
			}
		}
	}
	return nil
}

// Encode emits s as a payload. The returned overflow mask flags payload
// positions that hold the MSB half of a split pair, for checksums that
// weigh those bytes.
func (c *Codec) Encode(s *params.Store) ([]byte, []bool) {
	s = c.Adopt(s)
	payload := make([]byte, c.table.Size)
	overflow := make([]bool, c.table.Size)
	for i, e := range c.table.Entries {
		if c.skip(e) {
			continue
		}
		ids := c.ids[i]
		switch e.Kind {
		case Plain, Packed:
			vals := make([]int, len(ids))
			for j, id := range ids {
				vals[j] = signed.Encode(e.transform(j), s.Get(id))
			}
			bitfield.Pack(payload, e.Byte, e.Layout, vals)
		case Unified:
			u := bitfield.Unified{Layout: e.Layout, Skip: e.Skip}
			u.Pack(payload, e.Byte, s.Get(ids[0]))
		case Collapsed:
			sel := s.Get(ids[0])
			if sel == 0 {
				bitfield.Pack(payload, e.Byte, e.Layout, []int{0, s.Get(ids[1]) - 1})
			} else {
				bitfield.Pack(payload, e.Byte, e.Layout, []int{1, sel - 1})
			}
		case Split:
			msb, lsb := signed.EncodeSplit(s.Get(ids[0]), e.Bias)
			payload[e.Byte], payload[e.Byte+1] = msb, lsb
			overflow[e.Byte] = true
		case Wide:
			raw := signed.Encode(e.transform(0), s.Get(ids[0]))
			for k := e.Length - 1; k >= 0; k-- {
				payload[e.Byte+k] = byte(raw & 0x7F)
				raw >>= 7
			}
		case Text:
			copy(payload[e.Byte:], EncodeText(s.Text(e.Names[0]), e.Length, e.Legal, e.Upper))
		case Stream:
			vals := make([]int, len(ids))
			for j, id := range ids {
				vals[j] = signed.Encode(e.transform(j), s.Get(id))
			}
			// widths fit by construction, so WriteStream cannot fail
			data, _ := bitfield.WriteStream(e.Widths, vals)
			copy(payload[e.Byte:], data)
		}
	}
	return payload, overflow
}

// Overflow is the mask Encode returns, derived from the table alone so a
// received payload can be checked with the same weighting.
func (c *Codec) Overflow() []bool {
	out := make([]bool, c.table.Size)
	for _, e := range c.table.Entries {
		if e.Kind == Split && !c.skip(e) {
			out[e.Byte] = true
		}
	}
	return out
}

func (c *Codec) skip(e Entry) bool {
	for _, n := range e.Names {
		if c.table.excluded(n) {
			return true
		}
	}
	return false
}

// Adopt returns s when it was built over this codec's schema. Otherwise the
// values are copied by name into a fresh store; keys this layout does not
// know are logged and skipped.
func (c *Codec) Adopt(s *params.Store) *params.Store {
	if s.Schema() == c.schema {
		return s
	}
	out := params.NewStore(c.schema)
	s.Each(func(_ params.ID, name string, v int) {
		id, ok := c.schema.Lookup(name)
		if !ok {
			if !c.table.excluded(name) {
				log.Printf("[%s] %v: %q, skipping", c.name, sysex.ErrUnknownParameterKey, name)
			}
			return
		}
		out.Put(id, v)
	})
	for _, e := range c.table.Entries {
		if e.Kind == Text {
			out.SetText(e.Names[0], s.Text(e.Names[0]))
		}
	}
	return out
}

// Bytes returns the payload bytes carrying name as they would be emitted
// for s, along with the entry's payload offset. Sibling fields sharing the
// bytes are included.
func (c *Codec) Bytes(s *params.Store, name string) (int, []byte, error) {
	e, ok := c.table.Address(name)
	if !ok || c.table.excluded(name) {
		return 0, nil, fmt.Errorf("%s: %w: %q", c.name, sysex.ErrUnknownParameterKey, name)
	}
	payload, _ := c.Encode(s)
	out := append([]byte(nil), payload[e.Byte:e.Byte+e.Span()]...)
	return e.Byte, out, nil
}

// EncodeText normalizes a name for a fixed-length field: optionally upper
// cased, characters outside legal replaced by spaces, truncated and space
// padded to length.
func EncodeText(s string, length int, legal string, upper bool) []byte {
	if upper {
		s = strings.ToUpper(s)
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = ' '
		if i < len(s) && legalChar(s[i], legal) {
			out[i] = s[i]
		}
	}
	return out
}

func legalChar(b byte, legal string) bool {
	if legal == "" {
		return b >= 0x20 && b < 0x7F
	}
	return strings.IndexByte(legal, b) >= 0
}

func decodeText(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}
