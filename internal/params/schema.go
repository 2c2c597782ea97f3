// Package params holds the typed parameter model edited by a patch session:
// an immutable Schema of parameter definitions and a Store of values.
package params

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKey = errors.New("unknown parameter key")
	ErrOutOfRange = errors.New("value out of range")
	ErrImmutable  = errors.New("parameter is immutable")
)

// ID is the interned index of a parameter inside its Schema.
type ID int

// Def describes one integer parameter.
type Def struct {
	Name    string `json:"name"`
	Min     int    `json:"min"`
	Max     int    `json:"max"`
	Default int    `json:"default"`
	// Mutable is false for derived fields such as bank and program number.
	Mutable bool `json:"mutable"`
}

// Schema is an ordered, read-only set of parameter definitions.
type Schema struct {
	defs  []Def
	index map[string]ID
}

// Range returns a mutable definition with the default at min.
func Range(name string, min, max int) Def {
	return Def{Name: name, Min: min, Max: max, Default: min, Mutable: true}
}

// Centered returns a mutable definition defaulting to zero (or min if zero is out of range).
func Centered(name string, min, max int) Def {
	d := Range(name, min, max)
	if min <= 0 && max >= 0 {
		d.Default = 0
	}
	return d
}

// Fixed returns an immutable definition.
func Fixed(name string, min, max int) Def {
	return Def{Name: name, Min: min, Max: max, Default: min}
}

// WithDefault returns a copy of d with a different default.
func (d Def) WithDefault(v int) Def {
	d.Default = v
	return d
}

func NewSchema(defs ...Def) (*Schema, error) {
	s := &Schema{
		defs:  make([]Def, 0, len(defs)),
		index: make(map[string]ID, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("parameter name must not be empty")
		}
		if _, dup := s.index[d.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", d.Name)
		}
		if d.Min > d.Max {
			return nil, fmt.Errorf("parameter %q: min %d > max %d", d.Name, d.Min, d.Max)
		}
		if d.Default < d.Min || d.Default > d.Max {
			return nil, fmt.Errorf("parameter %q: default %d outside [%d, %d]", d.Name, d.Default, d.Min, d.Max)
		}
		s.index[d.Name] = ID(len(s.defs))
		s.defs = append(s.defs, d)
	}
	return s, nil
}

// MustSchema is NewSchema for statically declared vendor tables.
func MustSchema(defs ...Def) *Schema {
	s, err := NewSchema(defs...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Len() int { return len(s.defs) }

func (s *Schema) Def(id ID) Def { return s.defs[id] }

func (s *Schema) Lookup(name string) (ID, bool) {
	id, ok := s.index[name]
	return id, ok
}

// MustLookup panics on unknown names; used while building static tables.
func (s *Schema) MustLookup(name string) ID {
	id, ok := s.index[name]
	if !ok {
		panic(fmt.Sprintf("params: unknown parameter %q", name))
	}
	return id
}

// Names returns parameter names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.defs))
	for i, d := range s.defs {
		names[i] = d.Name
	}
	return names
}

// Defs returns a copy of the definitions in schema order.
func (s *Schema) Defs() []Def {
	return append([]Def(nil), s.defs...)
}

// Clamp limits v to the declared range of id.
func (s *Schema) Clamp(id ID, v int) int {
	d := s.defs[id]
	switch {
	case v < d.Min:
		return d.Min
	case v > d.Max:
		return d.Max
	default:
		return v
	}
}
