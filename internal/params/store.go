package params

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"golang.org/x/exp/slices"
)

// Change is published to subscribers after a value changes.
type Change struct {
	ID   ID
	Name string
	Old  int
	New  int
}

// Store is a key/value view over a Schema. It is not safe for concurrent
// mutation; the session layer serializes access.
type Store struct {
	schema    *Schema
	values    []int
	text      map[string]string
	listeners map[int]func(Change)
	nextSub   int
}

// NewStore returns a store seeded with every parameter's default.
func NewStore(schema *Schema) *Store {
	s := &Store{
		schema: schema,
		values: make([]int, schema.Len()),
		text:   make(map[string]string),
	}
	for i, d := range schema.defs {
		s.values[i] = d.Default
	}
	return s
}

func (s *Store) Schema() *Schema { return s.schema }

func (s *Store) Get(id ID) int { return s.values[id] }

// GetByName returns the value of name, or def if the key is unknown.
func (s *Store) GetByName(name string, def int) int {
	id, ok := s.schema.Lookup(name)
	if !ok {
		return def
	}
	return s.values[id]
}

func (s *Store) Min(id ID) int { return s.schema.defs[id].Min }

func (s *Store) Max(id ID) int { return s.schema.defs[id].Max }

// Set is the editor write path: immutable parameters and out-of-range
// values are rejected.
func (s *Store) Set(id ID, v int) error {
	d := s.schema.defs[id]
	if !d.Mutable {
		return fmt.Errorf("%w: %s", ErrImmutable, d.Name)
	}
	if v < d.Min || v > d.Max {
		return fmt.Errorf("%w: %s=%d not in [%d, %d]", ErrOutOfRange, d.Name, v, d.Min, d.Max)
	}
	s.write(id, v)
	return nil
}

func (s *Store) SetByName(name string, v int) error {
	id, ok := s.schema.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, name)
	}
	return s.Set(id, v)
}

// Put is the codec write path: it ignores mutability and clamps into range.
func (s *Store) Put(id ID, v int) {
	s.write(id, s.schema.Clamp(id, v))
}

func (s *Store) write(id ID, v int) {
	old := s.values[id]
	s.values[id] = v
	if old == v || len(s.listeners) == 0 {
		return
	}
	c := Change{ID: id, Name: s.schema.defs[id].Name, Old: old, New: v}
	for _, k := range s.subscriberKeys() {
		s.listeners[k](c)
	}
}

func (s *Store) subscriberKeys() []int {
	keys := make([]int, 0, len(s.listeners))
	for k := range s.listeners {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// OnChange registers fn for every subsequent value change. The returned
// function removes the subscription.
func (s *Store) OnChange(fn func(Change)) (cancel func()) {
	if s.listeners == nil {
		s.listeners = make(map[int]func(Change))
	}
	k := s.nextSub
	s.nextSub++
	s.listeners[k] = fn
	return func() { delete(s.listeners, k) }
}

func (s *Store) Text(key string) string { return s.text[key] }

func (s *Store) SetText(key, v string) { s.text[key] = v }

// Randomize draws a new value within range for every mutable parameter
// whose name starts with prefix and returns the names it touched. Changes
// are published like any other Set.
func (s *Store) Randomize(r *rand.Rand, prefix string) []string {
	var touched []string
	for i, d := range s.schema.defs {
		if !d.Mutable || !strings.HasPrefix(d.Name, prefix) {
			continue
		}
		s.write(ID(i), d.Min+r.Intn(d.Max-d.Min+1))
		touched = append(touched, d.Name)
	}
	return touched
}

// Each visits parameters in schema order.
func (s *Store) Each(fn func(id ID, name string, v int)) {
	for i, d := range s.schema.defs {
		fn(ID(i), d.Name, s.values[i])
	}
}

// Clone copies values and text; subscriptions are not copied.
func (s *Store) Clone() *Store {
	c := &Store{
		schema: s.schema,
		values: append([]int(nil), s.values...),
		text:   make(map[string]string, len(s.text)),
	}
	for k, v := range s.text {
		c.text[k] = v
	}
	return c
}

// Diff lists keys whose values differ between s and o, looked up by name so
// stores over different schemas can be compared. Text keys are included.
func (s *Store) Diff(o *Store) []string {
	var out []string
	for i, d := range s.schema.defs {
		id, ok := o.schema.Lookup(d.Name)
		if !ok || o.values[id] != s.values[i] {
			out = append(out, d.Name)
		}
	}
	for k, v := range s.text {
		if o.text[k] != v {
			out = append(out, k)
		}
	}
	return out
}

// Values returns a name -> value snapshot.
func (s *Store) Values() map[string]int {
	m := make(map[string]int, len(s.values))
	for i, d := range s.schema.defs {
		m[d.Name] = s.values[i]
	}
	return m
}

// Load applies a name -> value map through Put. Unknown names are returned
// rather than applied.
func (s *Store) Load(values map[string]int) (unknown []string) {
	for name, v := range values {
		id, ok := s.schema.Lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		s.Put(id, v)
	}
	slices.Sort(unknown)
	return unknown
}

type storeJSON struct {
	Text   map[string]string `json:"text,omitempty"`
	Values map[string]int    `json:"values"`
}

func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(storeJSON{Text: s.text, Values: s.Values()})
}

// UnmarshalInto decodes JSON produced by MarshalJSON into a store over schema.
func UnmarshalInto(schema *Schema, data []byte) (*Store, []string, error) {
	var raw storeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	s := NewStore(schema)
	unknown := s.Load(raw.Values)
	for k, v := range raw.Text {
		s.SetText(k, v)
	}
	return s, unknown, nil
}
