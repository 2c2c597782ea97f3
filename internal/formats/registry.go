package formats

import (
	"fmt"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"patchmcp/internal/formats/clavia"
	"patchmcp/internal/formats/kawai"
	"patchmcp/internal/formats/roland"
	"patchmcp/internal/formats/waldorf"
	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/sysex"
)

// Registry holds every known format and recognizes incoming messages.
type Registry struct {
	formats map[string]Format
	shapes  map[sysex.FormatID]Format
	rec     *sysex.Recognizer
}

// New registers the built-in formats, all sharing opts.
func New(opts patch.Options) *Registry {
	return NewRegistry(
		kawai.NewSingle(opts),
		kawai.NewMulti(opts),
		roland.NewTone(opts),
		waldorf.NewSound(opts),
		waldorf.NewMulti(opts),
		clavia.NewProgram(opts),
	)
}

func NewRegistry(fs ...Format) *Registry {
	r := &Registry{
		formats: make(map[string]Format),
		shapes:  make(map[sysex.FormatID]Format),
		rec:     sysex.NewRecognizer(),
	}
	for _, f := range fs {
		r.formats[f.ID()] = f
		for _, sh := range f.Shapes() {
			r.shapes[sh.ID] = f
			r.rec.Add(sh)
		}
	}
	return r
}

func sortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

// IDs lists the registered format IDs in sorted order.
func (r *Registry) IDs() []string {
	return sortedKeys(r.formats)
}

func (r *Registry) Get(id string) (Format, error) {
	f, ok := r.formats[id]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (known: %v)", id, r.IDs())
	}
	return f, nil
}

// Recognize returns the format owning msg and the shape it matched.
func (r *Registry) Recognize(msg []byte) (Format, sysex.FormatID, error) {
	id, ok := r.rec.Recognize(msg)
	if !ok {
		return nil, "", fmt.Errorf("%d byte message: %w", len(msg), sysex.ErrUnrecognizedHeader)
	}
	return r.shapes[id], id, nil
}

// Decode recognizes msg and parses it. A matched shape whose length differs
// from the format's single-patch shape is parsed as a bank.
func (r *Registry) Decode(msg []byte) (Format, []*params.Store, error) {
	f, id, err := r.Recognize(msg)
	if err != nil {
		return nil, nil, err
	}
	if b, ok := f.(BankFormat); ok && isBank(f, id) {
		patches, err := b.ParseBank(msg)
		return f, patches, err
	}
	s, err := f.Parse(msg)
	if err != nil {
		return f, nil, err
	}
	return f, []*params.Store{s}, nil
}

func isBank(f Format, id sysex.FormatID) bool {
	shapes := f.Shapes()
	for _, sh := range shapes {
		if sh.ID == id {
			return sh.Length != shapes[0].Length
		}
	}
	return false
}

// DecodeAll splits a blob of concatenated messages and decodes each.
func (r *Registry) DecodeAll(blob []byte) ([]Format, []*params.Store, error) {
	var fs []Format
	var out []*params.Store
	for i, msg := range sysex.Split(blob) {
		f, patches, err := r.Decode(msg)
		if err != nil {
			return nil, nil, fmt.Errorf("message %d: %w", i, err)
		}
		for range patches {
			fs = append(fs, f)
		}
		out = append(out, patches...)
	}
	return fs, out, nil
}
