// Package formats ties the vendor packages together behind one interface
// and one recognizer.
package formats

import (
	"time"

	"patchmcp/internal/params"
	"patchmcp/internal/sysex"
)

// Format is one vendor message family. The first shape returned by Shapes
// is the single-patch message; further shapes are alternate addresses or
// bank dumps.
type Format interface {
	ID() string
	Description() string
	Schema() *params.Schema
	Shapes() []sysex.Shape
	Parse(msg []byte) (*params.Store, error)
	Emit(s *params.Store) ([]byte, error)
	RequestDump(bank, number int) ([]byte, error)
}

// BankFormat is implemented by formats with a bulk dump.
type BankFormat interface {
	Format
	ParseBank(blob []byte) ([]*params.Store, error)
	EmitBank(patches []*params.Store) ([]byte, error)
}

// ParamChanger builds the message that updates a single parameter on the
// instrument without a full dump.
type ParamChanger interface {
	ParamChange(s *params.Store, name string) ([]byte, error)
}

// Timing reports how long the instrument needs after a dump before the
// next message, such as a program select.
type Timing interface {
	WriteDelay() time.Duration
}

// WriteConfirmer is implemented by formats whose instrument acknowledges
// writes with its own message.
type WriteConfirmer interface {
	ReplyShape() sysex.Shape
	ConfirmWrite(reply []byte) error
}

// BankRequester is implemented by formats that can ask for a whole bank
// in one message.
type BankRequester interface {
	RequestBank() []byte
}

// Retargeter is implemented by formats whose memory slot is not simply the
// bank and number parameters, so that Retarget addresses the same slot as
// RequestDump(bank, number).
type Retargeter interface {
	Retarget(s *params.Store, bank, number int) error
}

// Retarget points s at another memory slot, the one RequestDump(bank,
// number) reads. A negative bank or number keeps the current one. Formats
// without a bank or number parameter ignore that argument; values are
// clamped.
func Retarget(f Format, s *params.Store, bank, number int) error {
	if r, ok := f.(Retargeter); ok {
		return r.Retarget(s, bank, number)
	}
	if id, ok := s.Schema().Lookup("bank"); ok && bank >= 0 {
		s.Put(id, bank)
	}
	if id, ok := s.Schema().Lookup("number"); ok && number >= 0 {
		s.Put(id, number)
	}
	return nil
}

// PatchShapes returns the shapes of single-patch messages, the ones as
// long as the first shape. The rest are bank dumps.
func PatchShapes(f Format) []sysex.Shape {
	all := f.Shapes()
	var out []sysex.Shape
	for _, sh := range all {
		if sh.Length == all[0].Length {
			out = append(out, sh)
		}
	}
	return out
}

// MatchesPatch reports whether msg is a single-patch message of f.
func MatchesPatch(f Format, msg []byte) bool {
	for _, sh := range PatchShapes(f) {
		if sh.Matches(msg) {
			return true
		}
	}
	return false
}

// WriteDelay returns the format's delay, or zero when it has none.
func WriteDelay(f Format) time.Duration {
	if t, ok := f.(Timing); ok {
		return t.WriteDelay()
	}
	return 0
}
