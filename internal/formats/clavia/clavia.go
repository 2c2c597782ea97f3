// Package clavia implements the program dump of a Clavia virtual analog
// synthesizer: split signed values, an 8-bit weighted checksum and a
// sequencer section carried as a 7-bit repacked bit stream.
package clavia

import (
	"fmt"
	"time"

	"patchmcp/internal/checksum"
	"patchmcp/internal/nibble"
	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/sysex"
)

const (
	Manufacturer = 0x33
	Model        = 0x09

	cmdProgram = 0x20
	cmdRequest = 0x40

	Banks     = 4
	Locations = 99

	headerLen = 7
	seqWire   = 28
	// Delay after a program dump.
	Delay = 100 * time.Millisecond
)

const (
	bodyStart = headerLen + nameLen
	seqStart  = headerLen + BodySize
	sumStart  = seqStart + seqWire
)

var ProgramShape = sysex.Shape{
	ID:     "clavia/program",
	Length: sumStart + 3,
	Header: []sysex.Match{
		{Pos: 1, Value: Manufacturer},
		{Pos: 3, Value: Model},
		{Pos: 4, Value: cmdProgram},
	},
}

func init() {
	if nibble.Packed7Len(SeqSize) != seqWire {
		panic(fmt.Sprintf("clavia: %d sequencer bytes do not pack into %d", SeqSize, seqWire))
	}
}

// weights marks the MSB half of each split pair inside the checksummed
// region (body then sequencer).
func weights() []bool {
	overflow := bodyCodec.Overflow()
	w := make([]bool, sumStart-bodyStart)
	copy(w, overflow[nameLen:])
	return w
}

var regionWeights = weights()

// Checksum covers body and sequencer wire bytes.
var Checksum = checksum.Weighted8{Overflow: regionWeights}

// Program is one stored program or the edit slot.
type Program struct {
	opts patch.Options
}

func NewProgram(opts patch.Options) *Program { return &Program{opts: opts} }

func (f *Program) ID() string                { return "clavia/program" }
func (f *Program) Description() string       { return "Clavia program dump with step sequencer" }
func (f *Program) Schema() *params.Schema    { return programSchema }
func (f *Program) Shapes() []sysex.Shape     { return []sysex.Shape{ProgramShape} }
func (f *Program) WriteDelay() time.Duration { return Delay }

func validSlot(bank, location int) error {
	if bank < 0 || bank >= Banks {
		return fmt.Errorf("clavia/program: bank %d out of range 0-%d", bank, Banks-1)
	}
	if location < 0 || location >= Locations {
		return fmt.Errorf("clavia/program: location %d out of range 0-%d", location, Locations-1)
	}
	return nil
}

func (f *Program) Parse(msg []byte) (*params.Store, error) {
	if err := sysex.CheckLength("clavia/program", msg, ProgramShape.Length); err != nil {
		return nil, err
	}
	if !ProgramShape.Matches(msg) {
		return nil, fmt.Errorf("clavia/program: %w", sysex.ErrUnrecognizedHeader)
	}
	got := byte(int(msg[sumStart]&0x01)<<7 | int(msg[sumStart+1]&0x7F))
	if err := f.opts.Verify("clavia/program", Checksum, msg[bodyStart:sumStart], 0, sumStart-bodyStart, []byte{got}); err != nil {
		return nil, err
	}
	s, err := bodyCodec.Decode(msg[headerLen:seqStart])
	if err != nil {
		return nil, err
	}
	seq, err := nibble.Unpack7(msg[seqStart:sumStart], SeqSize)
	if err != nil {
		return nil, fmt.Errorf("clavia/program: sequencer: %w", err)
	}
	if err := seqCodec.DecodeInto(s, seq); err != nil {
		return nil, err
	}
	s.Put(programSchema.MustLookup("bank"), int(msg[5]))
	s.Put(programSchema.MustLookup("number"), int(msg[6]))
	return s, nil
}

func (f *Program) Emit(s *params.Store) ([]byte, error) {
	s = bodyCodec.Adopt(s)
	bank, location := s.GetByName("bank", 0), s.GetByName("number", 0)
	if err := validSlot(bank, location); err != nil {
		return nil, err
	}
	body, _ := bodyCodec.Encode(s)
	seq, _ := seqCodec.Encode(s)

	out := []byte{Manufacturer, f.opts.Device, Model, cmdProgram, byte(bank), byte(location)}
	out = append(out, body...)
	out = append(out, nibble.Pack7(seq)...)
	region := out[bodyStart-1:]
	sum := Checksum.Compute(region, 0, len(region))[0]
	out = append(out, sum>>7, sum&0x7F)
	return sysex.Frame(out...), nil
}

func (f *Program) RequestDump(bank, number int) ([]byte, error) {
	if err := validSlot(bank, number); err != nil {
		return nil, err
	}
	return sysex.Frame(Manufacturer, f.opts.Device, Model, cmdRequest, byte(bank), byte(number)), nil
}
