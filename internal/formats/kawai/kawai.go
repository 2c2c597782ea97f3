// Package kawai implements the nibbleized single, bank and multi dumps of a
// Kawai additive synthesizer.
//
// Every payload byte is sent as two 7-bit data bytes, high nibble first.
// Payloads end with a 16-bit word-sum checksum against 0x5A3C.
package kawai

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
	Manufacturer = 0x40

	cmdRequest     = 0x00
	cmdBankRequest = 0x01
	cmdDump        = 0x20
	cmdBankDump    = 0x21

	group = 0x00
	model = 0x02

	kindSingle = 0x00
	kindMulti  = 0x01

	BankSize = 12

	headerLen = 8
	// WriteDelay is how long the instrument needs after a dump before it
	// accepts a program change.
	WriteDelay = 300 * time.Millisecond
)

var Checksum = checksum.WordSum16{Constant: 0x5A3C}

const (
	singleWire = 2 * (singleData + 2)
	multiWire  = 2 * (multiData + 2)
)

// header leaves the MIDI channel in the low nibble of byte 2 unchecked.
func header(cmd, kind byte) []sysex.Match {
	return []sysex.Match{
		{Pos: 1, Value: Manufacturer},
		{Pos: 2, Value: 0x00, Mask: 0xF0},
		{Pos: 3, Value: cmd},
		{Pos: 4, Value: group},
		{Pos: 5, Value: model},
		{Pos: 6, Value: kind},
	}
}

var (
	SingleShape = sysex.Shape{ID: "kawai/single", Length: headerLen + singleWire + 1, Header: header(cmdDump, kindSingle)}
	BankShape   = sysex.Shape{ID: "kawai/bank", Length: headerLen + BankSize*singleWire + 1, Header: header(cmdBankDump, kindSingle)}
	MultiShape  = sysex.Shape{ID: "kawai/multi", Length: headerLen + multiWire + 1, Header: header(cmdDump, kindMulti)}
	// ResultShape covers the four write acknowledgements 0x40-0x43.
	ResultShape = sysex.Shape{ID: "kawai/result", Length: 7, Header: []sysex.Match{
		{Pos: 1, Value: Manufacturer},
		{Pos: 2, Value: 0x00, Mask: 0xF0},
		{Pos: 3, Value: 0x40, Mask: 0xFC},
		{Pos: 4, Value: group},
		{Pos: 5, Value: model},
	}}
)

var results = map[byte]string{
	0x41: "write error",
	0x42: "write protected",
	0x43: "no card",
}

// dump is the shared shape of single and multi messages.
type dump struct {
	opts  patch.Options
	codec *patch.Codec
	kind  byte
	shape sysex.Shape
	slots int
}

func (d *dump) Schema() *params.Schema { return d.codec.Schema() }

func (d *dump) WriteDelay() time.Duration { return WriteDelay }

func (d *dump) Parse(msg []byte) (*params.Store, error) {
	if err := sysex.CheckLength(string(d.shape.ID), msg, d.shape.Length); err != nil {
		return nil, err
	}
	if !d.shape.Matches(msg) {
		return nil, fmt.Errorf("%s: %w", d.shape.ID, sysex.ErrUnrecognizedHeader)
	}
	number := int(msg[7])
	if number >= d.slots {
		return nil, fmt.Errorf("%s: %w: number %d out of range 0-%d", d.shape.ID, sysex.ErrUnrecognizedHeader, number, d.slots-1)
	}
	s := params.NewStore(d.codec.Schema())
	if err := d.decode(s, msg[headerLen:len(msg)-1]); err != nil {
		return nil, err
	}
	s.Put(d.codec.Schema().MustLookup("number"), number)
	return s, nil
}

func (d *dump) decode(s *params.Store, wire []byte) error {
	payload, err := nibble.Denibbleize(wire)
	if err != nil {
		return fmt.Errorf("%s: %w", d.shape.ID, err)
	}
	n := d.codec.Size()
	if err := d.opts.Verify(string(d.shape.ID), Checksum, payload, 0, n, payload[n:]); err != nil {
		return err
	}
	return d.codec.DecodeInto(s, payload[:n])
}

func (d *dump) encode(s *params.Store) []byte {
	data, _ := d.codec.Encode(s)
	payload := append(data, Checksum.Compute(data, 0, len(data))...)
	return nibble.Nibbleize(payload)
}

func (d *dump) Emit(s *params.Store) ([]byte, error) {
	s = d.codec.Adopt(s)
	number := s.GetByName("number", 0)
	if number < 0 || number >= d.slots {
		return nil, fmt.Errorf("%s: number %d out of range 0-%d", d.shape.ID, number, d.slots-1)
	}
	body := []byte{Manufacturer, d.opts.Device & 0x0F, cmdDump, group, model, d.kind, byte(number)}
	return sysex.Frame(append(body, d.encode(s)...)...), nil
}

func (d *dump) RequestDump(bank, number int) ([]byte, error) {
	if bank != 0 {
		return nil, fmt.Errorf("%s: only the internal bank 0 can be requested, got %d", d.shape.ID, bank)
	}
	if number < 0 || number >= d.slots {
		return nil, fmt.Errorf("%s: number %d out of range 0-%d", d.shape.ID, number, d.slots-1)
	}
	return sysex.Frame(Manufacturer, d.opts.Device&0x0F, cmdRequest, group, model, d.kind, byte(number)), nil
}

func (d *dump) ReplyShape() sysex.Shape { return ResultShape }

func (d *dump) ConfirmWrite(reply []byte) error { return ConfirmWrite(reply) }

// ConfirmWrite interprets a write acknowledgement. A failure comes back as
// a *sysex.DeviceError.
func ConfirmWrite(reply []byte) error {
	if !ResultShape.Matches(reply) {
		return fmt.Errorf("kawai/result: %w", sysex.ErrUnrecognizedHeader)
	}
	code := reply[3]
	if code == 0x40 {
		return nil
	}
	return &sysex.DeviceError{Device: "kawai", Code: code, Reason: results[code]}
}

// Single is a one-patch dump of 130 data bytes.
type Single struct{ dump }

func NewSingle(opts patch.Options) *Single {
	return &Single{dump{opts: opts, codec: singleCodec, kind: kindSingle, shape: SingleShape, slots: BankSize}}
}

func (f *Single) ID() string          { return "kawai/single" }
func (f *Single) Description() string { return "Kawai additive single, nibbleized" }

func (f *Single) Shapes() []sysex.Shape { return []sysex.Shape{SingleShape, BankShape} }

// ParseBank splits a bank dump into its twelve singles.
func (f *Single) ParseBank(msg []byte) ([]*params.Store, error) {
	if err := sysex.CheckLength("kawai/bank", msg, BankShape.Length); err != nil {
		return nil, err
	}
	if !BankShape.Matches(msg) {
		return nil, fmt.Errorf("kawai/bank: %w", sysex.ErrUnrecognizedHeader)
	}
	number := singleSchema.MustLookup("number")
	out := make([]*params.Store, BankSize)
	for i := range out {
		start := headerLen + i*singleWire
		s := params.NewStore(singleSchema)
		if err := f.decode(s, msg[start:start+singleWire]); err != nil {
			return nil, fmt.Errorf("kawai/bank: single %d: %w", i, err)
		}
		s.Put(number, i)
		out[i] = s
	}
	return out, nil
}

func (f *Single) EmitBank(patches []*params.Store) ([]byte, error) {
	if len(patches) != BankSize {
		return nil, fmt.Errorf("kawai/bank: want %d singles, got %d", BankSize, len(patches))
	}
	body := []byte{Manufacturer, f.opts.Device & 0x0F, cmdBankDump, group, model, kindSingle, 0x00}
	for _, s := range patches {
		body = append(body, f.encode(singleCodec.Adopt(s))...)
	}
	return sysex.Frame(body...), nil
}

func (f *Single) RequestBank() []byte {
	return sysex.Frame(Manufacturer, f.opts.Device&0x0F, cmdBankRequest, group, model, kindSingle, 0x00)
}

// Multi is a combination of up to eight singles split across the keyboard.
type Multi struct{ dump }

func NewMulti(opts patch.Options) *Multi {
	return &Multi{dump{opts: opts, codec: multiCodec, kind: kindMulti, shape: MultiShape, slots: 64}}
}

func (f *Multi) ID() string            { return "kawai/multi" }
func (f *Multi) Description() string   { return "Kawai additive multi, nibbleized" }
func (f *Multi) Shapes() []sysex.Shape { return []sysex.Shape{MultiShape} }
