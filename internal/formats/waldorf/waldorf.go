// Package waldorf implements the Waldorf Blofeld sound (SNDD) and multi
// (MULD) dumps plus single parameter changes (SNDP).
package waldorf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"patchmcp/internal/checksum"
	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/sysex"
)

const (
	Manufacturer = 0x3E
	Model        = 0x13

	cmdSNDR = 0x00
	cmdMULR = 0x01
	cmdSNDD = 0x10
	cmdMULD = 0x11
	cmdSNDP = 0x20

	// EditBuffer is the bank byte addressing the edit buffer.
	EditBuffer = 0x7F

	// AnyChecksum is accepted in place of a computed checksum.
	AnyChecksum = 0x7F

	headerLen = 7
	// Delay between a dump and the next message.
	Delay = 50 * time.Millisecond
)

var Checksum = checksum.Sum7{}

func header(cmd byte) []sysex.Match {
	return []sysex.Match{
		{Pos: 1, Value: Manufacturer},
		{Pos: 2, Value: Model},
		{Pos: 4, Value: cmd},
	}
}

var (
	SoundShape = sysex.Shape{ID: "waldorf/sound", Length: headerLen + SoundSize + 2, Header: header(cmdSNDD)}
	MultiShape = sysex.Shape{ID: "waldorf/multi", Length: headerLen + MultiSize + 2, Header: header(cmdMULD)}
)

// BankByte maps a bank letter A-H to its wire value.
func BankByte(bank string) (byte, error) {
	if bank == "" {
		return 0, errors.New("bank must not be empty")
	}
	ch := strings.ToUpper(bank)[0]
	if ch < 'A' || ch > 'H' {
		return 0, fmt.Errorf("bank must be A-H, got %q", bank)
	}
	return ch - 'A', nil
}

func validSlot(id string, bank, number int) error {
	if (bank < 0 || bank > 7) && bank != EditBuffer {
		return fmt.Errorf("%s: bank %d out of range", id, bank)
	}
	if number < 0 || number > 127 {
		return fmt.Errorf("%s: program %d out of range 0-127", id, number)
	}
	return nil
}

type dump struct {
	opts   patch.Options
	codec  *patch.Codec
	shape  sysex.Shape
	cmd    byte
	reqCmd byte
}

func (d *dump) Schema() *params.Schema    { return d.codec.Schema() }
func (d *dump) Shapes() []sysex.Shape     { return []sysex.Shape{d.shape} }
func (d *dump) WriteDelay() time.Duration { return Delay }

func (d *dump) Parse(msg []byte) (*params.Store, error) {
	id := string(d.shape.ID)
	if err := sysex.CheckLength(id, msg, d.shape.Length); err != nil {
		return nil, err
	}
	if !d.shape.Matches(msg) {
		return nil, fmt.Errorf("%s: %w", id, sysex.ErrUnrecognizedHeader)
	}
	end := headerLen + d.codec.Size()
	if got := msg[end]; got != AnyChecksum {
		if err := d.opts.Verify(id, Checksum, msg, headerLen, end, msg[end:end+1]); err != nil {
			return nil, err
		}
	}
	s, err := d.codec.Decode(msg[headerLen:end])
	if err != nil {
		return nil, err
	}
	s.Put(d.codec.Schema().MustLookup("bank"), int(msg[5]))
	s.Put(d.codec.Schema().MustLookup("number"), int(msg[6]))
	return s, nil
}

func (d *dump) Emit(s *params.Store) ([]byte, error) {
	s = d.codec.Adopt(s)
	bank, number := s.GetByName("bank", 0), s.GetByName("number", 0)
	if err := validSlot(string(d.shape.ID), bank, number); err != nil {
		return nil, err
	}
	data, _ := d.codec.Encode(s)
	out := []byte{Manufacturer, Model, d.opts.Device, d.cmd, byte(bank), byte(number)}
	out = append(out, data...)
	out = append(out, Checksum.Compute(data, 0, len(data))...)
	return sysex.Frame(out...), nil
}

func (d *dump) RequestDump(bank, number int) ([]byte, error) {
	if err := validSlot(string(d.shape.ID), bank, number); err != nil {
		return nil, err
	}
	return sysex.Frame(Manufacturer, Model, d.opts.Device, d.reqCmd, byte(bank), byte(number)), nil
}

// Sound is a single Blofeld sound.
type Sound struct{ dump }

func NewSound(opts patch.Options) *Sound {
	return &Sound{dump{opts: opts, codec: soundCodec, shape: SoundShape, cmd: cmdSNDD, reqCmd: cmdSNDR}}
}

func (f *Sound) ID() string          { return "waldorf/sound" }
func (f *Sound) Description() string { return "Waldorf Blofeld sound (SNDD)" }

// ParamChange returns one SNDP message per payload byte carrying name,
// addressed to the edit buffer and concatenated.
func (f *Sound) ParamChange(s *params.Store, name string) ([]byte, error) {
	offset, data, err := soundCodec.Bytes(s, name)
	if err != nil {
		return nil, err
	}
	var out []byte
	for i, v := range data {
		idx := offset + i
		out = append(out, sysex.Frame(Manufacturer, Model, f.opts.Device, cmdSNDP, 0x00, byte(idx>>7), byte(idx&0x7F), v&0x7F)...)
	}
	return out, nil
}

// Multi is a sixteen part multi.
type Multi struct{ dump }

func NewMulti(opts patch.Options) *Multi {
	return &Multi{dump{opts: opts, codec: multiCodec, shape: MultiShape, cmd: cmdMULD, reqCmd: cmdMULR}}
}

func (f *Multi) ID() string          { return "waldorf/multi" }
func (f *Multi) Description() string { return "Waldorf Blofeld multi (MULD)" }
