// Package roland implements address-mapped tone dumps (DT1/RQ1) for a
// Roland LA synthesizer module.
package roland

import (
	"fmt"
	"time"

	"patchmcp/internal/checksum"
	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/sysex"
)

const (
	Manufacturer = 0x41
	Model        = 0x16

	cmdRQ1 = 0x11
	cmdDT1 = 0x12

	// Temporary addresses the edit buffer rather than a stored tone.
	Temporary = -1
	// Tones is the number of stored tones, eight banks of eight.
	Tones    = 64
	BankSize = 8

	TempAddr   = 0x03<<14 | 0x00<<7 | 0x00
	StoredAddr = 0x04<<14 | 0x00<<7 | 0x00

	headerLen = 8
	// Delay is the gap the module needs between consecutive DT1 messages.
	Delay = 40 * time.Millisecond
)

// Checksum covers address and data bytes.
var Checksum = checksum.TwosComplement7{}

func dt1(addr byte) []sysex.Match {
	return []sysex.Match{
		{Pos: 1, Value: Manufacturer},
		{Pos: 3, Value: Model},
		{Pos: 4, Value: cmdDT1},
		{Pos: 5, Value: addr},
		{Pos: 7, Value: 0x00},
	}
}

var (
	TempShape   = sysex.Shape{ID: "roland/tone", Length: headerLen + ToneSize + 2, Header: append(dt1(0x03), sysex.Match{Pos: 6, Value: 0x00})}
	StoredShape = sysex.Shape{ID: "roland/stored", Length: headerLen + ToneSize + 2, Header: dt1(0x04)}
)

// Address splits a 21-bit address into three 7-bit bytes.
func Address(addr int) []byte {
	return []byte{byte(addr >> 14 & 0x7F), byte(addr >> 7 & 0x7F), byte(addr & 0x7F)}
}

func joinAddress(b []byte) int {
	return int(b[0])<<14 | int(b[1])<<7 | int(b[2])
}

// DataSet builds a DT1 message writing data at addr.
func DataSet(device byte, addr int, data ...byte) []byte {
	body := append(Address(addr), data...)
	msg := []byte{Manufacturer, device, Model, cmdDT1}
	msg = append(msg, body...)
	msg = append(msg, Checksum.Compute(body, 0, len(body))...)
	return sysex.Frame(msg...)
}

// DataGet builds an RQ1 message requesting size bytes from addr.
func DataGet(device byte, addr, size int) []byte {
	body := append(Address(addr), Address(size)...)
	msg := []byte{Manufacturer, device, Model, cmdRQ1}
	msg = append(msg, body...)
	msg = append(msg, Checksum.Compute(body, 0, len(body))...)
	return sysex.Frame(msg...)
}

func toneAddr(number int) int {
	if number == Temporary {
		return TempAddr
	}
	return StoredAddr + number<<7
}

// Tone is one 64-byte tone, temporary or stored.
type Tone struct {
	opts patch.Options
}

func NewTone(opts patch.Options) *Tone { return &Tone{opts: opts} }

func (f *Tone) ID() string                { return "roland/tone" }
func (f *Tone) Description() string       { return "Roland LA tone, DT1 address mapped" }
func (f *Tone) Schema() *params.Schema    { return toneSchema }
func (f *Tone) Shapes() []sysex.Shape     { return []sysex.Shape{TempShape, StoredShape} }
func (f *Tone) WriteDelay() time.Duration { return Delay }

func (f *Tone) Parse(msg []byte) (*params.Store, error) {
	if err := sysex.CheckLength("roland/tone", msg, TempShape.Length); err != nil {
		return nil, err
	}
	if !TempShape.Matches(msg) && !StoredShape.Matches(msg) {
		return nil, fmt.Errorf("roland/tone: %w", sysex.ErrUnrecognizedHeader)
	}
	number := Temporary
	if addr := joinAddress(msg[5:8]); addr != TempAddr {
		number = (addr - StoredAddr) >> 7
		if number >= Tones {
			return nil, fmt.Errorf("roland/tone: %w: stored tone %d", sysex.ErrUnrecognizedHeader, number)
		}
	}
	end := headerLen + ToneSize
	if err := f.opts.Verify("roland/tone", Checksum, msg, 5, end, msg[end:end+1]); err != nil {
		return nil, err
	}
	s, err := toneCodec.Decode(msg[headerLen:end])
	if err != nil {
		return nil, err
	}
	s.Put(toneSchema.MustLookup("number"), number)
	return s, nil
}

func (f *Tone) Emit(s *params.Store) ([]byte, error) {
	s = toneCodec.Adopt(s)
	payload, _ := toneCodec.Encode(s)
	return DataSet(f.opts.Device, toneAddr(s.GetByName("number", Temporary)), payload...), nil
}

// RequestDump asks for tone number of bank; bank Temporary requests the
// edit buffer.
func (f *Tone) RequestDump(bank, number int) ([]byte, error) {
	if bank == Temporary {
		return DataGet(f.opts.Device, TempAddr, ToneSize), nil
	}
	if bank < 0 || bank >= Tones/BankSize || number < 0 || number >= BankSize {
		return nil, fmt.Errorf("roland/tone: bank %d number %d out of range", bank, number)
	}
	return DataGet(f.opts.Device, toneAddr(bank*BankSize+number), ToneSize), nil
}

// Retarget addresses stored tone bank*BankSize+number, the slot
// RequestDump(bank, number) reads. A negative bank or number keeps the
// current one; an edit buffer tone counts as bank 0 number 0.
func (f *Tone) Retarget(s *params.Store, bank, number int) error {
	id, ok := s.Schema().Lookup("number")
	if !ok {
		return nil
	}
	curBank, curNumber := 0, 0
	if cur := s.Get(id); cur >= 0 {
		curBank, curNumber = cur/BankSize, cur%BankSize
	}
	if bank < 0 {
		bank = curBank
	}
	if number < 0 {
		number = curNumber
	}
	if bank >= Tones/BankSize || number >= BankSize {
		return fmt.Errorf("roland/tone: bank %d number %d out of range", bank, number)
	}
	s.Put(id, bank*BankSize+number)
	return nil
}

// ParamChange builds a DT1 writing only the bytes that carry name.
func (f *Tone) ParamChange(s *params.Store, name string) ([]byte, error) {
	s = toneCodec.Adopt(s)
	offset, data, err := toneCodec.Bytes(s, name)
	if err != nil {
		return nil, err
	}
	return DataSet(f.opts.Device, toneAddr(s.GetByName("number", Temporary))+offset, data...), nil
}

// ParseBank reads eight concatenated stored-tone messages.
func (f *Tone) ParseBank(blob []byte) ([]*params.Store, error) {
	msgs := sysex.Split(blob)
	if len(msgs) != BankSize {
		return nil, fmt.Errorf("roland/bank: %w: want %d tones, got %d", sysex.ErrLengthMismatch, BankSize, len(msgs))
	}
	out := make([]*params.Store, len(msgs))
	for i, msg := range msgs {
		s, err := f.Parse(msg)
		if err != nil {
			return nil, fmt.Errorf("roland/bank: tone %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// EmitBank writes the tones to consecutive stored slots starting at the
// first tone's number. Callers must space the messages by Delay.
func (f *Tone) EmitBank(tones []*params.Store) ([]byte, error) {
	if len(tones) != BankSize {
		return nil, fmt.Errorf("roland/bank: want %d tones, got %d", BankSize, len(tones))
	}
	first := toneCodec.Adopt(tones[0]).GetByName("number", Temporary)
	if first < 0 {
		first = 0
	}
	first -= first % BankSize
	var out []byte
	for i, t := range tones {
		t = toneCodec.Adopt(t).Clone()
		t.Put(toneSchema.MustLookup("number"), first+i)
		msg, err := f.Emit(t)
		if err != nil {
			return nil, err
		}
		out = append(out, msg...)
	}
	return out, nil
}

// addressOf reports the absolute address of a parameter in the edit
// buffer.
func addressOf(name string) (int, bool) {
	e, ok := toneTable.Address(name)
	if !ok {
		return 0, false
	}
	return TempAddr + e.Byte, true
}
