package kawai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchmcp/internal/nibble"
	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/sysex"
)

// filled sets every parameter to a value spread over its range, keeping
// the harmonic modulation shadows reachable.
func filled(schema *params.Schema, seed int) *params.Store {
	s := params.NewStore(schema)
	s.Each(func(id params.ID, _ string, _ int) {
		d := schema.Def(id)
		s.Put(id, d.Min+(int(id)*7+seed)%(d.Max-d.Min+1))
	})
	for _, src := range []string{"s1_", "s2_"} {
		if mod := s.GetByName(src+"harm_mod", 0); mod != 0 {
			s.Put(schema.MustLookup(src+"harm_mod_env"), mod)
		}
	}
	return s
}

func TestShapeLengths(t *testing.T) {
	assert.Equal(t, 273, SingleShape.Length)
	assert.Equal(t, 3177, BankShape.Length)
	assert.Equal(t, 125, MultiShape.Length)
}

func TestSingleRoundTrip(t *testing.T) {
	f := NewSingle(patch.Options{Device: 3})
	for seed := 0; seed < 5; seed++ {
		s := filled(f.Schema(), seed)
		s.SetText("name", "PAD "+fmt.Sprint(seed))

		msg, err := f.Emit(s)
		require.NoError(t, err)
		require.Len(t, msg, SingleShape.Length)
		require.NoError(t, sysex.Validate(msg))
		assert.Equal(t, byte(0x03), msg[2])

		got, err := f.Parse(msg)
		require.NoError(t, err)
		assert.Empty(t, s.Diff(got), "seed %d", seed)
	}
}

func TestNameNibbles(t *testing.T) {
	f := NewSingle(patch.Options{})
	s := params.NewStore(f.Schema())
	s.SetText("name", "init")

	msg, err := f.Emit(s)
	require.NoError(t, err)
	wire := msg[headerLen : headerLen+16]
	for _, b := range wire {
		assert.LessOrEqual(t, b, byte(0x0F))
	}
	name, err := nibble.Denibbleize(wire)
	require.NoError(t, err)
	assert.Equal(t, "INIT    ", string(name))
}

func TestChecksumMatchesConstant(t *testing.T) {
	f := NewSingle(patch.Options{})
	msg, err := f.Emit(filled(f.Schema(), 1))
	require.NoError(t, err)
	payload, err := nibble.Denibbleize(msg[headerLen : len(msg)-1])
	require.NoError(t, err)
	require.Len(t, payload, singleData+2)
	assert.Equal(t, uint16(0x5A3C), Checksum.Sum(payload, 0, len(payload)))
}

func TestMaxSegmentInterleaved(t *testing.T) {
	s := params.NewStore(singleSchema)
	require.NoError(t, s.SetByName("s1_dhg_max_seg", 3))
	require.NoError(t, s.SetByName("s2_dhg_max_seg", 1))
	payload, _ := singleCodec.Encode(s)
	assert.Equal(t, byte(0x48), payload[maxSegByte])
	assert.Equal(t, byte(0x00), payload[maxSegByte+1])

	require.NoError(t, s.SetByName("s2_dhg_max_seg", 6))
	payload, _ = singleCodec.Encode(s)
	assert.Equal(t, byte(0x08), payload[maxSegByte])
	assert.Equal(t, byte(0x04), payload[maxSegByte+1])

	got, err := singleCodec.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, 3, got.GetByName("s1_dhg_max_seg", -1))
	assert.Equal(t, 6, got.GetByName("s2_dhg_max_seg", -1))
}

func TestRatesInverted(t *testing.T) {
	s := params.NewStore(singleSchema)
	require.NoError(t, s.SetByName("s1_dhg_rate1", 0))
	require.NoError(t, s.SetByName("s2_dhg_rate6", 31))
	payload, _ := singleCodec.Encode(s)
	assert.Equal(t, byte(31), payload[sourceBase+20])
	assert.Equal(t, byte(0), payload[sourceBase+sourceSize+25])
}

func TestHarmonicModShadow(t *testing.T) {
	f := NewSingle(patch.Options{})
	s := params.NewStore(f.Schema())
	require.NoError(t, s.SetByName("s1_harm_mod", 0))
	require.NoError(t, s.SetByName("s1_harm_mod_env", 3))

	msg, err := f.Emit(s)
	require.NoError(t, err)
	got, err := f.Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, 0, got.GetByName("s1_harm_mod", -1))
	assert.Equal(t, 3, got.GetByName("s1_harm_mod_env", -1))
}

func TestChecksumLeniency(t *testing.T) {
	msg, err := NewSingle(patch.Options{}).Emit(filled(singleSchema, 2))
	require.NoError(t, err)
	msg[len(msg)-2] ^= 0x01

	_, err = NewSingle(patch.Options{}).Parse(msg)
	assert.NoError(t, err)

	_, err = NewSingle(patch.Options{Strict: true}).Parse(msg)
	assert.True(t, errors.Is(err, sysex.ErrChecksumMismatch))
}

func TestParseRejectsBadInput(t *testing.T) {
	f := NewSingle(patch.Options{})
	msg, err := f.Emit(params.NewStore(f.Schema()))
	require.NoError(t, err)

	_, err = f.Parse(msg[:len(msg)-1])
	assert.True(t, errors.Is(err, sysex.ErrLengthMismatch))
	_, err = f.Parse(append(append([]byte(nil), msg...), 0xF7))
	assert.True(t, errors.Is(err, sysex.ErrLengthMismatch))

	bad := append([]byte(nil), msg...)
	bad[3] = 0x22
	_, err = f.Parse(bad)
	assert.True(t, errors.Is(err, sysex.ErrUnrecognizedHeader))

	slot := append([]byte(nil), msg...)
	slot[7] = 0x28
	_, err = f.Parse(slot)
	assert.True(t, errors.Is(err, sysex.ErrUnrecognizedHeader))
	assert.Contains(t, err.Error(), "number 40")
	slot[7] = BankSize - 1
	got, err := f.Parse(slot)
	require.NoError(t, err)
	assert.Equal(t, BankSize-1, got.GetByName("number", -1))
}

func TestBankRoundTrip(t *testing.T) {
	f := NewSingle(patch.Options{})
	patches := make([]*params.Store, BankSize)
	for i := range patches {
		patches[i] = filled(singleSchema, i)
		patches[i].Put(singleSchema.MustLookup("number"), i)
		patches[i].SetText("name", fmt.Sprintf("BANK%d", i))
	}
	msg, err := f.EmitBank(patches)
	require.NoError(t, err)
	require.Len(t, msg, BankShape.Length)
	assert.True(t, BankShape.Matches(msg))

	got, err := f.ParseBank(msg)
	require.NoError(t, err)
	require.Len(t, got, BankSize)
	for i := range got {
		assert.Empty(t, patches[i].Diff(got[i]), "single %d", i)
	}

	_, err = f.EmitBank(patches[:3])
	assert.Error(t, err)
}

func TestMultiRoundTrip(t *testing.T) {
	f := NewMulti(patch.Options{})
	s := filled(f.Schema(), 4)
	s.SetText("name", "SPLIT")
	msg, err := f.Emit(s)
	require.NoError(t, err)
	require.Len(t, msg, MultiShape.Length)

	got, err := f.Parse(msg)
	require.NoError(t, err)
	assert.Empty(t, s.Diff(got))
}

func TestRequests(t *testing.T) {
	f := NewSingle(patch.Options{Device: 1})
	req, err := f.RequestDump(0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x40, 0x01, 0x00, 0x00, 0x02, 0x00, 0x05, 0xF7}, req)
	assert.Equal(t, []byte{0xF0, 0x40, 0x01, 0x01, 0x00, 0x02, 0x00, 0x00, 0xF7}, f.RequestBank())

	_, err = f.RequestDump(1, 0)
	assert.Error(t, err)
	_, err = f.RequestDump(0, 12)
	assert.Error(t, err)

	req, err = NewMulti(patch.Options{}).RequestDump(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x40, 0x00, 0x00, 0x00, 0x02, 0x01, 0x02, 0xF7}, req)
}

func TestConfirmWrite(t *testing.T) {
	assert.NoError(t, ConfirmWrite([]byte{0xF0, 0x40, 0x00, 0x40, 0x00, 0x02, 0xF7}))

	err := ConfirmWrite([]byte{0xF0, 0x40, 0x05, 0x42, 0x00, 0x02, 0xF7})
	var de *sysex.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, byte(0x42), de.Code)
	assert.Equal(t, "write protected", de.Reason)

	err = ConfirmWrite([]byte{0xF0, 0x40, 0x00, 0x43, 0x00, 0x02, 0xF7})
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "no card", de.Reason)

	err = ConfirmWrite([]byte{0xF0, 0x40, 0x00, 0x44, 0x00, 0x02, 0xF7})
	assert.True(t, errors.Is(err, sysex.ErrUnrecognizedHeader))
}
