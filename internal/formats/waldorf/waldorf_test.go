package waldorf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/sysex"
)

func filled(schema *params.Schema, seed int) *params.Store {
	s := params.NewStore(schema)
	s.Each(func(id params.ID, name string, _ int) {
		if name == "bank" || name == "number" {
			return
		}
		d := schema.Def(id)
		s.Put(id, d.Min+(int(id)*11+seed)%(d.Max-d.Min+1))
	})
	return s
}

func TestSoundSerialization(t *testing.T) {
	f := NewSound(patch.Options{})
	s := filled(f.Schema(), 3)
	s.SetText("name", "Test Patch")
	s.Put(soundSchema.MustLookup("bank"), 7)
	s.Put(soundSchema.MustLookup("number"), 127)

	msg, err := f.Emit(s)
	require.NoError(t, err)
	require.Len(t, msg, 392)
	require.NoError(t, sysex.Validate(msg))
	assert.Equal(t, []byte{0xF0, 0x3E, 0x13, 0x00, 0x10, 0x07, 0x7F}, msg[:7])

	got, err := f.Parse(msg)
	require.NoError(t, err)
	assert.Empty(t, s.Diff(got))
	assert.Equal(t, "Test Patch", got.Text("name"))
}

func TestSignedValuesCenteredAt64(t *testing.T) {
	s := params.NewStore(soundSchema)
	require.NoError(t, s.SetByName("osc1_detune", -64))
	require.NoError(t, s.SetByName("filter1_env_amt", 63))
	require.NoError(t, s.SetByName("osc2_pitch", 0))
	payload, _ := soundCodec.Encode(s)
	assert.Equal(t, byte(0), payload[3])
	assert.Equal(t, byte(127), payload[87])
	assert.Equal(t, byte(64), payload[18])
}

func TestEnvelopeModePacked(t *testing.T) {
	s := params.NewStore(soundSchema)
	require.NoError(t, s.SetByName("env2_trigger", 1))
	require.NoError(t, s.SetByName("env2_mode", 3))
	payload, _ := soundCodec.Encode(s)
	assert.Equal(t, byte(0x23), payload[208])
}

func TestChecksumWildcard(t *testing.T) {
	msg, err := NewSound(patch.Options{}).Emit(filled(soundSchema, 1))
	require.NoError(t, err)
	strict := NewSound(patch.Options{Strict: true})

	_, err = strict.Parse(msg)
	require.NoError(t, err)

	msg[len(msg)-2] = AnyChecksum
	_, err = strict.Parse(msg)
	assert.NoError(t, err)

	msg[len(msg)-2] = (Checksum.Compute(msg, headerLen, headerLen+SoundSize)[0] + 1) & 0x3F
	_, err = strict.Parse(msg)
	assert.True(t, errors.Is(err, sysex.ErrChecksumMismatch))
	_, err = NewSound(patch.Options{}).Parse(msg)
	assert.NoError(t, err)
}

func TestParseRejects(t *testing.T) {
	f := NewSound(patch.Options{})
	msg, err := f.Emit(params.NewStore(soundSchema))
	require.NoError(t, err)

	_, err = f.Parse(msg[:391])
	assert.True(t, errors.Is(err, sysex.ErrLengthMismatch))

	msg[4] = cmdMULD
	_, err = f.Parse(msg)
	assert.True(t, errors.Is(err, sysex.ErrUnrecognizedHeader))
}

func TestParamChange(t *testing.T) {
	f := NewSound(patch.Options{Device: 0x00})
	s := params.NewStore(soundSchema)
	require.NoError(t, s.SetByName("osc1_detune", 10))

	msg, err := f.ParamChange(s, "osc1_detune")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x3E, 0x13, 0x00, 0x20, 0x00, 0x00, 0x03, 74, 0xF7}, msg)

	s.SetText("name", "Pad")
	msg, err = f.ParamChange(s, "name")
	require.NoError(t, err)
	parts := sysex.Split(msg)
	require.Len(t, parts, nameLen)
	assert.Equal(t, []byte{0xF0, 0x3E, 0x13, 0x00, 0x20, 0x00, 0x02, 107, 'P', 0xF7}, parts[0])
	assert.Equal(t, byte(' '), parts[15][8])

	_, err = f.ParamChange(s, "bank")
	assert.True(t, errors.Is(err, sysex.ErrUnknownParameterKey))
}

func TestRequestDump(t *testing.T) {
	req, err := NewSound(patch.Options{}).RequestDump(7, 127)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x3E, 0x13, 0x00, 0x00, 0x07, 0x7F, 0xF7}, req)

	req, err = NewSound(patch.Options{}).RequestDump(EditBuffer, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(EditBuffer), req[5])

	_, err = NewSound(patch.Options{}).RequestDump(8, 0)
	assert.Error(t, err)
	_, err = NewMulti(patch.Options{}).RequestDump(0, 128)
	assert.Error(t, err)
}

func TestBankByte(t *testing.T) {
	b, err := BankByte("h")
	require.NoError(t, err)
	assert.Equal(t, byte(7), b)
	_, err = BankByte("I")
	assert.Error(t, err)
	_, err = BankByte("")
	assert.Error(t, err)
}

func TestMultiRoundTrip(t *testing.T) {
	f := NewMulti(patch.Options{Device: 0x01})
	s := filled(f.Schema(), 5)
	s.SetText("name", "Init Multi")
	s.Put(multiSchema.MustLookup("number"), 12)

	msg, err := f.Emit(s)
	require.NoError(t, err)
	require.Len(t, msg, 425)
	assert.True(t, MultiShape.Matches(msg))
	assert.False(t, SoundShape.Matches(msg))

	got, err := f.Parse(msg)
	require.NoError(t, err)
	assert.Empty(t, s.Diff(got))
}
