package clavia

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/sysex"
)

func filled(seed int) *params.Store {
	s := params.NewStore(programSchema)
	s.Each(func(id params.ID, name string, _ int) {
		if name == "bank" || name == "number" {
			return
		}
		d := programSchema.Def(id)
		s.Put(id, d.Min+(int(id)*7+seed)%(d.Max-d.Min+1))
	})
	s.SetText("name", "Bass Drive")
	return s
}

func TestProgramRoundTrip(t *testing.T) {
	f := NewProgram(patch.Options{Device: 0x05})
	for seed := 0; seed < 5; seed++ {
		s := filled(seed)
		s.Put(programSchema.MustLookup("bank"), 2)
		s.Put(programSchema.MustLookup("number"), 41)

		msg, err := f.Emit(s)
		require.NoError(t, err)
		require.Len(t, msg, 126)
		require.NoError(t, sysex.Validate(msg))
		assert.Equal(t, []byte{0xF0, 0x33, 0x05, 0x09, 0x20, 0x02, 41}, msg[:7])
		assert.True(t, ProgramShape.Matches(msg))

		got, err := NewProgram(patch.Options{Strict: true}).Parse(msg)
		require.NoError(t, err)
		assert.Empty(t, s.Diff(got))
		assert.Equal(t, "Bass Drive", got.Text("name"))
	}
}

func TestSplitSignedWireBytes(t *testing.T) {
	s := params.NewStore(programSchema)
	require.NoError(t, s.SetByName("osc2_semi", -1))
	require.NoError(t, s.SetByName("osc2_fine", 63))
	require.NoError(t, s.SetByName("transpose", -64))

	msg, err := NewProgram(patch.Options{}).Emit(s)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x7F}, msg[bodyStart+2:bodyStart+4])
	assert.Equal(t, []byte{0x00, 0x3F}, msg[bodyStart+4:bodyStart+6])
	assert.Equal(t, []byte{0x01, 0x40}, msg[bodyStart+44:bodyStart+46])
}

func TestChecksumWeightsMSB(t *testing.T) {
	s := params.NewStore(programSchema)
	msg, err := NewProgram(patch.Options{}).Emit(s)
	require.NoError(t, err)

	sum := 0
	for i, b := range msg[bodyStart:sumStart] {
		v := int(b)
		if regionWeights[i] {
			v *= 128
		}
		sum += v
	}
	got := int(msg[sumStart])<<7 | int(msg[sumStart+1])
	assert.Equal(t, 0, (sum+got)%256)
	assert.LessOrEqual(t, msg[sumStart], byte(1))

	require.NoError(t, s.SetByName("filter_env_amt", -1))
	msg2, err := NewProgram(patch.Options{}).Emit(s)
	require.NoError(t, err)
	assert.NotEqual(t, msg[sumStart:sumStart+2], msg2[sumStart:sumStart+2])
}

func TestSequencerStream(t *testing.T) {
	s := params.NewStore(programSchema)
	s.Each(func(id params.ID, name string, _ int) {
		if len(name) > 4 && name[:4] == "step" {
			s.Put(id, 0)
		}
	})
	require.NoError(t, s.SetByName("step01_note", 24))
	require.NoError(t, s.SetByName("step01_gate", 1))
	require.NoError(t, s.SetByName("step01_velocity", 15))
	require.NoError(t, s.SetByName("step01_ratchet", 2))

	msg, err := NewProgram(patch.Options{}).Emit(s)
	require.NoError(t, err)
	seq := msg[seqStart:sumStart]
	// 11000 1 1111 10 re-chunked: 1100011 1111000 ...
	assert.Equal(t, byte(0x63), seq[0])
	assert.Equal(t, byte(0x78), seq[1])
	for _, b := range seq[2:] {
		assert.Equal(t, byte(0), b)
	}

	got, err := NewProgram(patch.Options{}).Parse(msg)
	require.NoError(t, err)
	assert.Equal(t, 24, got.GetByName("step01_note", -1))
	assert.Equal(t, 2, got.GetByName("step01_ratchet", -1))
	assert.Equal(t, 0, got.GetByName("step02_gate", -1))
}

func TestStrictChecksum(t *testing.T) {
	msg, err := NewProgram(patch.Options{}).Emit(filled(1))
	require.NoError(t, err)
	msg[sumStart+1] = (msg[sumStart+1] + 1) & 0x7F

	_, err = NewProgram(patch.Options{}).Parse(msg)
	assert.NoError(t, err)
	_, err = NewProgram(patch.Options{Strict: true}).Parse(msg)
	assert.True(t, errors.Is(err, sysex.ErrChecksumMismatch))
}

func TestParseRejects(t *testing.T) {
	f := NewProgram(patch.Options{})
	msg, err := f.Emit(params.NewStore(programSchema))
	require.NoError(t, err)

	_, err = f.Parse(append(msg[:125:125], 0xF7, 0xF7))
	assert.True(t, errors.Is(err, sysex.ErrLengthMismatch))

	msg[4] = cmdRequest
	_, err = f.Parse(msg)
	assert.True(t, errors.Is(err, sysex.ErrUnrecognizedHeader))
}

func TestRequestDump(t *testing.T) {
	f := NewProgram(patch.Options{Device: 0x00})
	req, err := f.RequestDump(1, 98)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x33, 0x00, 0x09, 0x40, 0x01, 98, 0xF7}, req)

	_, err = f.RequestDump(Banks, 0)
	assert.Error(t, err)
	_, err = f.RequestDump(0, Locations)
	assert.Error(t, err)
}
