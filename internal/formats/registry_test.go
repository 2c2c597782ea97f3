package formats

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchmcp/internal/params"
	"patchmcp/internal/patch"
	"patchmcp/internal/sysex"
)

func TestIDsSorted(t *testing.T) {
	r := New(patch.Options{})
	assert.Equal(t, []string{
		"clavia/program",
		"kawai/multi",
		"kawai/single",
		"roland/tone",
		"waldorf/multi",
		"waldorf/sound",
	}, r.IDs())

	_, err := r.Get("korg/m1")
	assert.Error(t, err)
}

func TestEveryFormatRoundTripsThroughRecognizer(t *testing.T) {
	r := New(patch.Options{Strict: true})
	for _, id := range r.IDs() {
		f, err := r.Get(id)
		require.NoError(t, err)

		s := params.NewStore(f.Schema())
		msg, err := f.Emit(s)
		require.NoError(t, err, id)
		require.NoError(t, sysex.Validate(msg), id)

		got, shape, err := r.Recognize(msg)
		require.NoError(t, err, id)
		assert.Equal(t, id, got.ID())
		assert.Equal(t, f.Shapes()[0].ID, shape)

		_, patches, err := r.Decode(msg)
		require.NoError(t, err, id)
		require.Len(t, patches, 1)
		assert.Empty(t, s.Diff(patches[0]), id)

		_, _, err = r.Recognize(msg[:len(msg)-1])
		assert.True(t, errors.Is(err, sysex.ErrUnrecognizedHeader), id)
		_, _, err = r.Recognize(append(append([]byte(nil), msg...), 0xF7))
		assert.True(t, errors.Is(err, sysex.ErrUnrecognizedHeader), id)
	}
}

func TestDecodeBank(t *testing.T) {
	r := New(patch.Options{})
	f, err := r.Get("kawai/single")
	require.NoError(t, err)
	bf := f.(BankFormat)

	patches := make([]*params.Store, 12)
	for i := range patches {
		patches[i] = params.NewStore(f.Schema())
	}
	blob, err := bf.EmitBank(patches)
	require.NoError(t, err)

	got, decoded, err := r.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, "kawai/single", got.ID())
	assert.Len(t, decoded, 12)
}

func TestDecodeAllConcatenated(t *testing.T) {
	r := New(patch.Options{})
	tone, err := r.Get("roland/tone")
	require.NoError(t, err)
	sound, err := r.Get("waldorf/sound")
	require.NoError(t, err)

	a, err := tone.Emit(params.NewStore(tone.Schema()))
	require.NoError(t, err)
	b, err := sound.Emit(params.NewStore(sound.Schema()))
	require.NoError(t, err)

	fs, patches, err := r.DecodeAll(append(a, b...))
	require.NoError(t, err)
	require.Len(t, patches, 2)
	assert.Equal(t, "roland/tone", fs[0].ID())
	assert.Equal(t, "waldorf/sound", fs[1].ID())

	_, _, err = r.DecodeAll(append(a, 0xF0, 0x00, 0xF7))
	assert.Error(t, err)
}

func TestRetargetAndTiming(t *testing.T) {
	r := New(patch.Options{})
	f, err := r.Get("waldorf/sound")
	require.NoError(t, err)
	s := params.NewStore(f.Schema())
	require.NoError(t, Retarget(f, s, 3, 200))
	assert.Equal(t, 3, s.GetByName("bank", -1))
	assert.Equal(t, 127, s.GetByName("number", -1))
	require.NoError(t, Retarget(f, s, -1, 4))
	assert.Equal(t, 3, s.GetByName("bank", -1))
	assert.Equal(t, 4, s.GetByName("number", -1))

	_, isChanger := f.(ParamChanger)
	assert.True(t, isChanger)
	assert.NotZero(t, WriteDelay(f))

	k, err := r.Get("kawai/single")
	require.NoError(t, err)
	_, confirms := k.(WriteConfirmer)
	assert.True(t, confirms)
}

func TestRetargetAddressesRequestedSlot(t *testing.T) {
	r := New(patch.Options{})
	for _, id := range r.IDs() {
		f, err := r.Get(id)
		require.NoError(t, err)
		if _, err := f.RequestDump(2, 3); err != nil {
			continue
		}
		s := params.NewStore(f.Schema())
		require.NoError(t, Retarget(f, s, 2, 3), id)
		msg, err := f.Emit(s)
		require.NoError(t, err, id)
		back, err := f.Parse(msg)
		require.NoError(t, err, id)
		assert.Equal(t, s.GetByName("number", -1), back.GetByName("number", -1), id)
		assert.Equal(t, s.GetByName("bank", -1), back.GetByName("bank", -1), id)
	}

	f, err := r.Get("roland/tone")
	require.NoError(t, err)
	req, err := f.RequestDump(2, 3)
	require.NoError(t, err)
	s := params.NewStore(f.Schema())
	require.NoError(t, Retarget(f, s, 2, 3))
	msg, err := f.Emit(s)
	require.NoError(t, err)
	assert.Equal(t, req[5:8], msg[5:8])
}

func TestPatchShapesLeaveOutBanks(t *testing.T) {
	r := New(patch.Options{})
	k, err := r.Get("kawai/single")
	require.NoError(t, err)
	assert.Len(t, PatchShapes(k), 1)

	rt, err := r.Get("roland/tone")
	require.NoError(t, err)
	assert.Len(t, PatchShapes(rt), 2)
	emitted, err := rt.Emit(params.NewStore(rt.Schema()))
	require.NoError(t, err)
	assert.True(t, MatchesPatch(rt, emitted))
	assert.False(t, MatchesPatch(k, emitted))
}
