package patch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchmcp/internal/params"
	"patchmcp/internal/signed"
	"patchmcp/internal/sysex"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	schema := params.MustSchema(
		params.Range("level", 0, 127),
		params.Centered("detune", -31, 31),
		params.Range("rate", 0, 31),
		params.Range("wave", 0, 7),
		params.Range("sync", 0, 1),
		params.Range("mod", 0, 4),
		params.Range("mod_env", 1, 4).WithDefault(1),
		params.Range("max_seg", 0, 6),
		params.Centered("fine", -64, 63),
		params.Range("pitch", 0, 16383),
		params.Range("step_note", 0, 31),
		params.Range("step_gate", 0, 1),
		params.Fixed("number", 0, 127),
	)
	table := &Table{
		Size: 16,
		Entries: []Entry{
			Value("level", 0),
			Value("detune", 1, signed.Bias{Offset: 31}),
			Field("rate", 2, 3, 5, signed.Invert{Max: 31}),
			Bits(3, []int{4, 0}, []int{3, 1}, "wave", "sync"),
			Selector("mod", "mod_env", 4, []int{7, 5}, []int{1, 2}),
			OneHot("max_seg", 5, []int{7, 6, 5, 4, 3, 2}, []int{1, 1, 1, 1, 1, 1}, nil),
			SplitByte("fine", 6, 0),
			WideValue("pitch", 8, 2),
			TextField("name", 10, 4, "", true),
			StreamFields(14, []int{5, 1}, "step_note", "step_gate"),
			Value("number", 15),
		},
		Exclude: []string{"number"},
	}
	return MustNew("test", schema, table)
}

func TestCodecRoundTrip(t *testing.T) {
	c := testCodec(t)
	s := params.NewStore(c.Schema())
	for name, v := range map[string]int{
		"level": 99, "detune": -12, "rate": 7, "wave": 5, "sync": 1,
		"mod": 3, "mod_env": 3, "max_seg": 4, "fine": -40, "pitch": 9000,
		"step_note": 17, "step_gate": 1,
	} {
		require.NoError(t, s.SetByName(name, v))
	}
	s.SetText("name", "AB1")

	payload, overflow := c.Encode(s)
	require.Len(t, payload, 16)
	assert.True(t, overflow[6])
	assert.False(t, overflow[7])
	assert.Equal(t, byte(99), payload[0])
	assert.Equal(t, byte(19), payload[1])
	assert.Equal(t, byte(0), payload[15], "excluded parameter must not be emitted")

	got, err := c.Decode(payload)
	require.NoError(t, err)
	assert.Empty(t, s.Diff(got))
	assert.Equal(t, "AB1", got.Text("name"))
}

func TestDecodeRejectsWrongLengthFirst(t *testing.T) {
	c := testCodec(t)
	_, err := c.Decode(make([]byte, 15))
	assert.True(t, errors.Is(err, sysex.ErrLengthMismatch))
	_, err = c.Decode(make([]byte, 17))
	assert.True(t, errors.Is(err, sysex.ErrLengthMismatch))
}

func TestShadowSurvivesSelectorOff(t *testing.T) {
	c := testCodec(t)
	s := params.NewStore(c.Schema())
	require.NoError(t, s.SetByName("mod", 0))
	require.NoError(t, s.SetByName("mod_env", 4))

	payload, _ := c.Encode(s)
	// enable clear, index 3 held in bits 5-6
	assert.Equal(t, byte(0x60), payload[4])

	got, err := c.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, 0, got.GetByName("mod", -1))
	assert.Equal(t, 4, got.GetByName("mod_env", -1))

	// re-enabling picks up the remembered envelope
	require.NoError(t, got.SetByName("mod", got.GetByName("mod_env", 0)))
	payload, _ = c.Encode(got)
	assert.Equal(t, byte(0xE0), payload[4])
}

func TestShadowWrittenWhenSelectorOn(t *testing.T) {
	c := testCodec(t)
	payload := make([]byte, 16)
	payload[4] = 0x80 | 1<<5
	got, err := c.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, 2, got.GetByName("mod", -1))
	assert.Equal(t, 2, got.GetByName("mod_env", -1))
}

func TestUnifiedSegmentThree(t *testing.T) {
	c := testCodec(t)
	s := params.NewStore(c.Schema())
	require.NoError(t, s.SetByName("max_seg", 3))
	payload, _ := c.Encode(s)
	assert.Equal(t, byte(0x20), payload[5])

	got, err := c.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, 3, got.GetByName("max_seg", -1))
}

func TestEncodeText(t *testing.T) {
	legal := "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 -./'"
	assert.Equal(t, []byte("INIT    "), EncodeText("init", 8, legal, true))
	assert.Equal(t, []byte("A B "), EncodeText("a*b", 4, legal, true))
	assert.Equal(t, []byte("LONGNA"), EncodeText("longname", 6, legal, true))
	assert.Equal(t, []byte("mixed~  "), EncodeText("mixed~", 8, "", false))
}

func TestAdoptSkipsUnknownKeys(t *testing.T) {
	c := testCodec(t)
	foreign := params.NewStore(params.MustSchema(
		params.Range("level", 0, 127).WithDefault(42),
		params.Range("unison", 0, 1),
	))
	foreign.SetText("name", "X")
	s := c.Adopt(foreign)
	assert.Equal(t, 42, s.GetByName("level", -1))
	assert.Equal(t, "X", s.Text("name"))

	payload, _ := c.Encode(foreign)
	assert.Equal(t, byte(42), payload[0])
}

func TestBytesForSingleParameter(t *testing.T) {
	c := testCodec(t)
	s := params.NewStore(c.Schema())
	require.NoError(t, s.SetByName("wave", 6))
	require.NoError(t, s.SetByName("sync", 1))

	pos, b, err := c.Bytes(s, "sync")
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.Equal(t, []byte{0x61}, b)

	_, _, err = c.Bytes(s, "number")
	assert.True(t, errors.Is(err, sysex.ErrUnknownParameterKey))
	_, _, err = c.Bytes(s, "nope")
	assert.True(t, errors.Is(err, sysex.ErrUnknownParameterKey))
}

func TestNewRejectsBadTable(t *testing.T) {
	schema := params.MustSchema(params.Range("a", 0, 1))
	_, err := New("bad", schema, &Table{Size: 1, Entries: []Entry{Value("a", 1)}})
	assert.Error(t, err)
	_, err = New("bad", schema, &Table{Size: 2, Entries: []Entry{Value("b", 0)}})
	assert.Error(t, err)
}
